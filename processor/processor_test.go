package processor_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/processor"
)

func pngFile(t *testing.T, name string, w, h int) *affix.File {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return affix.NewFile(name, "", buf.Bytes())
}

func size(t *testing.T, f *affix.File) (int, int) {
	t.Helper()
	data, err := f.Bytes()
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestParseGeometry(t *testing.T) {
	tests := []struct {
		in   string
		want processor.Geometry
	}{
		{"100x50", processor.Geometry{Width: 100, Height: 50, Mode: processor.Fit}},
		{"100", processor.Geometry{Width: 100}},
		{"x50", processor.Geometry{Height: 50}},
		{"25x25#", processor.Geometry{Width: 25, Height: 25, Mode: processor.Fill}},
		{"100x100>", processor.Geometry{Width: 100, Height: 100, Mode: processor.Shrink}},
		{"10x10<", processor.Geometry{Width: 10, Height: 10, Mode: processor.Enlarge}},
		{"30x20!", processor.Geometry{Width: 30, Height: 20, Mode: processor.Exact}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			g, err := processor.ParseGeometry(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, g)
		})
	}

	for _, bad := range []string{"", "x", "abc", "10x10?", "25#", "-5x5"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			_, err := processor.ParseGeometry(bad)
			assert.ErrorIs(t, err, affix.ErrInvalidInput)
		})
	}
}

func TestThumbnail(t *testing.T) {
	ctx := context.Background()
	src := pngFile(t, "5k.png", 200, 100)

	tests := []struct {
		geometry string
		w, h     int
	}{
		{"100x100", 100, 50},
		{"400x400", 400, 200},
		{"100x100>", 100, 50},
		{"400x400>", 200, 100},
		{"50x50<", 200, 100},
		{"25x25#", 25, 25},
		{"30x20!", 30, 20},
		{"x50", 100, 50},
	}
	for _, tt := range tests {
		t.Run(tt.geometry, func(t *testing.T) {
			out, err := processor.Thumbnail(ctx, src, affix.StyleOptions{Geometry: tt.geometry}, nil)
			require.NoError(t, err)

			w, h := size(t, out)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
			assert.Equal(t, "5k.png", out.Name)
			assert.Equal(t, "image/png", out.ContentType)
		})
	}
}

func TestThumbnail_Format(t *testing.T) {
	out, err := processor.Thumbnail(context.Background(), pngFile(t, "photo.png", 40, 40),
		affix.StyleOptions{Geometry: "20x20", Format: "jpg", Params: map[string]string{"quality": "80"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "photo.jpg", out.Name)
	assert.Equal(t, "image/jpeg", out.ContentType)
}

func TestThumbnail_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := processor.Thumbnail(ctx, affix.NewFile("a.txt", "text/plain", []byte("not an image")),
		affix.StyleOptions{Geometry: "10x10"}, nil)
	assert.ErrorIs(t, err, affix.ErrInvalidInput)

	_, err = processor.Thumbnail(ctx, pngFile(t, "a.png", 10, 10), affix.StyleOptions{Geometry: "big"}, nil)
	assert.ErrorIs(t, err, affix.ErrInvalidInput)

	_, err = processor.Thumbnail(ctx, pngFile(t, "a.png", 10, 10),
		affix.StyleOptions{Geometry: "5x5", Format: "jpg", Params: map[string]string{"quality": "high"}}, nil)
	assert.ErrorIs(t, err, affix.ErrInvalidInput)
}

func TestConvert(t *testing.T) {
	ctx := context.Background()

	out, err := processor.Convert(ctx, pngFile(t, "a.png", 8, 8), affix.StyleOptions{Format: "gif"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a.gif", out.Name)
	assert.Equal(t, "image/gif", out.ContentType)

	_, err = processor.Convert(ctx, pngFile(t, "a.png", 8, 8), affix.StyleOptions{}, nil)
	assert.ErrorIs(t, err, affix.ErrInvalidInput)

	_, err = processor.Convert(ctx, pngFile(t, "a.png", 8, 8), affix.StyleOptions{Format: "webp"}, nil)
	assert.ErrorIs(t, err, affix.ErrInvalidInput)
}

func TestRegister(t *testing.T) {
	reg := affix.NewRegistry()
	processor.Register(reg)

	assert.Equal(t, []string{"convert", "thumbnail"}, reg.TransformNames())
}
