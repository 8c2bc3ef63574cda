// Package processor provides the built-in image transforms.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/sagarc03/affix"
)

const (
	ThumbnailTransform = "thumbnail"
	ConvertTransform   = "convert"
)

// Register adds the thumbnail and convert transforms to reg.
func Register(reg *affix.Registry) {
	reg.RegisterTransform(ThumbnailTransform, affix.TransformFunc(Thumbnail))
	reg.RegisterTransform(ConvertTransform, affix.TransformFunc(Convert))
}

// Thumbnail resizes in to the style geometry and encodes it in the style
// format, or in the input format when none is set.
func Thumbnail(ctx context.Context, in *affix.File, style affix.StyleOptions, _ *affix.Attachment) (*affix.File, error) {
	g, err := ParseGeometry(style.Geometry)
	if err != nil {
		return nil, err
	}

	img, err := decode(in)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return encode(resize(img, g), in.Name, style)
}

// Convert re-encodes in to the style format.
func Convert(_ context.Context, in *affix.File, style affix.StyleOptions, _ *affix.Attachment) (*affix.File, error) {
	if style.Format == "" {
		return nil, fmt.Errorf("convert %s: %w: format is required", in.Name, affix.ErrInvalidInput)
	}

	img, err := decode(in)
	if err != nil {
		return nil, err
	}

	return encode(img, in.Name, style)
}

func resize(img image.Image, g Geometry) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch g.Mode {
	case Fill:
		return imaging.Fill(img, g.Width, g.Height, imaging.Center, imaging.Lanczos)
	case Exact:
		return imaging.Resize(img, g.Width, g.Height, imaging.Lanczos)
	case Shrink:
		if (g.Width == 0 || w <= g.Width) && (g.Height == 0 || h <= g.Height) {
			return img
		}
	case Enlarge:
		if (g.Width == 0 || w >= g.Width) && (g.Height == 0 || h >= g.Height) {
			return img
		}
	}

	nw, nh := g.scaled(w, h)
	if nw == w && nh == h {
		return img
	}
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}

func decode(in *affix.File) (image.Image, error) {
	rc, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", in.Name, err)
	}
	defer func() { _ = rc.Close() }()

	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", in.Name, affix.ErrInvalidInput, err)
	}
	return img, nil
}

func encode(img image.Image, name string, style affix.StyleOptions) (*affix.File, error) {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if style.Format != "" {
		ext = strings.ToLower(style.Format)
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w: %w", name, affix.ErrInvalidInput, err)
	}

	var opts []imaging.EncodeOption
	if q, ok := style.Params["quality"]; ok {
		quality, err := strconv.Atoi(q)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w: quality %q", name, affix.ErrInvalidInput, q)
		}
		opts = append(opts, imaging.JPEGQuality(quality))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	outName := strings.TrimSuffix(name, filepath.Ext(name)) + "." + ext
	return affix.NewFile(outName, "", buf.Bytes()), nil
}
