package affix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sagarc03/affix"
)

func TestIsValidKey(t *testing.T) {
	invalidUTF8 := string([]byte{'a', 0xff, 'b'})

	tt := []struct {
		Name string
		Key  string
		Want bool
	}{
		{Name: "empty", Key: "", Want: false},
		{Name: "root", Key: "/", Want: false},
		{Name: "dot", Key: ".", Want: false},
		{Name: "leading slash", Key: "/avatars/a.png", Want: false},
		{Name: "trailing slash", Key: "avatars/", Want: false},
		{Name: "parent segment", Key: "avatars/../a.png", Want: false},
		{Name: "empty segment", Key: "avatars//a.png", Want: false},
		{Name: "dot segment", Key: "avatars/./a.png", Want: false},
		{Name: "leading dot segment", Key: "./a.png", Want: false},
		{Name: "backslash", Key: `avatars\a.png`, Want: false},
		{Name: "question mark", Key: "a?.png", Want: false},
		{Name: "hash", Key: "a#.png", Want: false},
		{Name: "tilde", Key: "~a.png", Want: false},
		{Name: "invalid utf8", Key: invalidUTF8, Want: false},
		{Name: "control char", Key: "a\x01.png", Want: false},
		{Name: "simple", Key: "avatars/1/original/a.png", Want: true},
		{Name: "space in name", Key: "avatars/1/original/my photo.png", Want: true},
		{Name: "unicode", Key: "avatars/1/original/café.png", Want: true},
		{Name: "hidden file", Key: "avatars/.keep", Want: true},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Want, affix.IsValidKey(tc.Key))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tt := []struct {
		Name string
		In   string
		Want string
	}{
		{Name: "plain", In: "5k.png", Want: "5k.png"},
		{Name: "unix dirs", In: "/tmp/uploads/5k.png", Want: "5k.png"},
		{Name: "windows dirs", In: `C:\Users\me\5k.png`, Want: "5k.png"},
		{Name: "reserved chars", In: "a?b#c~d.png", Want: "a_b_c_d.png"},
		{Name: "tab", In: "a\tb.png", Want: "a_b.png"},
		{Name: "keeps spaces", In: "my photo.png", Want: "my photo.png"},
		{Name: "double dots", In: "a..b.png", Want: "a.b.png"},
		{Name: "only dots", In: "..", Want: "file"},
		{Name: "empty", In: "", Want: "file"},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			got := affix.SanitizeFilename(tc.In)
			assert.Equal(t, tc.Want, got)
			assert.True(t, affix.IsValidKey("x/"+got), "sanitized name must form a valid key")
		})
	}
}
