package affix_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/affix"
)

func TestMapRecord(t *testing.T) {
	rec := affix.NewRecord("User", "9")

	assert.Equal(t, "User", rec.ClassName())
	assert.Equal(t, "9", rec.ID())
	assert.Equal(t, affix.RecordRef{Class: "User", ID: "9"}, rec.Ref())
	assert.Equal(t, "User/9", rec.Ref().String())

	rec.Set("name", "bob")
	assert.Equal(t, "bob", rec.Get("name"))

	attrs := rec.Attributes()
	attrs["name"] = "mutated"
	assert.Equal(t, "bob", rec.Get("name"), "Attributes returns a copy")

	rec.Set("name", nil)
	assert.Nil(t, rec.Get("name"))
	assert.Empty(t, rec.Attributes())
}

func TestMapRecord_Hooks(t *testing.T) {
	rec := affix.NewRecord("User", "1")

	proceed, found := rec.InvokeHook("before_avatar_process")
	assert.True(t, proceed)
	assert.False(t, found)

	rec.OnHook("before_avatar_process", func(r affix.Record) bool {
		return r.Get("allow") == true
	})

	proceed, found = rec.InvokeHook("before_avatar_process")
	assert.False(t, proceed)
	assert.True(t, found)

	rec.Set("allow", true)
	proceed, _ = rec.InvokeHook("before_avatar_process")
	assert.True(t, proceed)
}

// Attributes decoded from JSON come back as float64, json.Number or strings;
// the attachment accessors accept all of them.
func TestAttachment_DecodedAttributes(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		size any
		at   any
	}{
		{"native", int64(2048), ts},
		{"float", float64(2048), ts.Format(time.RFC3339Nano)},
		{"json number", json.Number("2048"), json.Number("1714564800")},
		{"string", "2048", ts.Format(time.RFC3339Nano)},
		{"int", 2048, ts.Unix()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := affix.NewRecord("User", "1")
			rec.Set("avatar_file_name", "a.png")
			rec.Set("avatar_file_size", tt.size)
			rec.Set("avatar_updated_at", tt.at)

			a := newAvatar(t, newMemBackend(), rec, affix.Options{})
			require.True(t, a.Present())
			assert.Equal(t, int64(2048), a.FileSize())
			assert.True(t, ts.Equal(a.UpdatedAt()), "got %v", a.UpdatedAt())
		})
	}
}
