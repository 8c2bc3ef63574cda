package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Check(t *testing.T) {
	want := RecordsSchema("jsonb", "timestamp with time zone")

	t.Run("matching columns with extras", func(t *testing.T) {
		actual := Schema{
			"class":      {Type: "TEXT"},
			"id":         {Type: "text"},
			"attributes": {Type: "jsonb"},
			"created_at": {Type: "timestamp with time zone"},
			"updated_at": {Type: "timestamp with time zone"},
			"extra":      {Type: "integer", Nullable: true},
		}
		assert.NoError(t, want.Check("records", actual))
	})

	t.Run("missing and mismatched", func(t *testing.T) {
		actual := Schema{
			"class":      {Type: "text"},
			"attributes": {Type: "text"},
			"created_at": {Type: "timestamp with time zone", Nullable: true},
		}
		err := want.Check("records", actual)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "table records schema validation failed")
		assert.Contains(t, err.Error(), "missing columns: id, updated_at")
		assert.Contains(t, err.Error(), "attributes: expected jsonb, got text")
		assert.Contains(t, err.Error(), "created_at: expected nullable=false, got nullable=true")
	})
}
