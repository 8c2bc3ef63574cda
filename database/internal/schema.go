package internal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Column is the type and nullability of one table column as reported by the
// database catalog. Type is compared lowercased.
type Column struct {
	Type     string
	Nullable bool
}

// Schema maps column names to their definitions.
type Schema map[string]Column

// RecordsSchema returns the expected records table layout with the driver's
// names for the attribute and timestamp column types.
func RecordsSchema(attributesType, timeType string) Schema {
	return Schema{
		"class":      {Type: "text"},
		"id":         {Type: "text"},
		"attributes": {Type: attributesType},
		"created_at": {Type: timeType},
		"updated_at": {Type: timeType},
	}
}

// Check reports every column of s that is missing from actual or declared
// differently. Extra columns in actual are allowed.
func (s Schema) Check(table string, actual Schema) error {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	var missing, mismatched []string
	for _, name := range names {
		want := s[name]
		got, ok := actual[name]
		if !ok {
			missing = append(missing, name)
			continue
		}

		if gotType := strings.ToLower(got.Type); gotType != want.Type {
			mismatched = append(mismatched, fmt.Sprintf("%s: expected %s, got %s", name, want.Type, gotType))
		}
		if got.Nullable != want.Nullable {
			mismatched = append(mismatched, fmt.Sprintf("%s: expected nullable=%v, got nullable=%v", name, want.Nullable, got.Nullable))
		}
	}

	if len(missing) == 0 && len(mismatched) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "table %s schema validation failed:\n", table)
	if len(missing) > 0 {
		fmt.Fprintf(&b, "  missing columns: %s\n", strings.Join(missing, ", "))
	}
	if len(mismatched) > 0 {
		b.WriteString("  mismatched columns:\n")
		for _, msg := range mismatched {
			fmt.Fprintf(&b, "    - %s\n", msg)
		}
	}
	return errors.New(b.String())
}
