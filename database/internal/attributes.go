// Package internal holds helpers shared by the SQL record repositories.
package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sagarc03/affix"
)

// EncodeAttributes serializes the record's attributes as a JSON object.
// Times are stored as RFC 3339 strings in UTC.
func EncodeAttributes(rec *affix.MapRecord) ([]byte, error) {
	attrs := rec.Attributes()
	for k, v := range attrs {
		if ts, ok := v.(time.Time); ok {
			attrs[k] = ts.UTC().Format(time.RFC3339Nano)
		}
	}

	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes %s/%s: %w", rec.ClassName(), rec.ID(), err)
	}
	return data, nil
}

// DecodeRecord rebuilds a record from its stored attributes. Numbers are
// kept as json.Number so integer sizes survive unchanged.
func DecodeRecord(class, id string, data []byte) (*affix.MapRecord, error) {
	rec := affix.NewRecord(class, id)
	if len(data) == 0 {
		return rec, nil
	}

	var attrs map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("decode attributes %s/%s: %w", class, id, err)
	}

	for k, v := range attrs {
		rec.Set(k, v)
	}
	return rec, nil
}
