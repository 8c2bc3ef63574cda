package affix

import (
	"encoding/json"
	"maps"
	"strconv"
	"time"
)

// AttributeStore is the attribute surface of a host record. A nil value
// means the attribute is unset.
type AttributeStore interface {
	Get(name string) any
	Set(name string, value any)
}

// Record is the host record an attachment is bound to.
type Record interface {
	AttributeStore
	// ID is the record identifier used by the :id tokens.
	ID() string
	// ClassName is the record type name used by the :class token.
	ClassName() string
}

// HookSource is an optional capability of a Record. InvokeHook runs the
// named hook if the record defines it; proceed=false vetoes the operation.
type HookSource interface {
	InvokeHook(name string) (proceed bool, found bool)
}

// HookFunc is a hook registered on a MapRecord.
type HookFunc func(rec Record) bool

// MapRecord is a Record backed by a map. It is the record type used by the
// repositories, the service and the CLI.
type MapRecord struct {
	class string
	id    string
	attrs map[string]any
	hooks map[string]HookFunc
}

// NewRecord creates an empty record.
func NewRecord(class, id string) *MapRecord {
	return &MapRecord{
		class: class,
		id:    id,
		attrs: make(map[string]any),
		hooks: make(map[string]HookFunc),
	}
}

func (r *MapRecord) ID() string        { return r.id }
func (r *MapRecord) ClassName() string { return r.class }

// Ref returns the record reference.
func (r *MapRecord) Ref() RecordRef {
	return RecordRef{Class: r.class, ID: r.id}
}

func (r *MapRecord) Get(name string) any {
	return r.attrs[name]
}

func (r *MapRecord) Set(name string, value any) {
	if value == nil {
		delete(r.attrs, name)
		return
	}
	r.attrs[name] = value
}

// Attributes returns a copy of all set attributes.
func (r *MapRecord) Attributes() map[string]any {
	return maps.Clone(r.attrs)
}

// OnHook registers fn under the conventional hook name, e.g.
// "before_avatar_process".
func (r *MapRecord) OnHook(name string, fn HookFunc) {
	r.hooks[name] = fn
}

func (r *MapRecord) InvokeHook(name string) (bool, bool) {
	fn, ok := r.hooks[name]
	if !ok {
		return true, false
	}
	return fn(r), true
}

func attrString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

func attrInt(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

func attrTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	case int64:
		return time.Unix(t, 0).UTC()
	case float64:
		return time.Unix(int64(t), 0).UTC()
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}
		}
		return time.Unix(n, 0).UTC()
	default:
		return time.Time{}
	}
}
