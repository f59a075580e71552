package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies the JSON type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindSequence
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindSequence:
		return "sequence"
	case KindRecord:
		return "record"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a decoded Query Service result. The zero Value is null.
type Value struct {
	kind   Kind
	str    string
	num    float64
	b      bool
	items  []Value
	record *Record
}

func Null() Value            { return Value{} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Object(r *Record) Value { return Value{kind: KindRecord, record: r} }

// Sequence returns a sequence value. A nil or empty argument list yields an
// empty sequence, not null.
func Sequence(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, items: items}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Items() []Value { return v.items }

// Record returns the record held by v, or nil when v is not a record.
func (v Value) Record() *Record {
	if v.kind != KindRecord {
		return nil
	}
	return v.record
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Num returns the number held by v.
func (v Value) Num() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// MarshalJSON encodes v back to JSON, keeping record field order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindSequence:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindRecord:
		if v.record == nil {
			return []byte("{}"), nil
		}
		return v.record.fields.MarshalJSON()
	}
	return []byte("null"), nil
}

// Record is a keyed record whose fields keep their insertion order.
// Setting an existing key replaces its value in place.
type Record struct {
	fields *orderedmap.OrderedMap[string, Value]
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: orderedmap.New[string, Value]()}
}

// Set stores key and returns r so literals can be chained.
func (r *Record) Set(key string, v Value) *Record {
	r.fields.Set(key, v)
	return r
}

func (r *Record) Get(key string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	return r.fields.Get(key)
}

func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return r.fields.Len()
}

// Each calls fn for every field in order until fn returns false.
func (r *Record) Each(fn func(key string, v Value) bool) {
	if r == nil {
		return
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Parse decodes a JSON document into a Value. Object field order and array
// order are preserved exactly; a repeated key keeps its first position and
// its last value.
func Parse(data []byte) (Value, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Value{}, err
	}
	body, dt, _, err := jsonparser.Get(raw)
	if err != nil {
		return Value{}, fmt.Errorf("reading document: %w", err)
	}
	return decode(body, dt)
}

func decode(raw []byte, dt jsonparser.ValueType) (Value, error) {
	switch dt {
	case jsonparser.Null:
		return Null(), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Value{}, fmt.Errorf("parsing boolean: %w", err)
		}
		return Bool(b), nil
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return Value{}, fmt.Errorf("parsing number %q: %w", raw, err)
		}
		return Number(f), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, fmt.Errorf("parsing string: %w", err)
		}
		return String(s), nil
	case jsonparser.Array:
		items := []Value{}
		var itemErr error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, t jsonparser.ValueType, _ int, err error) {
			if itemErr != nil {
				return
			}
			if err != nil {
				itemErr = err
				return
			}
			item, err := decode(value, t)
			if err != nil {
				itemErr = err
				return
			}
			items = append(items, item)
		})
		if err != nil {
			return Value{}, fmt.Errorf("parsing array: %w", err)
		}
		if itemErr != nil {
			return Value{}, itemErr
		}
		return Sequence(items...), nil
	case jsonparser.Object:
		rec := NewRecord()
		err := jsonparser.ObjectEach(raw, func(k, value []byte, t jsonparser.ValueType, _ int) error {
			// ObjectEach hands over keys already unescaped.
			item, err := decode(value, t)
			if err != nil {
				return err
			}
			rec.Set(string(k), item)
			return nil
		})
		if err != nil {
			return Value{}, fmt.Errorf("parsing object: %w", err)
		}
		return Object(rec), nil
	}
	return Value{}, fmt.Errorf("unsupported JSON value type %v", dt)
}
