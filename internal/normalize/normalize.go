// Package normalize turns Query Service results into display text.
//
// A result is classified into a Shape once, at the boundary, and rendered
// from that shape. Normalize never fails: anything it cannot render becomes
// the Fallback literal.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	NoResponse = "No response received from the server."
	NoResults  = "No results found."
	Fallback   = "Unable to format the response properly."
)

// Shape is the rendering discriminant of a Value.
type Shape int

const (
	ShapeAbsent Shape = iota
	ShapeString
	ShapePrimitive
	ShapeEmptySequence
	ShapePrimitiveSequence
	ShapeRecordSequence
	ShapeSingleFieldRecord
	ShapeMultiFieldRecord
	// ShapeUnsupported covers sequences mixing records with primitives and
	// sequences containing sequences.
	ShapeUnsupported
)

var shapeNames = [...]string{
	ShapeAbsent:            "absent",
	ShapeString:            "string",
	ShapePrimitive:         "primitive",
	ShapeEmptySequence:     "empty-sequence",
	ShapePrimitiveSequence: "primitive-sequence",
	ShapeRecordSequence:    "record-sequence",
	ShapeSingleFieldRecord: "single-field-record",
	ShapeMultiFieldRecord:  "multi-field-record",
	ShapeUnsupported:       "unsupported",
}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return fmt.Sprintf("shape(%d)", int(s))
	}
	return shapeNames[s]
}

var errNested = errors.New("nested value where a primitive is required")

// ShapeOf classifies v.
func ShapeOf(v Value) Shape {
	switch v.kind {
	case KindNull:
		return ShapeAbsent
	case KindString:
		return ShapeString
	case KindNumber, KindBool:
		return ShapePrimitive
	case KindSequence:
		if len(v.items) == 0 {
			return ShapeEmptySequence
		}
		records, primitives := 0, 0
		for _, item := range v.items {
			switch item.kind {
			case KindRecord:
				records++
			case KindSequence:
				return ShapeUnsupported
			default:
				primitives++
			}
		}
		switch {
		case primitives == 0:
			return ShapeRecordSequence
		case records == 0:
			return ShapePrimitiveSequence
		}
		return ShapeUnsupported
	case KindRecord:
		if v.record.Len() == 1 {
			return ShapeSingleFieldRecord
		}
		return ShapeMultiFieldRecord
	}
	return ShapeUnsupported
}

// Normalize renders v as display text. Identical input always yields
// identical output; sequence and field order are kept as received.
func Normalize(v Value) (out string) {
	shape := ShapeOf(v)
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("normalizing response panicked", "shape", shape, "panic", r)
			out = Fallback
		}
	}()

	out, err := render(shape, v)
	if err != nil {
		slog.Warn("response could not be normalized", "shape", shape, "error", err)
		return Fallback
	}
	return out
}

func render(shape Shape, v Value) (string, error) {
	switch shape {
	case ShapeAbsent:
		return NoResponse, nil
	case ShapeString:
		return v.str, nil
	case ShapePrimitive:
		return stringify(v)
	case ShapeEmptySequence:
		return NoResults, nil
	case ShapeRecordSequence:
		lines := make([]string, len(v.items))
		for i, item := range v.items {
			line, err := renderRow(item.record)
			if err != nil {
				return "", fmt.Errorf("row %d: %w", i, err)
			}
			lines[i] = line
		}
		return strings.Join(lines, "\n"), nil
	case ShapePrimitiveSequence:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			s, err := joinElement(item)
			if err != nil {
				return "", fmt.Errorf("item %d: %w", i, err)
			}
			parts[i] = s
		}
		return strings.Join(parts, ", "), nil
	case ShapeSingleFieldRecord:
		var (
			key string
			val Value
		)
		v.record.Each(func(k string, fv Value) bool {
			key, val = k, fv
			return false
		})
		s, err := stringify(val)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", key, err)
		}
		if strings.Contains(strings.ToLower(key), "name") {
			return "The " + key + " is: " + s, nil
		}
		return s, nil
	case ShapeMultiFieldRecord:
		return joinPairs(v.record, "\n")
	}
	return "", fmt.Errorf("cannot render %s value", shape)
}

// renderRow renders one record of a record sequence: a lone field collapses
// to its value, anything else becomes "key: value" pairs.
func renderRow(r *Record) (string, error) {
	if r.Len() != 1 {
		return joinPairs(r, ", ")
	}
	var (
		out string
		err error
	)
	r.Each(func(_ string, v Value) bool {
		out, err = joinElement(v)
		return false
	})
	return out, err
}

func joinPairs(r *Record, sep string) (string, error) {
	parts := make([]string, 0, r.Len())
	var err error
	r.Each(func(k string, v Value) bool {
		var s string
		if s, err = stringify(v); err != nil {
			err = fmt.Errorf("field %q: %w", k, err)
			return false
		}
		parts = append(parts, k+": "+s)
		return true
	})
	if err != nil {
		return "", err
	}
	return strings.Join(parts, sep), nil
}
