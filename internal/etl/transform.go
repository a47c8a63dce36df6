package etl

import (
	"fmt"
	"math"

	"arcsync/internal/config"
	"arcsync/internal/domain"
)

// ── Mapper ─────────────────────────────────────────────────
// The mapper is the select → rename → type-cast chain applied to every raw
// record. Unmapped source columns are dropped, mapped columns are renamed to
// their target field and coerced to the declared type. Failures are collected
// on the record; the run carries on.

// Mapper maps raw records onto the target schema.
type Mapper struct {
	fields []config.FieldMapping
}

// NewMapper builds a mapper from the ordered field mappings.
func NewMapper(fields []config.FieldMapping) *Mapper {
	return &Mapper{fields: fields}
}

// Schema returns the attribute schema the mapped records carry, excluding
// the coordinates field, which never reaches the layer as an attribute.
func (m *Mapper) Schema() *Schema {
	s := &Schema{}
	for _, f := range m.fields {
		if f.Type == domain.FieldCoordinates {
			continue
		}
		s.Fields = append(s.Fields, Field{
			Name:     f.Target(),
			Type:     f.Type,
			Alias:    f.Alias,
			Length:   f.Length,
			Required: f.Required,
		})
	}
	return s
}

// Map applies every mapping to r. All failures are reported, not only the
// first one.
func (m *Mapper) Map(r Record) MappedRecord {
	out := MappedRecord{
		Row:        r.Row,
		Attributes: make(map[string]any, len(m.fields)),
		Raw:        r,
	}

	for _, f := range m.fields {
		target := f.Target()
		raw, present := r.Data[f.Source]

		if !present || isBlank(raw) {
			if f.Required {
				out.Errors = append(out.Errors, ValidationError{
					Field:  target,
					Value:  raw,
					Reason: ReasonMissingRequired,
				})
			}
			out.Attributes[target] = nil
			continue
		}

		v, err := coerce(f, raw)
		if err != nil {
			out.Errors = append(out.Errors, *err)
			continue
		}
		out.Attributes[target] = v
	}

	out.Valid = len(out.Errors) == 0
	return out
}

// coerce converts raw to the mapping's type.
func coerce(f config.FieldMapping, raw any) (any, *ValidationError) {
	var (
		v  any
		ok bool
	)
	switch f.Type {
	case domain.FieldString:
		v, ok = coerceString(raw, f.Length)
		if !ok {
			if f.Length > 0 {
				return nil, mismatch(f, raw, fmt.Sprintf("expected text of at most %d characters", f.Length))
			}
			return nil, mismatch(f, raw, "expected text")
		}
	case domain.FieldInteger:
		n, ok := coerceInteger(raw)
		if !ok {
			return nil, mismatch(f, raw, "expected an integer")
		}
		// Created layers store integers as esriFieldTypeInteger.
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, mismatch(f, raw, "integer out of the 32-bit range")
		}
		v = n
	case domain.FieldDouble:
		v, ok = coerceDouble(raw)
		if !ok {
			return nil, mismatch(f, raw, "expected a number")
		}
	case domain.FieldDate:
		v, ok = coerceDate(raw)
		if !ok {
			return nil, mismatch(f, raw, "expected a date")
		}
	case domain.FieldBoolean:
		v, ok = coerceBoolean(raw)
		if !ok {
			return nil, mismatch(f, raw, "expected a boolean")
		}
	case domain.FieldCoordinates:
		// Parsed by the geometry builder.
		v = raw
	default:
		return nil, mismatch(f, raw, fmt.Sprintf("unsupported type %q", f.Type))
	}
	return v, nil
}

func mismatch(f config.FieldMapping, raw any, msg string) *ValidationError {
	return &ValidationError{
		Field:   f.Target(),
		Value:   raw,
		Reason:  ReasonTypeMismatch,
		Message: msg,
	}
}
