package etl

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"arcsync/internal/domain"
)

// Esri field types used by hosted layers.
const (
	EsriString       = "esriFieldTypeString"
	EsriInteger      = "esriFieldTypeInteger"
	EsriSmallInteger = "esriFieldTypeSmallInteger"
	EsriDouble       = "esriFieldTypeDouble"
	EsriSingle       = "esriFieldTypeSingle"
	EsriDate         = "esriFieldTypeDate"
	EsriOID          = "esriFieldTypeOID"
	EsriGlobalID     = "esriFieldTypeGlobalID"
	EsriGUID         = "esriFieldTypeGUID"
)

// EsriFieldType returns the layer field type created for a mapped type.
func EsriFieldType(t domain.FieldType) string {
	switch t {
	case domain.FieldInteger:
		return EsriInteger
	case domain.FieldDouble:
		return EsriDouble
	case domain.FieldDate:
		return EsriDate
	case domain.FieldBoolean:
		return EsriSmallInteger
	default:
		return EsriString
	}
}

// compatibleTypes lists the existing layer field types a mapped value can be
// written to.
var compatibleTypes = map[domain.FieldType][]string{
	domain.FieldString:  {EsriString, EsriGUID},
	domain.FieldInteger: {EsriInteger, EsriSmallInteger},
	domain.FieldDouble:  {EsriDouble, EsriSingle},
	domain.FieldDate:    {EsriDate},
	domain.FieldBoolean: {EsriSmallInteger, EsriInteger},
}

// LayerPlan describes how mapped attributes are written to one layer.
type LayerPlan struct {
	// Names translates schema names to the layer's spelling.
	Names map[string]string
	// Dropped lists optional schema fields the layer does not have; their
	// values are not uploaded.
	Dropped []string

	fields  map[string]LayerField // by schema name
	dropped map[string]bool
}

// CheckConformance verifies that every field of schema can be written to
// layer. Field names match case-insensitively. An optional field the layer
// lacks is dropped from the plan; a missing required field, an incompatible
// type or a service-managed field fails with ErrSchemaConformance.
func CheckConformance(schema *Schema, layer *LayerDescriptor) (*LayerPlan, error) {
	byName := make(map[string]LayerField, len(layer.Fields))
	for _, f := range layer.Fields {
		byName[strings.ToLower(f.Name)] = f
	}

	plan := &LayerPlan{
		Names:   make(map[string]string, len(schema.Fields)),
		fields:  make(map[string]LayerField, len(schema.Fields)),
		dropped: make(map[string]bool),
	}
	var problems []string
	for _, f := range schema.Fields {
		key := strings.ToLower(f.Name)
		if layer.ObjectIDField != "" && key == strings.ToLower(layer.ObjectIDField) ||
			layer.GlobalIDField != "" && key == strings.ToLower(layer.GlobalIDField) {
			problems = append(problems, fmt.Sprintf("%q is managed by the layer and cannot be written", f.Name))
			continue
		}

		lf, ok := byName[key]
		if !ok {
			if f.Required {
				problems = append(problems, fmt.Sprintf("required field %q does not exist in layer %q", f.Name, layer.Name))
				continue
			}
			plan.Dropped = append(plan.Dropped, f.Name)
			plan.dropped[f.Name] = true
			continue
		}
		if lf.Type == EsriOID || lf.Type == EsriGlobalID {
			problems = append(problems, fmt.Sprintf("%q is managed by the layer and cannot be written", lf.Name))
			continue
		}
		if !typeCompatible(f.Type, lf.Type) {
			problems = append(problems, fmt.Sprintf("field %q is %s in the layer, which cannot hold %s values", lf.Name, lf.Type, f.Type))
			continue
		}
		plan.Names[f.Name] = lf.Name
		plan.fields[f.Name] = lf
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaConformance, strings.Join(problems, "; "))
	}
	return plan, nil
}

func typeCompatible(t domain.FieldType, esriType string) bool {
	for _, c := range compatibleTypes[t] {
		if c == esriType {
			return true
		}
	}
	return false
}

// Apply rewrites f's attributes for the layer: keys follow the layer's
// spelling and dropped fields are removed. Values the layer field cannot
// hold are reported as type mismatches and f is left untouched.
func (p *LayerPlan) Apply(f *Feature) []ValidationError {
	var errs []ValidationError
	attrs := make(map[string]any, len(f.Attributes))
	for k, v := range f.Attributes {
		if p.dropped[k] {
			continue
		}
		lf, ok := p.fields[k]
		if !ok {
			attrs[k] = v
			continue
		}
		if msg := fieldLimit(lf, v); msg != "" {
			errs = append(errs, ValidationError{Field: k, Value: v, Reason: ReasonTypeMismatch, Message: msg})
			continue
		}
		attrs[lf.Name] = v
	}
	if len(errs) > 0 {
		slices.SortFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
		return errs
	}
	f.Attributes = attrs
	return nil
}

// fieldLimit returns why lf cannot store v, or "" when it can.
func fieldLimit(lf LayerField, v any) string {
	switch lf.Type {
	case EsriInteger:
		if n, ok := v.(int64); ok && (n < math.MinInt32 || n > math.MaxInt32) {
			return fmt.Sprintf("%d does not fit the 32-bit integer field %q", n, lf.Name)
		}
	case EsriSmallInteger:
		if n, ok := v.(int64); ok && (n < math.MinInt16 || n > math.MaxInt16) {
			return fmt.Sprintf("%d does not fit the 16-bit integer field %q", n, lf.Name)
		}
	case EsriSingle:
		if x, ok := v.(float64); ok && math.Abs(x) > math.MaxFloat32 {
			return fmt.Sprintf("%g does not fit the single precision field %q", x, lf.Name)
		}
	case EsriString, EsriGUID:
		if s, ok := v.(string); ok && lf.Length > 0 && utf8.RuneCountInString(s) > lf.Length {
			return fmt.Sprintf("expected text of at most %d characters for layer field %q", lf.Length, lf.Name)
		}
	}
	return ""
}
