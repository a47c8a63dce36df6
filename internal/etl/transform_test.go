package etl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcsync/internal/config"
	"arcsync/internal/domain"
)

func siteMappings() []config.FieldMapping {
	return []config.FieldMapping{
		{Source: "site_name", Name: "name", Type: domain.FieldString, Required: true, Length: 20},
		{Source: "visitors", Type: domain.FieldInteger},
		{Source: "lat", Name: "latitude", Type: domain.FieldDouble, Required: true},
		{Source: "lon", Name: "longitude", Type: domain.FieldDouble, Required: true},
		{Source: "opened", Type: domain.FieldDate},
		{Source: "staffed", Type: domain.FieldBoolean},
	}
}

func TestMapper_RenamesCoercesAndDrops(t *testing.T) {
	m := NewMapper(siteMappings())
	out := m.Map(Record{Row: 1, Data: map[string]any{
		"site_name": "  Harbor Park ",
		"visitors":  "1,204",
		"lat":       "40.7",
		"lon":       "-73.9",
		"opened":    "2024-05-01",
		"staffed":   "yes",
		"internal":  "drop me",
	}})

	require.True(t, out.Valid, "errors: %v", out.Errors)
	assert.Equal(t, 1, out.Row)
	assert.Equal(t, map[string]any{
		"name":      "Harbor Park",
		"visitors":  int64(1204),
		"latitude":  40.7,
		"longitude": -73.9,
		"opened":    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		"staffed":   int64(1),
	}, out.Attributes)
	assert.NotContains(t, out.Attributes, "internal")
	assert.NotContains(t, out.Attributes, "site_name")
}

func TestMapper_OptionalMissingIsNull(t *testing.T) {
	m := NewMapper(siteMappings())
	out := m.Map(Record{Row: 2, Data: map[string]any{
		"site_name": "Pier",
		"lat":       40.0,
		"lon":       -74.0,
		"visitors":  "",
	}})

	require.True(t, out.Valid)
	assert.Contains(t, out.Attributes, "visitors")
	assert.Nil(t, out.Attributes["visitors"])
	assert.Nil(t, out.Attributes["opened"])
	assert.Nil(t, out.Attributes["staffed"])
}

func TestMapper_MissingRequired(t *testing.T) {
	m := NewMapper(siteMappings())
	out := m.Map(Record{Row: 3, Data: map[string]any{
		"site_name": "   ",
		"lon":       -74.0,
	}})

	assert.False(t, out.Valid)
	require.Len(t, out.Errors, 2)
	assert.Equal(t, "name", out.Errors[0].Field)
	assert.Equal(t, ReasonMissingRequired, out.Errors[0].Reason)
	assert.Equal(t, "latitude", out.Errors[1].Field)
	assert.Equal(t, ReasonMissingRequired, out.Errors[1].Reason)
}

func TestMapper_TypeMismatchKeepsOriginalValue(t *testing.T) {
	m := NewMapper(siteMappings())
	out := m.Map(Record{Row: 4, Data: map[string]any{
		"site_name": "Pier",
		"lat":       "north",
		"lon":       -74.0,
		"visitors":  "12.5",
		"opened":    "someday",
		"staffed":   "maybe",
	}})

	assert.False(t, out.Valid)
	byField := map[string]ValidationError{}
	for _, e := range out.Errors {
		byField[e.Field] = e
	}
	require.Len(t, byField, 4)
	assert.Equal(t, ReasonTypeMismatch, byField["latitude"].Reason)
	assert.Equal(t, "north", byField["latitude"].Value)
	assert.Equal(t, "12.5", byField["visitors"].Value)
	assert.Equal(t, "someday", byField["opened"].Value)
	assert.Equal(t, "maybe", byField["staffed"].Value)
}

func TestMapper_StringTooLong(t *testing.T) {
	m := NewMapper(siteMappings())
	out := m.Map(Record{Row: 5, Data: map[string]any{
		"site_name": "A name that is much longer than twenty characters",
		"lat":       1.0,
		"lon":       1.0,
	}})
	require.Len(t, out.Errors, 1)
	assert.Equal(t, ReasonTypeMismatch, out.Errors[0].Reason)
	assert.Contains(t, out.Errors[0].Message, "at most 20 characters")
}

func TestMapper_DoesNotMutateInput(t *testing.T) {
	m := NewMapper(siteMappings())
	data := map[string]any{"site_name": "Pier", "lat": "1", "lon": "2"}
	m.Map(Record{Row: 1, Data: data})
	assert.Equal(t, map[string]any{"site_name": "Pier", "lat": "1", "lon": "2"}, data)
}

func TestMapper_Schema(t *testing.T) {
	mappings := append(siteMappings(), config.FieldMapping{Source: "wkt", Name: "coordinates", Type: domain.FieldCoordinates})
	s := NewMapper(mappings).Schema()
	assert.Equal(t, []string{"name", "visitors", "latitude", "longitude", "opened", "staffed"}, s.FieldNames())
	assert.Equal(t, 20, s.Fields[0].Length)
	assert.True(t, s.Fields[0].Required)
	assert.False(t, s.Fields[1].Required)
}

func TestMapper_IntegerOutside32BitsIsMismatch(t *testing.T) {
	m := NewMapper([]config.FieldMapping{{Source: "n", Type: domain.FieldInteger}})
	for _, in := range []any{"3000000000", int64(-2147483649), 4.5e9} {
		out := m.Map(Record{Row: 1, Data: map[string]any{"n": in}})
		require.False(t, out.Valid, "input %v", in)
		require.Len(t, out.Errors, 1)
		assert.Equal(t, ReasonTypeMismatch, out.Errors[0].Reason)
		assert.Equal(t, in, out.Errors[0].Value)
	}

	out := m.Map(Record{Row: 1, Data: map[string]any{"n": "2147483647"}})
	require.True(t, out.Valid)
	assert.Equal(t, int64(2147483647), out.Attributes["n"])
}

func TestCoerceInteger(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{" -7 ", -7, true},
		{"3.0", 3, true},
		{"1,000", 1000, true},
		{42.0, 42, true},
		{int32(9), 9, true},
		{"3.5", 0, false},
		{"abc", 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := coerceInteger(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %v", tt.in)
		}
	}
}

func TestCoerceDouble(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{"40.7128", 40.7128, true},
		{"-73.5", -73.5, true},
		{"1e3", 1000, true},
		{int64(5), 5, true},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"12 degrees", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := coerceDouble(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "input %v", tt.in)
		}
	}
}

func TestCoerceDate(t *testing.T) {
	want := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC).UnixMilli()
	for _, in := range []string{"2024-03-09", "03/09/2024", "20240309", "Mar 9, 2024"} {
		got, ok := coerceDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := coerceDate("2024-03-09T12:30:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC).UnixMilli(), got)

	got, ok = coerceDate("01.02.2024")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), got, "dotted dates are day first")
	got, ok = coerceDate("31.12.2024")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC).UnixMilli(), got)
	got, ok = coerceDate("9.3.24")
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = coerceDate("not a date")
	assert.False(t, ok)
	_, ok = coerceDate(20240309)
	assert.False(t, ok)
}

func TestCoerceBoolean(t *testing.T) {
	for _, in := range []any{true, "TRUE", "y", "1", 1, 1.0} {
		got, ok := coerceBoolean(in)
		require.True(t, ok, "%v", in)
		assert.Equal(t, int64(1), got, "%v", in)
	}
	for _, in := range []any{false, "no", "F", 0} {
		got, ok := coerceBoolean(in)
		require.True(t, ok, "%v", in)
		assert.Equal(t, int64(0), got, "%v", in)
	}
	for _, in := range []any{"maybe", 2, 0.5} {
		_, ok := coerceBoolean(in)
		assert.False(t, ok, "%v", in)
	}
}

func TestCoerceString(t *testing.T) {
	s, ok := coerceString(12.5, 0)
	require.True(t, ok)
	assert.Equal(t, "12.5", s)

	s, ok = coerceString(int64(7), 0)
	require.True(t, ok)
	assert.Equal(t, "7", s)

	_, ok = coerceString("toolong", 3)
	assert.False(t, ok)

	_, ok = coerceString([]int{1}, 0)
	assert.False(t, ok)
}
