package etl

import (
	"strconv"

	"github.com/paulmach/orb"

	"arcsync/internal/domain"
)

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records; the mapper turns them into MappedRecords and the
// geometry builder into Features, which destinations consume.

// Field describes a single layer field derived from a mapping.
type Field struct {
	Name   string           `json:"name"`
	Type   domain.FieldType `json:"type"`
	Alias  string           `json:"alias,omitempty"`
	Length int              `json:"length,omitempty"`

	// Required fields must exist in an existing layer.
	Required bool `json:"required,omitempty"`
}

// Schema describes the attribute shape of the features sent to a layer.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is a single raw row as read from the source.
type Record struct {
	// Row is the 1-based data row number (header excluded).
	Row  int            `json:"row"`
	Data map[string]any `json:"data"`
}

// MappedRecord is a record after renaming, dropping and coercion.
type MappedRecord struct {
	Row        int               `json:"row"`
	Attributes map[string]any    `json:"attributes"`
	Valid      bool              `json:"valid"`
	Errors     []ValidationError `json:"errors,omitempty"`
	Raw        Record            `json:"-"`
}

// Feature is a valid mapped record with its geometry.
type Feature struct {
	Row              int            `json:"row"`
	Attributes       map[string]any `json:"attributes"`
	Geometry         orb.Geometry   `json:"-"`
	SpatialReference int            `json:"spatialReference"`
}

// LayerField is a field as reported by a hosted layer.
type LayerField struct {
	Name   string `json:"name"`
	Type   string `json:"type"` // esriFieldType*
	Alias  string `json:"alias,omitempty"`
	Length int    `json:"length,omitempty"`
}

// LayerSpec is what the run asks a destination to provide.
type LayerSpec struct {
	Name             string
	Folder           string
	GeometryType     domain.GeometryType
	SpatialReference int
	Schema           *Schema
	Mode             domain.SyncMode
}

// LayerDescriptor identifies the layer features are published to.
type LayerDescriptor struct {
	ID               string              `json:"id"`  // portal item id
	URL              string              `json:"url"` // feature service URL
	LayerID          int                 `json:"layerId"`
	Name             string              `json:"name"`
	GeometryType     domain.GeometryType `json:"geometryType"`
	SpatialReference int                 `json:"spatialReference"`
	Fields           []LayerField        `json:"fields"`
	ObjectIDField    string              `json:"objectIdField,omitempty"`
	GlobalIDField    string              `json:"globalIdField,omitempty"`

	// Created is true when the layer did not exist before this run.
	Created bool `json:"created"`
}

// LayerURL returns the URL of the layer inside its service.
func (d *LayerDescriptor) LayerURL() string {
	if d.URL == "" {
		return ""
	}
	return d.URL + "/" + strconv.Itoa(d.LayerID)
}
