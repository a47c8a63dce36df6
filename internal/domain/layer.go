package domain

// SourceKind selects where records are read from.
type SourceKind string

const (
	SourceCSV SourceKind = "csv"
	SourceDB  SourceKind = "db"
)

func (k SourceKind) Valid() bool {
	return k == SourceCSV || k == SourceDB
}

// GeometryType is the shape every feature of a layer carries.
type GeometryType string

const (
	GeometryPoint    GeometryType = "point"
	GeometryPolygon  GeometryType = "polygon"
	GeometryPolyline GeometryType = "polyline"
)

func (g GeometryType) Valid() bool {
	switch g {
	case GeometryPoint, GeometryPolygon, GeometryPolyline:
		return true
	}
	return false
}

// MinVertices is the number of distinct vertices a shape of this type needs.
func (g GeometryType) MinVertices() int {
	switch g {
	case GeometryPolygon:
		return 3
	case GeometryPolyline:
		return 2
	default:
		return 1
	}
}

// FieldType is the declared type of a mapped field.
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldInteger     FieldType = "integer"
	FieldDouble      FieldType = "double"
	FieldDate        FieldType = "date"
	FieldBoolean     FieldType = "boolean"
	FieldCoordinates FieldType = "coordinates" // raw vertex list consumed by the geometry builder
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldInteger, FieldDouble, FieldDate, FieldBoolean, FieldCoordinates:
		return true
	}
	return false
}

// SyncMode determines how features are written to an existing layer.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // delete all existing features, insert fresh
	SyncAppend  SyncMode = "append"  // add features without deleting existing
)

func (m SyncMode) Valid() bool {
	return m == SyncReplace || m == SyncAppend
}
