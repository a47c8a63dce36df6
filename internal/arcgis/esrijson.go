package arcgis

import (
	"fmt"

	"github.com/paulmach/orb"

	"arcsync/internal/domain"
	"arcsync/internal/etl"
)

// Esri geometry type names.
const (
	esriGeometryPoint    = "esriGeometryPoint"
	esriGeometryPolygon  = "esriGeometryPolygon"
	esriGeometryPolyline = "esriGeometryPolyline"
)

func esriGeometryType(t domain.GeometryType) string {
	switch t {
	case domain.GeometryPolygon:
		return esriGeometryPolygon
	case domain.GeometryPolyline:
		return esriGeometryPolyline
	default:
		return esriGeometryPoint
	}
}

// geometryTypeFromEsri maps a layer's geometryType back; unknown types
// return "".
func geometryTypeFromEsri(t string) domain.GeometryType {
	switch t {
	case esriGeometryPoint:
		return domain.GeometryPoint
	case esriGeometryPolygon:
		return domain.GeometryPolygon
	case esriGeometryPolyline:
		return domain.GeometryPolyline
	default:
		return ""
	}
}

// Geometry is an Esri JSON geometry. Exactly one of the point coordinates,
// Paths or Rings is set.
type Geometry struct {
	X                *float64       `json:"x,omitempty"`
	Y                *float64       `json:"y,omitempty"`
	Paths            [][][2]float64 `json:"paths,omitempty"`
	Rings            [][][2]float64 `json:"rings,omitempty"`
	SpatialReference spatialRef     `json:"spatialReference"`
}

// Feature is an Esri JSON feature as sent to addFeatures.
type Feature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *Geometry      `json:"geometry"`
}

// EncodeGeometry converts g into Esri JSON. Polygon outer rings are written
// clockwise and holes counter-clockwise.
func EncodeGeometry(g orb.Geometry, wkid int) (*Geometry, error) {
	out := &Geometry{SpatialReference: spatialRef{WKID: wkid}}
	switch v := g.(type) {
	case orb.Point:
		x, y := v.X(), v.Y()
		out.X, out.Y = &x, &y
	case orb.LineString:
		out.Paths = [][][2]float64{path(v)}
	case orb.MultiLineString:
		for _, ls := range v {
			out.Paths = append(out.Paths, path(ls))
		}
	case orb.Polygon:
		out.Rings = polygonRings(v)
	case orb.MultiPolygon:
		for _, p := range v {
			out.Rings = append(out.Rings, polygonRings(p)...)
		}
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
	return out, nil
}

func path[T ~[]orb.Point](pts T) [][2]float64 {
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{p[0], p[1]}
	}
	return out
}

func polygonRings(p orb.Polygon) [][][2]float64 {
	rings := make([][][2]float64, 0, len(p))
	for i, r := range p {
		want := orb.CW
		if i > 0 {
			want = orb.CCW
		}
		if o := r.Orientation(); o != 0 && o != want {
			r = r.Clone()
			r.Reverse()
		}
		rings = append(rings, path(r))
	}
	return rings
}

// EncodeFeatures converts pipeline features into Esri JSON features.
func EncodeFeatures(features []etl.Feature) ([]Feature, error) {
	out := make([]Feature, len(features))
	for i, f := range features {
		g, err := EncodeGeometry(f.Geometry, f.SpatialReference)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", f.Row, err)
		}
		out[i] = Feature{Attributes: f.Attributes, Geometry: g}
	}
	return out, nil
}
