package etl

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"arcsync/internal/config"
	"arcsync/internal/domain"
)

// ── Geometry Builder ───────────────────────────────────────
// Turns a valid mapped record into a Feature. Points come from two numeric
// attributes, polygons and polylines from one coordinates attribute holding
// a JSON vertex array, a GeoJSON geometry or WKT. Coordinates are never
// reprojected; the configured spatial reference is attached as-is.

// WGS84 is the geographic spatial reference whose bounds are enforced for
// polygon and polyline vertices.
const WGS84 = 4326

// GeometryBuilder builds features of one geometry type.
type GeometryBuilder struct {
	Type             domain.GeometryType
	SpatialReference int
	LatitudeField    string
	LongitudeField   string
	CoordinatesField string
}

// NewGeometryBuilder configures a builder from the run settings.
func NewGeometryBuilder(cfg *config.Config) *GeometryBuilder {
	return &GeometryBuilder{
		Type:             cfg.ArcGIS.GeometryType,
		SpatialReference: cfg.ArcGIS.SpatialReference,
		LatitudeField:    cfg.Geometry.LatitudeField,
		LongitudeField:   cfg.Geometry.LongitudeField,
		CoordinatesField: cfg.Geometry.CoordinatesField,
	}
}

// Build returns the feature for m, or the reasons it has no valid geometry.
// m is not modified.
func (b *GeometryBuilder) Build(m MappedRecord) (Feature, []ValidationError) {
	var (
		g    orb.Geometry
		verr *ValidationError
	)
	switch b.Type {
	case domain.GeometryPoint:
		g, verr = b.point(m.Attributes)
	case domain.GeometryPolygon, domain.GeometryPolyline:
		g, verr = b.shape(m.Attributes[b.CoordinatesField])
	default:
		verr = &ValidationError{Reason: ReasonInvalidGeometry, Message: fmt.Sprintf("unsupported geometry type %q", b.Type)}
	}
	if verr != nil {
		return Feature{}, []ValidationError{*verr}
	}

	attrs := make(map[string]any, len(m.Attributes))
	for k, v := range m.Attributes {
		if b.CoordinatesField != "" && k == b.CoordinatesField {
			continue
		}
		attrs[k] = v
	}
	return Feature{
		Row:              m.Row,
		Attributes:       attrs,
		Geometry:         g,
		SpatialReference: b.SpatialReference,
	}, nil
}

func (b *GeometryBuilder) point(attrs map[string]any) (orb.Geometry, *ValidationError) {
	lat, latOK := attrs[b.LatitudeField].(float64)
	lon, lonOK := attrs[b.LongitudeField].(float64)
	switch {
	case !latOK:
		return nil, badCoordinates(b.LatitudeField, attrs[b.LatitudeField], "latitude is missing or not numeric")
	case !lonOK:
		return nil, badCoordinates(b.LongitudeField, attrs[b.LongitudeField], "longitude is missing or not numeric")
	case math.IsNaN(lat) || lat < -90 || lat > 90:
		return nil, badCoordinates(b.LatitudeField, lat, "latitude must be within [-90, 90]")
	case math.IsNaN(lon) || lon < -180 || lon > 180:
		return nil, badCoordinates(b.LongitudeField, lon, "longitude must be within [-180, 180]")
	}
	return orb.Point{lon, lat}, nil
}

func (b *GeometryBuilder) shape(raw any) (orb.Geometry, *ValidationError) {
	field := b.CoordinatesField
	if isBlank(raw) {
		return nil, badGeometry(field, raw, "no coordinates")
	}

	sh, err := b.parse(raw)
	if err != nil {
		if errors.Is(err, errBadVertex) {
			return nil, badCoordinates(field, raw, err.Error())
		}
		return nil, badGeometry(field, raw, err.Error())
	}
	if len(sh.parts) == 0 {
		return nil, badGeometry(field, raw, "no coordinates")
	}

	for _, part := range sh.parts {
		if err := b.checkVertices(part); err != nil {
			return nil, badCoordinates(field, raw, err.Error())
		}
		if n := distinctVertices(part); n < b.Type.MinVertices() {
			return nil, badGeometry(field, raw,
				fmt.Sprintf("%s needs at least %d distinct vertices, got %d", b.Type, b.Type.MinVertices(), n))
		}
	}

	if b.Type == domain.GeometryPolyline {
		if len(sh.parts) == 1 {
			return orb.LineString(sh.parts[0]), nil
		}
		mls := make(orb.MultiLineString, len(sh.parts))
		for i, p := range sh.parts {
			mls[i] = orb.LineString(p)
		}
		return mls, nil
	}
	return sh.polygon(), nil
}

// errBadVertex marks failures of an individual vertex rather than of the
// overall structure.
var errBadVertex = errors.New("bad vertex")

// parsedShape is a decoded coordinates value: one vertex list per ring or
// path. polygonSizes holds the ring count of each polygon when the input was
// a MultiPolygon.
type parsedShape struct {
	parts        [][]orb.Point
	polygonSizes []int
}

func (b *GeometryBuilder) parse(raw any) (parsedShape, error) {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		switch {
		case strings.HasPrefix(s, "["):
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return parsedShape{}, fmt.Errorf("malformed coordinate array: %v", err)
			}
			return partsFromArray(decoded)
		case strings.HasPrefix(s, "{"):
			return b.fromGeoJSON([]byte(s))
		default:
			g, err := wkt.Unmarshal(s)
			if err != nil {
				return parsedShape{}, fmt.Errorf("unrecognized coordinates: %v", err)
			}
			return b.fromGeometry(g)
		}
	case []any:
		return partsFromArray(v)
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return parsedShape{}, fmt.Errorf("malformed GeoJSON geometry: %v", err)
		}
		return b.fromGeoJSON(data)
	case orb.Geometry:
		return b.fromGeometry(v)
	}
	return parsedShape{}, fmt.Errorf("unsupported coordinates value of type %T", raw)
}

func (b *GeometryBuilder) fromGeoJSON(data []byte) (parsedShape, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return parsedShape{}, fmt.Errorf("malformed GeoJSON geometry: %v", err)
	}
	return b.fromGeometry(g.Geometry())
}

// partsFromArray accepts [[x,y],...] or [[[x,y],...],...].
func partsFromArray(v any) (parsedShape, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return parsedShape{}, errors.New("coordinates must be a non-empty array")
	}
	if first, ok := arr[0].([]any); ok && len(first) > 0 {
		if _, nested := first[0].([]any); nested {
			var sh parsedShape
			for _, p := range arr {
				pts, err := pointsFromArray(p)
				if err != nil {
					return parsedShape{}, err
				}
				sh.parts = append(sh.parts, pts)
			}
			return sh, nil
		}
	}
	pts, err := pointsFromArray(arr)
	if err != nil {
		return parsedShape{}, err
	}
	return parsedShape{parts: [][]orb.Point{pts}}, nil
}

func pointsFromArray(v any) ([]orb.Point, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, errors.New("coordinates must be an array of [x, y] pairs")
	}
	pts := make([]orb.Point, 0, len(arr))
	for i, item := range arr {
		pair, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("vertex %d is not an [x, y] pair", i)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: vertex %d has %d values, want 2", errBadVertex, i, len(pair))
		}
		x, okX := pairValue(pair[0])
		y, okY := pairValue(pair[1])
		if !okX || !okY {
			return nil, fmt.Errorf("%w: vertex %d is not numeric", errBadVertex, i)
		}
		pts = append(pts, orb.Point{x, y})
	}
	return pts, nil
}

func pairValue(v any) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return coerceDouble(v)
}

func (b *GeometryBuilder) fromGeometry(g orb.Geometry) (parsedShape, error) {
	if g == nil {
		return parsedShape{}, errors.New("empty geometry")
	}
	if b.Type == domain.GeometryPolygon {
		switch gg := g.(type) {
		case orb.Polygon:
			return parsedShape{parts: ringsOf(gg)}, nil
		case orb.MultiPolygon:
			var sh parsedShape
			for _, p := range gg {
				sh.parts = append(sh.parts, ringsOf(p)...)
				sh.polygonSizes = append(sh.polygonSizes, len(p))
			}
			return sh, nil
		case orb.Ring:
			return parsedShape{parts: [][]orb.Point{gg}}, nil
		}
	} else {
		switch gg := g.(type) {
		case orb.LineString:
			return parsedShape{parts: [][]orb.Point{gg}}, nil
		case orb.MultiLineString:
			parts := make([][]orb.Point, len(gg))
			for i, ls := range gg {
				parts[i] = ls
			}
			return parsedShape{parts: parts}, nil
		}
	}
	return parsedShape{}, fmt.Errorf("%s geometry cannot be used for a %s layer", g.GeoJSONType(), b.Type)
}

func ringsOf(p orb.Polygon) [][]orb.Point {
	parts := make([][]orb.Point, len(p))
	for i, r := range p {
		parts[i] = r
	}
	return parts
}

func (b *GeometryBuilder) checkVertices(pts []orb.Point) error {
	for i, p := range pts {
		x, y := p.X(), p.Y()
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return fmt.Errorf("vertex %d is not finite", i)
		}
		if b.SpatialReference == WGS84 && (x < -180 || x > 180 || y < -90 || y > 90) {
			return fmt.Errorf("vertex %d (%g, %g) is outside longitude/latitude bounds", i, x, y)
		}
	}
	return nil
}

func distinctVertices(pts []orb.Point) int {
	seen := make(map[orb.Point]struct{}, len(pts))
	for _, p := range pts {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// polygon closes every ring (appending the first vertex when the last one
// differs) and groups rings back into polygons.
func (sh parsedShape) polygon() orb.Geometry {
	rings := make([]orb.Ring, len(sh.parts))
	for i, p := range sh.parts {
		r := make(orb.Ring, len(p), len(p)+1)
		copy(r, p)
		if r[0] != r[len(r)-1] {
			r = append(r, r[0])
		}
		rings[i] = r
	}

	if len(sh.polygonSizes) == 0 {
		return orb.Polygon(rings)
	}
	out := make(orb.MultiPolygon, 0, len(sh.polygonSizes))
	idx := 0
	for _, n := range sh.polygonSizes {
		out = append(out, orb.Polygon(rings[idx:idx+n]))
		idx += n
	}
	return out
}

func badCoordinates(field string, value any, msg string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: ReasonInvalidCoordinates, Message: msg}
}

func badGeometry(field string, value any, msg string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: ReasonInvalidGeometry, Message: msg}
}
