package etl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
)

// ── Destination ────────────────────────────────────────────
// A Destination makes sure the target layer exists and writes features into
// it. The hosted layer publisher lives in internal/arcgis; the GeoJSON
// writer below backs dry runs.

// Destination writes features to a target layer.
type Destination interface {
	// EnsureLayer returns the layer described by spec, creating it when it
	// does not exist yet.
	EnsureLayer(ctx context.Context, spec LayerSpec) (*LayerDescriptor, error)

	// Upload writes features and returns how many were accepted.
	Upload(ctx context.Context, layer *LayerDescriptor, features []Feature) (int, error)
}

// ── GeoJSON Destination ────────────────────────────────────

// GeoJSONWriter writes features to a GeoJSON FeatureCollection file instead
// of a hosted layer. With an empty Path nothing is written and Upload only
// counts the features.
type GeoJSONWriter struct {
	Path string
}

func (w *GeoJSONWriter) EnsureLayer(ctx context.Context, spec LayerSpec) (*LayerDescriptor, error) {
	layer := &LayerDescriptor{
		Name:             spec.Name,
		GeometryType:     spec.GeometryType,
		SpatialReference: spec.SpatialReference,
		Created:          true,
	}
	if w.Path != "" {
		layer.URL = "file://" + w.Path
	}
	if spec.Schema != nil {
		for _, f := range spec.Schema.Fields {
			layer.Fields = append(layer.Fields, LayerField{
				Name:   f.Name,
				Type:   EsriFieldType(f.Type),
				Alias:  f.Alias,
				Length: f.Length,
			})
		}
	}
	return layer, nil
}

func (w *GeoJSONWriter) Upload(ctx context.Context, layer *LayerDescriptor, features []Feature) (int, error) {
	if w.Path == "" {
		return len(features), nil
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		for k, v := range f.Attributes {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("encode geojson: %w", err)
	}

	if dir := filepath.Dir(w.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(w.Path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", w.Path, err)
	}
	return len(features), nil
}
