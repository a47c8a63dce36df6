package etl

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/paulmach/orb/geojson"

	"arcsync/internal/logging"
)

// ── Sync ───────────────────────────────────────────────────
// Orchestrates: source.Read → mapper → geometry builder →
// destination.EnsureLayer → conformance check → destination.Upload.
// One pass, one bounded dataset.

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RunSummary is the outcome of one run. Counts are filled in as far as the
// run got, also when it failed.
type RunSummary struct {
	Status   string           `json:"status"`
	Read     int              `json:"read"`
	Valid    int              `json:"valid"`
	Invalid  int              `json:"invalid"`
	Uploaded int              `json:"uploaded"`
	Rejected []MappedRecord   `json:"-"`
	Layer    *LayerDescriptor `json:"layer,omitempty"`
	Duration time.Duration    `json:"duration"`
	Error    string           `json:"error,omitempty"`
}

// RunLog is a historical record of a run.
type RunLog struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Layer      string    `json:"layer"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     string    `json:"status"`
	Read       int       `json:"read"`
	Valid      int       `json:"valid"`
	Invalid    int       `json:"invalid"`
	Uploaded   int       `json:"uploaded"`
	Error      string    `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs the pipeline for one configured dataset.
type Engine struct {
	Source  Source
	Mapper  *Mapper
	Builder *GeometryBuilder
	Dest    Destination

	// Layer describes the target; its Schema is derived from the mapper.
	Layer LayerSpec
}

// Run executes the pipeline end-to-end. A returned error is fatal; the
// summary is still returned with whatever counts were reached.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	log := logging.WithFields(ctx, "source", e.Source.Name(), "layer", e.Layer.Name)
	summary := &RunSummary{}
	fail := func(err error) (*RunSummary, error) {
		summary.Status = StatusError
		summary.Error = err.Error()
		summary.Duration = time.Since(start)
		return summary, err
	}

	// 1. Read + map + build.
	log.Info("reading source")
	features, accepted, err := e.collect(ctx, summary)
	if err != nil {
		return fail(err)
	}
	log.Info("records processed",
		"read", summary.Read, "valid", summary.Valid, "invalid", summary.Invalid)

	// 2. Make sure the layer exists and accepts our fields.
	spec := e.Layer
	spec.Schema = e.Mapper.Schema()
	layer, err := e.Dest.EnsureLayer(ctx, spec)
	if err != nil {
		return fail(fmt.Errorf("ensure layer: %w", err))
	}
	summary.Layer = layer
	if layer.Created {
		log.Info("layer created", "url", layer.URL)
	} else {
		log.Info("using existing layer", "url", layer.URL)
	}

	plan, err := CheckConformance(spec.Schema, layer)
	if err != nil {
		return fail(err)
	}
	if len(plan.Dropped) > 0 {
		log.Warn("fields missing from layer are not uploaded", "fields", plan.Dropped)
	}
	features = e.fitToLayer(ctx, plan, features, accepted, summary)

	// 3. Upload.
	if len(features) == 0 {
		log.Warn("no valid features to upload")
	} else {
		uploaded, err := e.Dest.Upload(ctx, layer, features)
		summary.Uploaded = uploaded
		if err != nil {
			return fail(fmt.Errorf("upload: %w", err))
		}
	}

	summary.Status = StatusSuccess
	summary.Duration = time.Since(start)
	log.Info("run finished", "uploaded", summary.Uploaded, "duration", summary.Duration)
	return summary, nil
}

// collect drains the source, mapping and building every record. Invalid
// records are kept on the summary with their reasons; accepted[i] is the
// mapped record behind features[i].
func (e *Engine) collect(ctx context.Context, summary *RunSummary) (features []Feature, accepted []MappedRecord, err error) {
	log := logging.FromContext(ctx)
	recCh, errCh := e.Source.Read(ctx)

	for rec := range recCh {
		summary.Read++
		f, mapped, ok := e.process(rec)
		if !ok {
			summary.Invalid++
			summary.Rejected = append(summary.Rejected, mapped)
			log.Warn("record rejected", "row", mapped.Row, "reasons", JoinReasons(mapped.Errors))
			continue
		}
		summary.Valid++
		features = append(features, f)
		accepted = append(accepted, mapped)
	}

	if err := <-errCh; err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", e.Source.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return features, accepted, nil
}

// fitToLayer applies plan to every feature. Features holding a value the
// layer cannot store are moved to the rejected records, so a single bad
// value never takes its whole addFeatures batch down.
func (e *Engine) fitToLayer(ctx context.Context, plan *LayerPlan, features []Feature, accepted []MappedRecord, summary *RunSummary) []Feature {
	log := logging.FromContext(ctx)
	kept := features[:0]
	rejected := false
	for i := range features {
		errs := plan.Apply(&features[i])
		if len(errs) == 0 {
			kept = append(kept, features[i])
			continue
		}
		mapped := accepted[i]
		mapped.Valid = false
		mapped.Errors = append(mapped.Errors, errs...)
		summary.Valid--
		summary.Invalid++
		summary.Rejected = append(summary.Rejected, mapped)
		rejected = true
		log.Warn("record rejected", "row", mapped.Row, "reasons", JoinReasons(mapped.Errors))
	}
	if rejected {
		slices.SortStableFunc(summary.Rejected, func(a, b MappedRecord) int { return cmp.Compare(a.Row, b.Row) })
	}
	return kept
}

// process maps and builds one record. On failure the returned MappedRecord
// carries every reason and Valid is false.
func (e *Engine) process(rec Record) (Feature, MappedRecord, bool) {
	mapped := e.Mapper.Map(rec)
	if !mapped.Valid {
		return Feature{}, mapped, false
	}
	f, errs := e.Builder.Build(mapped)
	if len(errs) > 0 {
		mapped.Valid = false
		mapped.Errors = append(mapped.Errors, errs...)
		return Feature{}, mapped, false
	}
	return f, mapped, true
}

// PreviewRow is one record as the pipeline would see it.
type PreviewRow struct {
	Row        int               `json:"row"`
	Valid      bool              `json:"valid"`
	Attributes map[string]any    `json:"attributes"`
	Geometry   *geojson.Geometry `json:"geometry,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
}

// Preview reads up to maxRows records and maps and builds them without
// touching the destination.
func (e *Engine) Preview(ctx context.Context, maxRows int) ([]PreviewRow, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recCh, errCh := e.Source.Read(ctx)

	var rows []PreviewRow
	for rec := range recCh {
		f, mapped, ok := e.process(rec)
		row := PreviewRow{Row: rec.Row, Valid: ok, Attributes: mapped.Attributes, Errors: mapped.Errors}
		if ok {
			row.Attributes = f.Attributes
			row.Geometry = geojson.NewGeometry(f.Geometry)
		}
		rows = append(rows, row)
		if len(rows) >= maxRows {
			break
		}
	}

	// Stop the source and drain what it already queued.
	cancel()
	for range recCh {
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return rows, fmt.Errorf("read %s: %w", e.Source.Name(), err)
	}
	return rows, nil
}
