package arcgis

import (
	"context"
	"fmt"
	"strings"

	"arcsync/internal/domain"
	"arcsync/internal/etl"
	"arcsync/internal/logging"
)

// ── Publisher ──────────────────────────────────────────────
// Publisher is the hosted feature layer destination. It finds the layer's
// service by title and creates it when absent, then writes features in
// batches.

// Publisher implements etl.Destination against a portal.
type Publisher struct {
	client    *Client
	batchSize int
	mode      domain.SyncMode
}

// NewPublisher creates a publisher sending batchSize features per request.
func NewPublisher(client *Client, batchSize int) *Publisher {
	if batchSize <= 0 {
		batchSize = maxRecordCount
	}
	return &Publisher{client: client, batchSize: batchSize}
}

func (p *Publisher) ensureToken(ctx context.Context) error {
	if p.client.authenticated() {
		return nil
	}
	return p.client.Authenticate(ctx)
}

// EnsureLayer returns the layer for spec, creating its service when no
// Feature Service with that title exists.
func (p *Publisher) EnsureLayer(ctx context.Context, spec etl.LayerSpec) (*etl.LayerDescriptor, error) {
	p.mode = spec.Mode
	if err := p.ensureToken(ctx); err != nil {
		return nil, err
	}

	name := ServiceName(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("layer name %q has no usable characters", spec.Name)
	}
	log := logging.WithFields(ctx, "service", name)

	item, err := p.client.FindService(ctx, name)
	if err != nil {
		return nil, err
	}

	if item == nil {
		return p.create(ctx, spec, name)
	}

	log.Debug("found existing service", "item", item.ID, "url", item.URL)
	serviceURL := strings.TrimRight(item.URL, "/")
	info, err := p.client.LayerInfo(ctx, serviceURL+"/0")
	if err != nil {
		return nil, err
	}
	layer := descriptor(item.ID, serviceURL, info)
	if layer.GeometryType != spec.GeometryType {
		return nil, fmt.Errorf("%w: layer %q has geometry %s, settings ask for %s",
			etl.ErrSchemaConformance, spec.Name, info.GeometryType, spec.GeometryType)
	}
	return layer, nil
}

func (p *Publisher) create(ctx context.Context, spec etl.LayerSpec, name string) (*etl.LayerDescriptor, error) {
	log := logging.WithFields(ctx, "service", name)

	folderID, err := p.client.EnsureFolder(ctx, spec.Folder)
	if err != nil {
		return nil, err
	}

	svc, err := p.client.CreateService(ctx, name, folderID, spec.SpatialReference)
	if err != nil {
		return nil, err
	}
	log.Info("feature service created", "item", svc.ItemID, "folder", spec.Folder)

	serviceURL := strings.TrimRight(svc.ServiceURL, "/")
	if err := p.client.AddToDefinition(ctx, serviceURL, NewLayerDefinition(spec)); err != nil {
		return nil, err
	}

	info, err := p.client.LayerInfo(ctx, serviceURL+"/0")
	if err != nil {
		return nil, err
	}
	layer := descriptor(svc.ItemID, serviceURL, info)
	layer.Created = true
	if layer.SpatialReference == 0 {
		layer.SpatialReference = spec.SpatialReference
	}
	return layer, nil
}

func descriptor(itemID, serviceURL string, info *LayerInfo) *etl.LayerDescriptor {
	layer := &etl.LayerDescriptor{
		ID:               itemID,
		URL:              serviceURL,
		LayerID:          info.ID,
		Name:             info.Name,
		GeometryType:     geometryTypeFromEsri(info.GeometryType),
		SpatialReference: info.Extent.SpatialReference.ID(),
		ObjectIDField:    info.ObjectIDField,
		GlobalIDField:    info.GlobalIDField,
	}
	for _, f := range info.Fields {
		layer.Fields = append(layer.Fields, etl.LayerField{
			Name:   f.Name,
			Type:   f.Type,
			Alias:  f.Alias,
			Length: f.Length,
		})
	}
	return layer
}

// Upload writes features to layer. In replace mode an existing layer is
// emptied first. Any rejected feature fails the upload with ErrPublish
// after every batch has been sent.
func (p *Publisher) Upload(ctx context.Context, layer *etl.LayerDescriptor, features []etl.Feature) (int, error) {
	if err := p.ensureToken(ctx); err != nil {
		return 0, err
	}
	log := logging.WithFields(ctx, "layer", layer.Name)
	layerURL := layer.LayerURL()

	if p.mode == domain.SyncReplace && !layer.Created {
		deleted, err := p.client.DeleteAll(ctx, layerURL)
		if err != nil {
			return 0, err
		}
		log.Info("existing features deleted", "count", deleted)
	}

	encoded, err := EncodeFeatures(features)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	added := 0
	var failures []string
	for start := 0; start < len(encoded); start += p.batchSize {
		end := min(start+p.batchSize, len(encoded))
		res, err := p.client.AddFeatures(ctx, layerURL, encoded[start:end])
		if err != nil {
			return added, err
		}
		added += res.Added
		failures = append(failures, res.Failures...)
		log.Debug("batch uploaded", "from", start, "to", end, "added", res.Added, "failed", len(res.Failures))
	}

	if len(failures) > 0 {
		return added, fmt.Errorf("%w: %d adds failed, first error: %s", ErrPublish, len(failures), failures[0])
	}

	if count, err := p.client.Count(ctx, layerURL); err != nil {
		log.Warn("could not verify layer count", "error", err)
	} else {
		log.Info("layer feature count", "count", count)
	}
	return added, nil
}
