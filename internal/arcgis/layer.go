package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"arcsync/internal/etl"
)

const objectIDField = "OBJECTID"

// FieldInfo is a field in a layer definition or layer info response.
type FieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Alias    string `json:"alias,omitempty"`
	Length   int    `json:"length,omitempty"`
	Nullable bool   `json:"nullable"`
	Editable bool   `json:"editable"`
}

// LayerInfo is the subset of a layer's JSON description the publisher uses.
type LayerInfo struct {
	ID            int         `json:"id"`
	Name          string      `json:"name"`
	GeometryType  string      `json:"geometryType"`
	ObjectIDField string      `json:"objectIdField"`
	GlobalIDField string      `json:"globalIdField"`
	Fields        []FieldInfo `json:"fields"`
	Extent        extent      `json:"extent"`
}

type LayerDefinition struct {
	Layers []LayerDef `json:"layers"`
}

type LayerDef struct {
	ID             int         `json:"id"`
	Name           string      `json:"name"`
	Type           string      `json:"type"`
	GeometryType   string      `json:"geometryType"`
	ObjectIDField  string      `json:"objectIdField"`
	DisplayField   string      `json:"displayField,omitempty"`
	Fields         []FieldInfo `json:"fields"`
	Extent         extent      `json:"extent"`
	Capabilities   string      `json:"capabilities"`
	MaxRecordCount int         `json:"maxRecordCount"`
	HasAttachments bool        `json:"hasAttachments"`
}

// AdminURL returns the admin endpoint of a hosted feature service.
func AdminURL(serviceURL string) string {
	return strings.Replace(serviceURL, "/rest/services/", "/rest/admin/services/", 1)
}

// NewLayerDefinition builds the single-layer definition for spec with an
// OBJECTID field in front of the mapped fields.
func NewLayerDefinition(spec etl.LayerSpec) LayerDefinition {
	fields := []FieldInfo{{
		Name:  objectIDField,
		Type:  etl.EsriOID,
		Alias: objectIDField,
	}}
	var display string
	if spec.Schema != nil {
		for _, f := range spec.Schema.Fields {
			fi := FieldInfo{
				Name:     f.Name,
				Type:     etl.EsriFieldType(f.Type),
				Alias:    f.Alias,
				Nullable: true,
				Editable: true,
			}
			if fi.Alias == "" {
				fi.Alias = f.Name
			}
			if fi.Type == etl.EsriString {
				fi.Length = f.Length
				if display == "" {
					display = f.Name
				}
			}
			fields = append(fields, fi)
		}
	}

	return LayerDefinition{Layers: []LayerDef{{
		ID:             0,
		Name:           spec.Name,
		Type:           "Feature Layer",
		GeometryType:   esriGeometryType(spec.GeometryType),
		ObjectIDField:  objectIDField,
		DisplayField:   display,
		Fields:         fields,
		Extent:         worldExtent(4326),
		Capabilities:   serviceCapabilities,
		MaxRecordCount: maxRecordCount,
	}}}
}

// AddToDefinition adds the layers in def to the service at serviceURL.
func (c *Client) AddToDefinition(ctx context.Context, serviceURL string, def LayerDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode layer definition: %w", err)
	}
	var resp struct {
		Success bool `json:"success"`
	}
	endpoint := AdminURL(serviceURL) + "/addToDefinition"
	if err := c.post(ctx, endpoint, url.Values{"addToDefinition": {string(raw)}}, &resp); err != nil {
		return fmt.Errorf("add layer definition: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("add layer definition: service did not confirm")
	}
	return nil
}

// LayerInfo fetches the description of the layer at layerURL.
func (c *Client) LayerInfo(ctx context.Context, layerURL string) (*LayerInfo, error) {
	var info LayerInfo
	if err := c.get(ctx, layerURL, nil, &info); err != nil {
		return nil, fmt.Errorf("layer info: %w", err)
	}
	return &info, nil
}

type editResult struct {
	ObjectID int64      `json:"objectId"`
	Success  bool       `json:"success"`
	Error    *editError `json:"error"`
}

// AddResult summarizes one addFeatures call.
type AddResult struct {
	Added    int
	Failures []string
}

// AddFeatures sends one batch of features. Per-feature failures are
// reported in the result, not as an error.
func (c *Client) AddFeatures(ctx context.Context, layerURL string, features []Feature) (*AddResult, error) {
	raw, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	params := url.Values{
		"features":          {string(raw)},
		"rollbackOnFailure": {"true"},
	}
	var resp struct {
		AddResults []editResult `json:"addResults"`
	}
	if err := c.post(ctx, layerURL+"/addFeatures", params, &resp); err != nil {
		return nil, fmt.Errorf("add features: %w", err)
	}

	res := &AddResult{}
	for _, r := range resp.AddResults {
		if r.Success {
			res.Added++
			continue
		}
		res.Failures = append(res.Failures, r.Error.String())
	}
	// A batch the service silently dropped is still a failure.
	if missing := len(features) - len(resp.AddResults); missing > 0 {
		res.Failures = append(res.Failures, fmt.Sprintf("%d features missing from response", missing))
	}
	return res, nil
}

// DeleteAll removes every feature of the layer and returns how many were
// deleted.
func (c *Client) DeleteAll(ctx context.Context, layerURL string) (int, error) {
	params := url.Values{
		"where":             {"1=1"},
		"rollbackOnFailure": {"true"},
	}
	var resp struct {
		DeleteResults []editResult `json:"deleteResults"`
		Success       *bool        `json:"success"`
	}
	if err := c.post(ctx, layerURL+"/deleteFeatures", params, &resp); err != nil {
		return 0, fmt.Errorf("delete features: %w", err)
	}
	if resp.Success != nil && !*resp.Success {
		return 0, fmt.Errorf("delete features: service did not confirm")
	}
	deleted := 0
	for _, r := range resp.DeleteResults {
		if !r.Success {
			return deleted, fmt.Errorf("delete features: object %d: %s", r.ObjectID, r.Error.String())
		}
		deleted++
	}
	return deleted, nil
}

// Count returns the number of features in the layer.
func (c *Client) Count(ctx context.Context, layerURL string) (int, error) {
	params := url.Values{
		"where":           {"1=1"},
		"returnCountOnly": {"true"},
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, layerURL+"/query", params, &resp); err != nil {
		return 0, fmt.Errorf("count features: %w", err)
	}
	return resp.Count, nil
}
