package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Item is a portal content item.
type Item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
	Owner string `json:"owner"`
	URL   string `json:"url"`
}

// CreatedService is the createService response.
type CreatedService struct {
	ItemID     string `json:"itemId"`
	ServiceURL string `json:"serviceurl"`
	Name       string `json:"name"`
	Success    bool   `json:"success"`
}

type folder struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

var serviceNameInvalid = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// ServiceName turns a layer name into a valid hosted service name: runs of
// characters other than letters, digits and underscore become one underscore.
func ServiceName(name string) string {
	s := serviceNameInvalid.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.Trim(s, "_")
}

// FindService returns the caller's Feature Service item titled title, or
// nil when there is none. Titles compare case-insensitively.
func (c *Client) FindService(ctx context.Context, title string) (*Item, error) {
	q := fmt.Sprintf(`title:"%s" AND owner:%s AND type:"Feature Service"`, title, c.username)
	var resp struct {
		Results []Item `json:"results"`
	}
	params := url.Values{"q": {q}, "num": {"100"}}
	if err := c.get(ctx, c.sharingURL("search"), params, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", title, err)
	}
	// Search is tokenized; only an exact title counts.
	for i := range resp.Results {
		it := resp.Results[i]
		if strings.EqualFold(it.Title, title) && it.Type == "Feature Service" {
			return &it, nil
		}
	}
	return nil, nil
}

// EnsureFolder returns the id of the folder titled name, creating it when
// absent. An empty name means the root folder and yields "".
func (c *Client) EnsureFolder(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}

	var content struct {
		Folders []folder `json:"folders"`
	}
	if err := c.get(ctx, c.userContentURL(), nil, &content); err != nil {
		return "", fmt.Errorf("list folders: %w", err)
	}
	for _, f := range content.Folders {
		if strings.EqualFold(f.Title, name) {
			return f.ID, nil
		}
	}

	var created struct {
		Success bool   `json:"success"`
		Folder  folder `json:"folder"`
	}
	if err := c.post(ctx, c.userContentURL("createFolder"), url.Values{"title": {name}}, &created); err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	if !created.Success || created.Folder.ID == "" {
		return "", fmt.Errorf("create folder %q: portal did not confirm", name)
	}
	return created.Folder.ID, nil
}

// serviceParameters is the createParameters document of createService.
type serviceParameters struct {
	Name                  string          `json:"name"`
	ServiceDescription    string          `json:"serviceDescription"`
	HasStaticData         bool            `json:"hasStaticData"`
	MaxRecordCount        int             `json:"maxRecordCount"`
	SupportedQueryFormats string          `json:"supportedQueryFormats"`
	Capabilities          string          `json:"capabilities"`
	AllowGeometryUpdates  bool            `json:"allowGeometryUpdates"`
	SpatialReference      spatialRef      `json:"spatialReference"`
	InitialExtent         extent          `json:"initialExtent"`
	XSSPreventionInfo     json.RawMessage `json:"xssPreventionInfo"`
}

type spatialRef struct {
	WKID       int `json:"wkid,omitempty"`
	LatestWKID int `json:"latestWkid,omitempty"`
}

// ID returns the effective well-known id.
func (s spatialRef) ID() int {
	if s.LatestWKID != 0 {
		return s.LatestWKID
	}
	return s.WKID
}

type extent struct {
	XMin             float64    `json:"xmin"`
	YMin             float64    `json:"ymin"`
	XMax             float64    `json:"xmax"`
	YMax             float64    `json:"ymax"`
	SpatialReference spatialRef `json:"spatialReference"`
}

const (
	serviceCapabilities = "Create,Delete,Query,Update,Editing"
	maxRecordCount      = 2000
)

// worldExtent covers the globe in WGS84.
func worldExtent(wkid int) extent {
	return extent{XMin: -180, YMin: -90, XMax: 180, YMax: 90, SpatialReference: spatialRef{WKID: wkid}}
}

// CreateService creates an empty hosted feature service named name in
// folderID ("" for the root folder).
func (c *Client) CreateService(ctx context.Context, name, folderID string, wkid int) (*CreatedService, error) {
	params := serviceParameters{
		Name:                  name,
		ServiceDescription:    "Published by arcsync",
		MaxRecordCount:        maxRecordCount,
		SupportedQueryFormats: "JSON",
		Capabilities:          serviceCapabilities,
		AllowGeometryUpdates:  true,
		SpatialReference:      spatialRef{WKID: wkid},
		InitialExtent:         worldExtent(4326),
		XSSPreventionInfo:     json.RawMessage(`{"xssPreventionEnabled":true,"xssPreventionRule":"InputOnly","xssInputRule":"rejectInvalid"}`),
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode service parameters: %w", err)
	}

	form := url.Values{
		"createParameters": {string(raw)},
		"outputType":       {"featureService"},
	}
	var resp CreatedService
	if err := c.post(ctx, c.userContentURL(folderID, "createService"), form, &resp); err != nil {
		return nil, fmt.Errorf("create service %q: %w", name, err)
	}
	if !resp.Success || resp.ServiceURL == "" {
		return nil, fmt.Errorf("create service %q: portal did not confirm", name)
	}
	return &resp, nil
}
