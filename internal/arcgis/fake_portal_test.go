package arcgis

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakePortal is an in-memory stand-in for a portal and its hosted services.
type fakePortal struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	calls        []string // request paths in order
	existing     bool     // a service titled "Sites" already exists
	layerInfo    map[string]any
	folders      []map[string]any
	definition   LayerDefinition
	batches      [][]Feature
	failFeatures map[int]bool // global feature index -> addResults success=false
	deleted      bool
	featureCount int
	badLogin     bool
	added        int
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	f := &fakePortal{t: t, failFeatures: map[int]bool{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePortal) serviceURL() string {
	return f.srv.URL + "/arcgis/rest/services/Sites/FeatureServer"
}

func (f *fakePortal) client() *Client {
	return NewClient(Options{URL: f.srv.URL, Username: "alice", Password: "pw"})
}

func (f *fakePortal) called(suffix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasSuffix(c, suffix) {
			n++
		}
	}
	return n
}

func (f *fakePortal) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("encode response: %v", err)
	}
}

func (f *fakePortal) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.URL.Path)

	path := r.URL.Path
	if path != "/sharing/rest/generateToken" && r.Form.Get("token") != "tok-1" {
		f.writeJSON(w, map[string]any{"error": map[string]any{"code": 499, "message": "Token Required"}})
		return
	}

	switch {
	case path == "/sharing/rest/generateToken":
		if f.badLogin || r.Form.Get("password") != "pw" {
			f.writeJSON(w, map[string]any{"error": map[string]any{
				"code": 400, "message": "Unable to generate token.", "details": []string{"Invalid username or password."},
			}})
			return
		}
		f.writeJSON(w, map[string]any{"token": "tok-1", "expires": 1714550400000, "ssl": true})

	case path == "/sharing/rest/search":
		var results []map[string]any
		// A partial title match the client must ignore.
		results = append(results, map[string]any{"id": "x0", "title": "Sites_Old", "type": "Feature Service", "url": "http://unused"})
		if f.existing {
			results = append(results, map[string]any{"id": "item-1", "title": "Sites", "type": "Feature Service", "url": f.serviceURL()})
		}
		f.writeJSON(w, map[string]any{"total": len(results), "results": results})

	case path == "/sharing/rest/content/users/alice":
		f.writeJSON(w, map[string]any{"username": "alice", "folders": f.folders})

	case path == "/sharing/rest/content/users/alice/createFolder":
		folder := map[string]any{"id": "fld-2", "title": r.Form.Get("title")}
		f.folders = append(f.folders, folder)
		f.writeJSON(w, map[string]any{"success": true, "folder": folder})

	case strings.HasSuffix(path, "/createService"):
		var params map[string]any
		if err := json.Unmarshal([]byte(r.Form.Get("createParameters")), &params); err != nil {
			f.t.Errorf("createParameters: %v", err)
		}
		if r.Form.Get("outputType") != "featureService" {
			f.t.Errorf("outputType = %q", r.Form.Get("outputType"))
		}
		f.writeJSON(w, map[string]any{"success": true, "itemId": "item-new", "serviceurl": f.serviceURL(), "name": params["name"]})

	case path == "/arcgis/rest/admin/services/Sites/FeatureServer/addToDefinition":
		if err := json.Unmarshal([]byte(r.Form.Get("addToDefinition")), &f.definition); err != nil {
			f.t.Errorf("addToDefinition: %v", err)
		}
		def := f.definition.Layers[0]
		f.layerInfo = map[string]any{
			"id": 0, "name": def.Name, "geometryType": def.GeometryType,
			"objectIdField": def.ObjectIDField, "fields": def.Fields,
			"extent": map[string]any{"spatialReference": map[string]any{"wkid": 4326, "latestWkid": 4326}},
		}
		f.writeJSON(w, map[string]any{"success": true})

	case path == "/arcgis/rest/services/Sites/FeatureServer/0":
		f.writeJSON(w, f.layerInfo)

	case path == "/arcgis/rest/services/Sites/FeatureServer/0/addFeatures":
		if r.Form.Get("rollbackOnFailure") != "true" {
			f.t.Errorf("rollbackOnFailure = %q", r.Form.Get("rollbackOnFailure"))
		}
		var feats []Feature
		if err := json.Unmarshal([]byte(r.Form.Get("features")), &feats); err != nil {
			f.t.Errorf("features: %v", err)
		}
		f.batches = append(f.batches, feats)
		results := make([]map[string]any, len(feats))
		for i := range feats {
			idx := f.added + i
			if f.failFeatures[idx] {
				results[i] = map[string]any{"success": false, "error": map[string]any{"code": 1000, "description": "bad attribute"}}
				continue
			}
			results[i] = map[string]any{"objectId": idx + 1, "success": true}
			f.featureCount++
		}
		f.added += len(feats)
		f.writeJSON(w, map[string]any{"addResults": results})

	case path == "/arcgis/rest/services/Sites/FeatureServer/0/deleteFeatures":
		if r.Form.Get("where") != "1=1" {
			f.t.Errorf("where = %q", r.Form.Get("where"))
		}
		f.deleted = true
		results := make([]map[string]any, f.featureCount)
		for i := range results {
			results[i] = map[string]any{"objectId": i + 1, "success": true}
		}
		f.featureCount = 0
		f.writeJSON(w, map[string]any{"deleteResults": results})

	case path == "/arcgis/rest/services/Sites/FeatureServer/0/query":
		f.writeJSON(w, map[string]any{"count": f.featureCount})

	default:
		http.NotFound(w, r)
	}
}

// withExistingLayer seeds an existing point layer holding n features.
func (f *fakePortal) withExistingLayer(geometryType string, n int) {
	f.existing = true
	f.featureCount = n
	f.layerInfo = map[string]any{
		"id": 0, "name": "Sites", "geometryType": geometryType,
		"objectIdField": "OBJECTID", "globalIdField": "GlobalID",
		"fields": []map[string]any{
			{"name": "OBJECTID", "type": "esriFieldTypeOID"},
			{"name": "GlobalID", "type": "esriFieldTypeGlobalID"},
			{"name": "SITE_NAME", "type": "esriFieldTypeString", "length": 255},
		},
		"extent": map[string]any{"spatialReference": map[string]any{"wkid": 102100, "latestWkid": 3857}},
	}
}
