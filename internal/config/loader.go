package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"arcsync/internal/domain"
)

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables that override the document.
const (
	EnvPortalURL  = "ARCGIS_URL"
	EnvUsername   = "ARCGIS_USERNAME"
	EnvPassword   = "ARCGIS_PASSWORD"
	EnvDBPassword = "ARCSYNC_DB_PASSWORD"
	EnvLogLevel   = "ARCSYNC_LOG_LEVEL"
	EnvLogFormat  = "ARCSYNC_LOG_FORMAT"
)

// protectedFields are managed by the feature service and never written.
var protectedFields = map[string]bool{
	"objectid": true,
	"fid":      true,
	"globalid": true,
	"shape":    true,
}

// IsProtectedField reports whether name is a service-managed field. Every
// Shape_* or Shape.* spelling (Shape__Area, Shape_Length, Shape.STArea())
// belongs to the geometry column.
func IsProtectedField(name string) bool {
	name = strings.ToLower(name)
	return protectedFields[name] || strings.HasPrefix(name, "shape_") || strings.HasPrefix(name, "shape.")
}

// Load reads, overrides, defaults and validates the settings file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrInvalidConfig, path, err)
	}
	cfg.Dir = filepath.Dir(abs)

	if err := loadDotEnv(cfg.Dir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Parse decodes a settings document. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty settings document")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads dir/.env when present. Variables already set in the
// process environment win over the file.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPortalURL); v != "" {
		c.ArcGIS.URL = v
	}
	if v := os.Getenv(EnvUsername); v != "" {
		c.ArcGIS.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.ArcGIS.Password = v
	}
	if v := os.Getenv(EnvDBPassword); v != "" && c.Source.DBConnection != nil {
		c.Source.DBConnection.Password = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) applyDefaults() {
	if c.ArcGIS.URL == "" {
		c.ArcGIS.URL = DefaultPortalURL
	}
	c.ArcGIS.URL = strings.TrimRight(c.ArcGIS.URL, "/")
	if c.ArcGIS.SpatialReference == 0 {
		c.ArcGIS.SpatialReference = DefaultSpatialReference
	}
	if c.ArcGIS.Mode == "" {
		c.ArcGIS.Mode = domain.SyncAppend
	}
	if c.ArcGIS.BatchSize == 0 {
		c.ArcGIS.BatchSize = DefaultBatchSize
	}
	if c.ArcGIS.Timeout == 0 {
		c.ArcGIS.Timeout = DefaultTimeout
	}

	switch c.ArcGIS.GeometryType {
	case domain.GeometryPoint:
		if c.Geometry.LatitudeField == "" {
			c.Geometry.LatitudeField = "latitude"
		}
		if c.Geometry.LongitudeField == "" {
			c.Geometry.LongitudeField = "longitude"
		}
	case domain.GeometryPolygon, domain.GeometryPolyline:
		if c.Geometry.CoordinatesField == "" {
			c.Geometry.CoordinatesField = "coordinates"
		}
	}

	for i := range c.Mapping.Fields {
		f := &c.Mapping.Fields[i]
		if f.Type == domain.FieldString && f.Length == 0 {
			f.Length = DefaultStringLength
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) resolvePaths() {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || c.Dir == "" {
			return p
		}
		return filepath.Join(c.Dir, p)
	}
	c.Source.Path = resolve(c.Source.Path)
	if db := c.Source.DBConnection; db != nil && db.Dialect == domain.DatabaseDriverSQLite {
		db.Host = resolve(db.Host)
	}
	c.History.Path = resolve(c.History.Path)
}

// Validate checks the document and reports every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	// Source
	switch c.Source.Type {
	case domain.SourceCSV:
		if c.Source.DBConnection != nil {
			add("source.db_connection is not allowed when source.type is csv")
		}
		if c.Source.Path == "" {
			add("source.path is required when source.type is csv")
		}
	case domain.SourceDB:
		if c.Source.Path != "" {
			add("source.path is not allowed when source.type is db")
		}
		if c.Source.DBConnection == nil {
			add("source.db_connection is required when source.type is db")
		} else {
			errs = append(errs, c.Source.DBConnection.validate()...)
		}
	case "":
		add("source.type is required (csv or db)")
	default:
		add("source.type %q is not supported (csv or db)", c.Source.Type)
	}

	// ArcGIS
	if c.ArcGIS.LayerName == "" {
		add("arcgis.layer_name is required")
	}
	if c.ArcGIS.Username == "" {
		add("arcgis.username is required (or set %s)", EnvUsername)
	}
	if c.ArcGIS.Password == "" {
		add("arcgis.password is required (or set %s)", EnvPassword)
	}
	if !strings.HasPrefix(c.ArcGIS.URL, "http://") && !strings.HasPrefix(c.ArcGIS.URL, "https://") {
		add("arcgis.url %q must be an http(s) URL", c.ArcGIS.URL)
	}
	if !c.ArcGIS.GeometryType.Valid() {
		add("arcgis.geometry_type %q is not supported (point, polygon or polyline)", c.ArcGIS.GeometryType)
	}
	if c.ArcGIS.SpatialReference <= 0 {
		add("arcgis.spatial_reference must be a positive WKID")
	}
	if !c.ArcGIS.Mode.Valid() {
		add("arcgis.mode %q is not supported (append or replace)", c.ArcGIS.Mode)
	}
	if c.ArcGIS.BatchSize < 1 || c.ArcGIS.BatchSize > MaxBatchSize {
		add("arcgis.batch_size must be between 1 and %d", MaxBatchSize)
	}
	if c.ArcGIS.Timeout < 0 {
		add("arcgis.timeout must not be negative")
	}

	errs = append(errs, c.validateMapping()...)

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (d *DBConnectionConfig) validate() []string {
	var errs []string
	if !d.Dialect.Valid() {
		return append(errs, fmt.Sprintf("source.db_connection.dialect %q is not supported (postgres, mysql, sqlite or mongodb)", d.Dialect))
	}
	if d.Host == "" {
		if d.Dialect == domain.DatabaseDriverSQLite {
			errs = append(errs, "source.db_connection.host must be the sqlite file path")
		} else {
			errs = append(errs, "source.db_connection.host is required")
		}
	}
	if d.Database == "" && d.Dialect != domain.DatabaseDriverSQLite && d.Dialect != domain.DatabaseDriverMongoDB {
		errs = append(errs, "source.db_connection.database is required")
	}
	if d.Table == "" {
		errs = append(errs, "source.db_connection.table is required")
	}
	if d.Port < 0 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("source.db_connection.port %d is out of range", d.Port))
	}
	return errs
}

func (c *Config) validateMapping() []string {
	var errs []string
	if len(c.Mapping.Fields) == 0 {
		return append(errs, "mapping.fields must list at least one field")
	}

	seen := make(map[string]bool)
	for i, f := range c.Mapping.Fields {
		if f.Source == "" {
			errs = append(errs, fmt.Sprintf("mapping.fields[%d].source is required", i))
			continue
		}
		target := f.Target()
		key := strings.ToLower(target)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("mapping.fields[%d]: target field %q is mapped twice", i, target))
		}
		seen[key] = true

		if IsProtectedField(target) {
			errs = append(errs, fmt.Sprintf("mapping.fields[%d]: %q is a protected layer field", i, target))
		}
		if !f.Type.Valid() {
			errs = append(errs, fmt.Sprintf("mapping.fields[%d].type %q is not supported", i, f.Type))
			continue
		}
		if f.Type == domain.FieldCoordinates && target != c.Geometry.CoordinatesField {
			errs = append(errs, fmt.Sprintf("mapping.fields[%d]: coordinates type is only allowed on the geometry coordinates field", i))
		}
		if f.Length < 0 {
			errs = append(errs, fmt.Sprintf("mapping.fields[%d].length must not be negative", i))
		}
	}

	requireField := func(key, name string, want domain.FieldType) {
		if name == "" {
			errs = append(errs, fmt.Sprintf("geometry.%s is required", key))
			return
		}
		f, ok := c.FieldByTarget(name)
		if !ok {
			errs = append(errs, fmt.Sprintf("geometry.%s %q is not a mapped field", key, name))
			return
		}
		if f.Type != want {
			errs = append(errs, fmt.Sprintf("geometry.%s %q must be mapped as %s, not %s", key, name, want, f.Type))
		}
	}

	switch c.ArcGIS.GeometryType {
	case domain.GeometryPoint:
		requireField("latitude_field", c.Geometry.LatitudeField, domain.FieldDouble)
		requireField("longitude_field", c.Geometry.LongitudeField, domain.FieldDouble)
	case domain.GeometryPolygon, domain.GeometryPolyline:
		requireField("coordinates_field", c.Geometry.CoordinatesField, domain.FieldCoordinates)
	}
	return errs
}
