// Package config loads the settings document that drives one sync run.
// The document is YAML; credentials may be supplied or overridden through the
// environment or a .env file next to it. Everything is validated on load so a
// bad document fails before any data is read.
package config

import (
	"time"

	"arcsync/internal/domain"
)

// DefaultPath is the settings file used when --config is not given.
const DefaultPath = "settings.yaml"

// Defaults applied before validation.
const (
	DefaultPortalURL        = "https://www.arcgis.com"
	DefaultBatchSize        = 1000
	MaxBatchSize            = 2000
	DefaultSpatialReference = 4326
	DefaultTimeout          = 2 * time.Minute
	DefaultStringLength     = 255
)

// Config holds the whole settings document.
type Config struct {
	Project  string         `yaml:"project"`
	Source   SourceConfig   `yaml:"source"`
	ArcGIS   ArcGISConfig   `yaml:"arcgis"`
	Geometry GeometryConfig `yaml:"geometry"`
	Mapping  MappingConfig  `yaml:"mapping"`
	Logging  LoggingConfig  `yaml:"logging"`
	History  HistoryConfig  `yaml:"history"`

	// Dir is the directory of the settings file. Relative paths in the
	// document are resolved against it.
	Dir string `yaml:"-"`
}

// SourceConfig selects and locates the input records.
type SourceConfig struct {
	Type domain.SourceKind `yaml:"type"`

	// Path is the CSV file (csv only).
	Path string `yaml:"path"`

	// DBConnection describes the source table (db only).
	DBConnection *DBConnectionConfig `yaml:"db_connection"`
}

// DBConnectionConfig holds the database source settings.
type DBConnectionConfig struct {
	Dialect  domain.DatabaseDriver `yaml:"dialect"`
	Host     string                `yaml:"host"` // file path for sqlite
	Port     int                   `yaml:"port"`
	Database string                `yaml:"database"`
	Username string                `yaml:"username"`
	Password string                `yaml:"password"`
	Table    string                `yaml:"table"` // collection for mongodb
	SSLMode  string                `yaml:"ssl_mode"`
}

// Connection converts the settings into the connector's connection type.
func (c *DBConnectionConfig) Connection() domain.DatabaseConnection {
	return domain.DatabaseConnection{
		Driver:   c.Dialect,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		Username: c.Username,
		SSLMode:  c.SSLMode,
		Table:    c.Table,
	}
}

// ArcGISConfig describes the target portal and hosted feature layer.
type ArcGISConfig struct {
	// URL is the portal root (ArcGIS Online or an Enterprise portal).
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	LayerName        string              `yaml:"layer_name"`
	Folder           string              `yaml:"folder"`
	GeometryType     domain.GeometryType `yaml:"geometry_type"`
	SpatialReference int                 `yaml:"spatial_reference"`
	Mode             domain.SyncMode     `yaml:"mode"`

	// BatchSize is the number of features per addFeatures request.
	BatchSize int `yaml:"batch_size"`

	// Timeout bounds every HTTP request to the portal.
	Timeout time.Duration `yaml:"timeout"`
}

// GeometryConfig names the mapped fields the geometry builder reads.
type GeometryConfig struct {
	LatitudeField    string `yaml:"latitude_field"`
	LongitudeField   string `yaml:"longitude_field"`
	CoordinatesField string `yaml:"coordinates_field"`
}

// MappingConfig is the ordered list of field mappings.
type MappingConfig struct {
	Fields []FieldMapping `yaml:"fields"`
}

// FieldMapping maps one source column onto one layer field.
type FieldMapping struct {
	Source   string           `yaml:"source"`
	Name     string           `yaml:"name"`
	Type     domain.FieldType `yaml:"type"`
	Required bool             `yaml:"required"`
	Alias    string           `yaml:"alias"`
	Length   int              `yaml:"length"`
}

// Target returns the layer field name the value is written to.
func (m FieldMapping) Target() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Source
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format"`
}

// HistoryConfig enables the local run history when Path is set.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// FieldByTarget returns the mapping whose target name is name.
func (c *Config) FieldByTarget(name string) (FieldMapping, bool) {
	for _, f := range c.Mapping.Fields {
		if f.Target() == name {
			return f, true
		}
	}
	return FieldMapping{}, false
}

// ProjectName returns the project label used in logs and history.
func (c *Config) ProjectName() string {
	if c.Project != "" {
		return c.Project
	}
	return c.ArcGIS.LayerName
}
