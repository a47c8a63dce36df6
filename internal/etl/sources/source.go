// Package sources holds the record sources a sync run can read from.
package sources

import (
	"fmt"

	"arcsync/internal/config"
	"arcsync/internal/domain"
	"arcsync/internal/etl"
)

// New returns the source selected by cfg. Config validation guarantees the
// matching section is present.
func New(cfg *config.Config) (etl.Source, error) {
	switch cfg.Source.Type {
	case domain.SourceCSV:
		return &CSVFile{Path: cfg.Source.Path}, nil
	case domain.SourceDB:
		db := cfg.Source.DBConnection
		if db == nil {
			return nil, fmt.Errorf("source type db requires db_connection")
		}
		return NewDatabase(db.Connection(), db.Password), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}
