package app

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"arcsync/internal/arcgis"
	"arcsync/internal/config"
	"arcsync/internal/etl"
	"arcsync/internal/etl/sources"
	"arcsync/internal/logging"
	"arcsync/internal/storage"
)

type syncOptions struct {
	dryRun  bool
	output  string
	rejects string
}

func bindSyncFlags(cmd *cobra.Command, opts *syncOptions) {
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Map and validate without contacting the portal")
	cmd.Flags().StringVar(&opts.output, "output", "", "With --dry-run, write features to this GeoJSON file")
	cmd.Flags().StringVar(&opts.rejects, "rejects", "", "Write rejected rows and their reasons to this CSV file")
}

func newSyncCmd(configPath *string) *cobra.Command {
	var opts syncOptions
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Read, validate and publish records (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), *configPath, opts)
		},
	}
	bindSyncFlags(cmd, &opts)
	return cmd
}

// runSync performs one run and prints its summary to out. The summary is
// printed even when the run fails part way.
func runSync(ctx context.Context, out io.Writer, configPath string, opts syncOptions) error {
	if opts.output != "" && !opts.dryRun {
		return errors.New("--output is only supported together with --dry-run")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, nil)

	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.WithFields(ctx, "project", cfg.ProjectName())

	src, err := sources.New(cfg)
	if err != nil {
		return err
	}

	var dest etl.Destination
	if opts.dryRun {
		log.Info("dry run, the portal will not be contacted", "output", opts.output)
		dest = &etl.GeoJSONWriter{Path: opts.output}
	} else {
		client := arcgis.NewClient(arcgis.Options{
			URL:      cfg.ArcGIS.URL,
			Username: cfg.ArcGIS.Username,
			Password: cfg.ArcGIS.Password,
			Timeout:  cfg.ArcGIS.Timeout,
		})
		dest = arcgis.NewPublisher(client, cfg.ArcGIS.BatchSize)
	}

	started := time.Now()
	summary, runErr := newEngine(cfg, src, dest).Run(ctx)

	if opts.rejects != "" {
		if err := etl.WriteRejects(opts.rejects, summary.Rejected); err != nil {
			log.Warn("could not write rejects file", "path", opts.rejects, "error", err)
		} else if len(summary.Rejected) > 0 {
			log.Info("rejected rows written", "path", opts.rejects, "count", len(summary.Rejected))
		}
	}

	if !opts.dryRun {
		recordHistory(ctx, cfg, runID, started, summary)
	}

	printSummary(out, summary)
	if runErr != nil {
		log.Error("run failed", "error", runErr)
	}
	return runErr
}

func newEngine(cfg *config.Config, src etl.Source, dest etl.Destination) *etl.Engine {
	return &etl.Engine{
		Source:  src,
		Mapper:  etl.NewMapper(cfg.Mapping.Fields),
		Builder: etl.NewGeometryBuilder(cfg),
		Dest:    dest,
		Layer: etl.LayerSpec{
			Name:             cfg.ArcGIS.LayerName,
			Folder:           cfg.ArcGIS.Folder,
			GeometryType:     cfg.ArcGIS.GeometryType,
			SpatialReference: cfg.ArcGIS.SpatialReference,
			Mode:             cfg.ArcGIS.Mode,
		},
	}
}

// recordHistory stores the run when history is enabled. Failures are
// logged only.
func recordHistory(ctx context.Context, cfg *config.Config, runID string, started time.Time, summary *etl.RunSummary) {
	if cfg.History.Path == "" {
		return
	}
	log := logging.FromContext(ctx)

	db, err := storage.Open(cfg.History.Path)
	if err != nil {
		log.Warn("could not open run history", "path", cfg.History.Path, "error", err)
		return
	}
	defer db.Close()

	entry := &etl.RunLog{
		ID:         runID,
		Project:    cfg.ProjectName(),
		Layer:      cfg.ArcGIS.LayerName,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Status:     summary.Status,
		Read:       summary.Read,
		Valid:      summary.Valid,
		Invalid:    summary.Invalid,
		Uploaded:   summary.Uploaded,
		Error:      summary.Error,
	}
	// The run may have been cancelled; the record is still written.
	if err := storage.NewHistoryStore(db).Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("could not record run history", "error", err)
	}
}
