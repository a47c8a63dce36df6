package app

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

//go:embed scaffold/settings.yaml scaffold/sample.csv scaffold/gitignore
var scaffoldFS embed.FS

// scaffoldFiles maps embedded templates to their place in a new project.
var scaffoldFiles = []struct {
	src, dst string
}{
	{"scaffold/settings.yaml", "settings.yaml"},
	{"scaffold/sample.csv", filepath.Join("data", "sample.csv")},
	{"scaffold/gitignore", ".gitignore"},
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a sample project with settings and data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return scaffold(cmd.OutOrStdout(), dir, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	return cmd
}

// scaffold writes the sample project into dir. Existing files are left
// alone unless force is set; nothing is written if any would be clobbered.
func scaffold(out io.Writer, dir string, force bool) error {
	if !force {
		for _, f := range scaffoldFiles {
			path := filepath.Join(dir, f.dst)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}
	}

	for _, f := range scaffoldFiles {
		data, err := scaffoldFS.ReadFile(f.src)
		if err != nil {
			return fmt.Errorf("read template %s: %w", f.src, err)
		}
		path := filepath.Join(dir, f.dst)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(out, "created %s\n", path)
	}

	fmt.Fprintf(out, "\nNext: set ARCGIS_USERNAME and ARCGIS_PASSWORD, then run\n  arcsync -c %s --dry-run\n",
		filepath.Join(dir, "settings.yaml"))
	return nil
}
