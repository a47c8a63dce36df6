package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"arcsync/internal/etl"
)

func printSummary(w io.Writer, s *etl.RunSummary) {
	fmt.Fprintf(w, "records read: %d\n", s.Read)
	fmt.Fprintf(w, "valid: %d\n", s.Valid)
	fmt.Fprintf(w, "invalid: %d\n", s.Invalid)
	fmt.Fprintf(w, "uploaded: %d\n", s.Uploaded)
	if s.Layer != nil && s.Layer.URL != "" {
		loc := s.Layer.URL
		if strings.HasPrefix(loc, "http") {
			loc = s.Layer.LayerURL()
		}
		fmt.Fprintf(w, "layer: %s\n", loc)
	}
}

func printHistory(w io.Writer, logs []etl.RunLog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tREAD\tVALID\tINVALID\tUPLOADED\tDURATION\tERROR")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			l.StartedAt.Format("2006-01-02 15:04:05"),
			l.Status, l.Read, l.Valid, l.Invalid, l.Uploaded,
			l.FinishedAt.Sub(l.StartedAt).Round(time.Millisecond),
			l.Error,
		)
	}
	return tw.Flush()
}
