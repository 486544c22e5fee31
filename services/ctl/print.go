package ctl

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"shutdownd/pkg/events"
	"shutdownd/services/registry"
)

// WriteStatus prints one line per computer, sorted by group then name.
func WriteStatus(w io.Writer, snap registry.Snapshot) error {
	entries := snap.Entries()
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no computer registered")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tCOMPUTER\tSTATE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Group, e.Computer, e.State)
	}
	return tw.Flush()
}

// WriteAudit prints audit entries as a table.
func WriteAudit(w io.Writer, entries []events.AuditEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tACTOR\tACTION\tTARGET")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.At.UTC().Format(time.RFC3339), e.Actor, e.Action, e.Obj)
	}
	return tw.Flush()
}
