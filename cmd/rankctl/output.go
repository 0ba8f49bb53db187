package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"rankkit/core"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope for CLI output.
type CLIResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// Success prints data as a JSON envelope, or its text form.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}

	switch v := data.(type) {
	case []core.RankedEntry:
		return f.table(v)
	case core.RankedEntry:
		return f.table([]core.RankedEntry{v})
	case core.Page:
		fmt.Fprintf(f.Writer, "page %d/%d (%d entries)\n", v.Page, v.MaxPage, v.Total)
		return f.table(v.List)
	default:
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
}

func (f *OutputFormatter) table(list []core.RankedEntry) error {
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tSCORE")
	for _, e := range list {
		fmt.Fprintf(tw, "%d\t%s\t%g\n", e.Rank, e.Name, e.Score)
	}
	return tw.Flush()
}
