package cmd

import (
	"fmt"
	"io"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/dealmungchi/dealcrawler/internal/crawler"
	"github.com/dealmungchi/dealcrawler/internal/engine"
)

// renderResult prints per-source stats and failures of a finished job
func renderResult(w io.Writer, result *engine.CrawlJobResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Crawl job %s", result.JobID)
	t.AppendHeader(table.Row{"Source", "Pages", "Crawled", "Saved", "Updated", "Seen", "Malformed", "Filtered", "Errors", "Stop"})

	names := lo.Keys(result.Stats.PerSource)
	slices.Sort(names)
	for _, name := range names {
		s := result.Stats.PerSource[name]
		t.AppendRow(table.Row{
			name,
			s.PagesCrawled,
			s.TotalCrawled,
			s.TotalSaved,
			s.Updated,
			s.AlreadySeen,
			s.Malformed,
			s.Filtered,
			s.PersistErrors + s.DetailErrors,
			s.StopReason,
		})
	}
	t.AppendFooter(table.Row{"Total", "", result.Stats.TotalCrawled, result.Stats.TotalSaved, result.Stats.TotalUpdated})
	t.Render()

	if len(result.Errors) > 0 {
		e := table.NewWriter()
		e.SetOutputMirror(w)
		e.SetStyle(table.StyleRounded)
		e.SetTitle("Failed sources")
		e.AppendHeader(table.Row{"Source", "Page", "Type", "Attempts", "Message"})
		failed := lo.Keys(result.Errors)
		slices.Sort(failed)
		for _, name := range failed {
			se := result.Errors[name]
			e.AppendRow(table.Row{name, se.Page, se.Type, se.Attempts, se.Message})
		}
		e.Render()
	}

	status := "succeeded"
	switch {
	case result.Cancelled:
		status = "was cancelled"
	case !result.Success:
		status = "finished with failures"
	}
	fmt.Fprintf(w, "Job %s in %dms\n", status, result.Stats.ElapsedMs)
}

// renderSources prints the registered sources with their capabilities
func renderSources(w io.Writer, sources []crawler.Source) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Source", "Detail pages", "Newest first"})
	for i, src := range sources {
		t.AppendRow(table.Row{i + 1, src.Name, src.Detail != nil, src.NewestFirst})
	}
	t.Render()
}
