package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/agriflow/pkg/core"
)

// runView is the JSON form of a run.
type runView struct {
	ID          string        `json:"id"`
	Environment string        `json:"environment"`
	HarvestFile string        `json:"harvest_file"`
	PriceFile   string        `json:"price_file"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
	Stats       core.RunStats `json:"stats"`
}

func toRunViews(runs []*core.Run) []runView {
	views := make([]runView, 0, len(runs))
	for _, r := range runs {
		views = append(views, runView{
			ID:          r.ID,
			Environment: r.Environment,
			HarvestFile: r.HarvestFile,
			PriceFile:   r.PriceFile,
			Status:      string(r.Status),
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
			Error:       r.Error,
			Stats:       r.Stats,
		})
	}
	return views
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderRunsTable(w io.Writer, runs []*core.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "(no runs)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Harvest file", "Status", "Extracted", "Dropped", "Unresolved", "Quarantined", "Purged", "Loaded"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			shortID(r.ID), r.HarvestFile, r.Status,
			r.Stats.Extracted, r.Stats.Dropped, r.Stats.Unresolved, r.Stats.Quarantined,
			r.Stats.Purged, r.Stats.Loaded,
		})
	}
	t.Render()

	for _, r := range runs {
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", shortID(r.ID), r.Error)
		}
	}
}
