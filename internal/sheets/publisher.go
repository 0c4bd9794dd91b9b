// Package sheets publishes exported tables to a Google spreadsheet tab with
// full-overwrite semantics.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dgnsrekt/pendsync/internal/table"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// Destination identifies one tab of a spreadsheet.
type Destination struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Sheet         string `json:"sheet"`
}

// ParseDestination accepts either a spreadsheet URL or a bare ID.
func ParseDestination(urlOrID, sheet string) (Destination, error) {
	urlOrID = strings.TrimSpace(urlOrID)
	if urlOrID == "" {
		return Destination{}, fmt.Errorf("sheets: spreadsheet url or id is required")
	}
	if strings.TrimSpace(sheet) == "" {
		return Destination{}, fmt.Errorf("sheets: sheet name is required")
	}
	id := urlOrID
	if m := spreadsheetIDPattern.FindStringSubmatch(urlOrID); m != nil {
		id = m[1]
	} else if strings.Contains(urlOrID, "/") {
		return Destination{}, fmt.Errorf("sheets: no spreadsheet id in %q", urlOrID)
	}
	return Destination{SpreadsheetID: id, Sheet: sheet}, nil
}

// SheetRange is the A1 range covering the whole tab.
func (d Destination) SheetRange() string {
	return "'" + strings.ReplaceAll(d.Sheet, "'", "''") + "'"
}

// StartRange anchors writes at the top-left cell.
func (d Destination) StartRange() string { return d.SheetRange() + "!A1" }

// ValuesClient is the pair of spreadsheet value calls publishing needs.
type ValuesClient interface {
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) (int64, error)
}

// Result summarises a publish.
type Result struct {
	Destination Destination `json:"destination"`
	Columns     int         `json:"columns"`
	Rows        int         `json:"rows"`
	UpdatedRows int64       `json:"updated_rows"`
	Duration    string      `json:"duration"`
}

// Publisher replaces a tab's contents with an artifact's rows.
type Publisher struct {
	Client      ValuesClient
	Destination Destination
	Table       table.Options
}

// Publish parses path, clears the destination tab, then writes header and
// rows from A1. The artifact is parsed before anything remote changes.
func (p *Publisher) Publish(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	res := Result{Destination: p.Destination}

	tbl, err := table.ReadFile(ctx, path, p.Table)
	if err != nil {
		return res, fmt.Errorf("sheets: read artifact: %w", err)
	}
	res.Columns = len(tbl.Header)
	res.Rows = len(tbl.Rows)

	id := p.Destination.SpreadsheetID
	if err := p.Client.Clear(ctx, id, p.Destination.SheetRange()); err != nil {
		return res, fmt.Errorf("sheets: clear %s: %w", p.Destination.SheetRange(), err)
	}
	updated, err := p.Client.Update(ctx, id, p.Destination.StartRange(), tbl.Values())
	if err != nil {
		return res, fmt.Errorf("sheets: update %s: %w", p.Destination.StartRange(), err)
	}
	res.UpdatedRows = updated
	res.Duration = time.Since(start).Round(time.Millisecond).String()

	slog.Info("sheet published",
		"spreadsheet_id", id,
		"sheet", p.Destination.Sheet,
		"rows", res.Rows,
		"columns", res.Columns,
		"updated_rows", updated,
	)
	return res, nil
}
