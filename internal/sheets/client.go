// Package sheets provides the tabular data boundary: a thin client over
// the Google Sheets API and an adapter that turns raw grids into typed
// records. Loosely-shaped remote responses are converted to [][]string
// here and never travel further as untyped data.
package sheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	gsheets "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"
)

// CellUpdate addresses a single-cell write within a batch.
type CellUpdate struct {
	Range string
	Value string
}

// API is the remote tabular data service as the worker consumes it.
type API interface {
	// Values fetches a range as a grid of strings.
	Values(ctx context.Context, spreadsheetID, readRange string) ([][]string, error)
	// UpdateRow overwrites a single row range with the given cells.
	UpdateRow(ctx context.Context, spreadsheetID, rowRange string, cells []string) error
	// BatchUpdate applies several cell writes in one remote call.
	BatchUpdate(ctx context.Context, spreadsheetID string, updates []CellUpdate) error
	// TabTitles lists the spreadsheet's tab titles in document order.
	TabTitles(ctx context.Context, spreadsheetID string) ([]string, error)
}

// GoogleClient implements API using the Sheets v4 service.
type GoogleClient struct {
	svc *gsheets.Service
}

// NewGoogleClient builds a Sheets client from an authorized token source.
func NewGoogleClient(ctx context.Context, ts oauth2.TokenSource) (*GoogleClient, error) {
	svc, err := gsheets.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to create service: %w", err)
	}
	return &GoogleClient{svc: svc}, nil
}

func (c *GoogleClient) Values(ctx context.Context, spreadsheetID, readRange string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get %s: %w", readRange, err)
	}
	grid := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, fmt.Sprint(cell))
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

func (c *GoogleClient) UpdateRow(ctx context.Context, spreadsheetID, rowRange string, cells []string) error {
	row := make([]interface{}, len(cells))
	for i, cell := range cells {
		row[i] = cell
	}
	vr := &gsheets.ValueRange{Values: [][]interface{}{row}}
	_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, rowRange, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: update %s: %w", rowRange, err)
	}
	return nil
}

func (c *GoogleClient) BatchUpdate(ctx context.Context, spreadsheetID string, updates []CellUpdate) error {
	data := make([]*gsheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &gsheets.ValueRange{
			Range:  u.Range,
			Values: [][]interface{}{{u.Value}},
		})
	}
	req := &gsheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	_, err := c.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: batch update: %w", err)
	}
	return nil
}

func (c *GoogleClient) TabTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	meta, err := c.svc.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get metadata: %w", err)
	}
	titles := make([]string, 0, len(meta.Sheets))
	for _, s := range meta.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}
