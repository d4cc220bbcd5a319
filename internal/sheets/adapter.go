package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptySheet is returned when the fetched grid has no rows at all.
var ErrEmptySheet = errors.New("sheet is empty or range is incorrect")

// ErrNoTabs is returned when the spreadsheet contains no tabs.
var ErrNoTabs = errors.New("spreadsheet has no tabs")

// SentMarker is the fixed value written to the status column.
const SentMarker = "sent"

// Record is one data row keyed by lowercased header name, values trimmed.
// RowNumber is the 1-based position in the sheet (header is row 1).
type Record struct {
	Fields    map[string]string
	RowNumber int
}

// Get returns the trimmed value for a lowercased column name, or "".
func (r Record) Get(col string) string {
	return r.Fields[col]
}

// tabSpecials are the characters that force single-quoting of a tab
// name in A1 range notation.
const tabSpecials = " []{}():;,'\"!@#$%^&*-+=/\\|?<>`~."

// QuoteTab quotes a tab title for A1 notation when it contains special
// characters, doubling any internal single quotes.
func QuoteTab(name string) string {
	if strings.ContainsAny(name, tabSpecials) {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

// ColLetter converts a 1-based column number to its A1 letter form.
func ColLetter(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+n%26)) + s
		n /= 26
	}
	return s
}

// ParseGrid converts a raw grid into records plus the original-case
// header list. The first row is the header; rows shorter than the
// header yield empty strings for the missing trailing columns.
func ParseGrid(grid [][]string) ([]Record, []string, error) {
	if len(grid) == 0 {
		return nil, nil, ErrEmptySheet
	}
	headers := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		headers[i] = strings.TrimSpace(h)
	}
	records := make([]Record, 0, len(grid)-1)
	for i, row := range grid[1:] {
		fields := make(map[string]string, len(headers))
		for j, h := range headers {
			v := ""
			if j < len(row) {
				v = strings.TrimSpace(row[j])
			}
			fields[strings.ToLower(h)] = v
		}
		records = append(records, Record{Fields: fields, RowNumber: i + 2})
	}
	return records, headers, nil
}

// HeaderIndex maps lowercased header names to their column index.
func HeaderIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(h)] = i
	}
	return idx
}

// EnsureColumns guarantees the header row contains every needed column.
// When all are present (case-insensitively) it returns headers unchanged
// with no remote write. Otherwise it appends the missing names, in
// order, in lowercase form, and issues exactly one header-row update
// with the full new list. Appending keeps existing column positions
// stable for any index computed before the call.
func EnsureColumns(ctx context.Context, api API, spreadsheetID, tab string, headers, needed []string) ([]string, error) {
	idx := HeaderIndex(headers)
	missing := false
	for _, c := range needed {
		if _, ok := idx[strings.ToLower(c)]; !ok {
			missing = true
			break
		}
	}
	if !missing {
		return headers, nil
	}

	newHeaders := append([]string(nil), headers...)
	for _, c := range needed {
		lc := strings.ToLower(c)
		if _, ok := HeaderIndex(newHeaders)[lc]; !ok {
			newHeaders = append(newHeaders, lc)
		}
	}
	headerRange := fmt.Sprintf("%s!1:1", QuoteTab(tab))
	if err := api.UpdateRow(ctx, spreadsheetID, headerRange, newHeaders); err != nil {
		return nil, err
	}
	return newHeaders, nil
}

// WriteStatus records a completed send for one row: the status cell gets
// the sent marker and the time cell an ISO-8601 timestamp with offset.
// Both cells go out in a single batched call so a transient failure
// cannot leave the status set with the time missing.
func WriteStatus(ctx context.Context, api API, spreadsheetID, tab string, rowNumber, statusCol, timeCol int, ts time.Time) error {
	qtab := QuoteTab(tab)
	updates := []CellUpdate{
		{
			Range: fmt.Sprintf("%s!%s%d", qtab, ColLetter(statusCol+1), rowNumber),
			Value: SentMarker,
		},
		{
			Range: fmt.Sprintf("%s!%s%d", qtab, ColLetter(timeCol+1), rowNumber),
			Value: ts.Format(time.RFC3339),
		},
	}
	return api.BatchUpdate(ctx, spreadsheetID, updates)
}

// ResolveTabTitle picks the tab to operate on: exact title match first,
// then case-insensitive, then the document's first tab.
func ResolveTabTitle(titles []string, preferred string) (string, error) {
	if len(titles) == 0 {
		return "", ErrNoTabs
	}
	for _, t := range titles {
		if t == preferred {
			return t, nil
		}
	}
	for _, t := range titles {
		if strings.EqualFold(t, preferred) {
			return t, nil
		}
	}
	return titles[0], nil
}
