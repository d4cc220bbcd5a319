package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendoff/sendoff/internal/sheets"
)

func rec(rowNumber int, fields map[string]string) sheets.Record {
	base := map[string]string{
		"email":   "a@x.test",
		"name":    "Ann",
		"role":    "Dev",
		"company": "Acme",
	}
	for k, v := range fields {
		base[k] = v
	}
	return sheets.Record{Fields: base, RowNumber: rowNumber}
}

func idxFor(cols ...string) map[string]int {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	return idx
}

var baseIdx = idxFor("email", "name", "role", "company", "skip", "sent_status", "sent_at")

func TestEligibleRecords_Exclusions(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		idx      map[string]int
		eligible bool
	}{
		{"plain row", nil, baseIdx, true},
		{"skip yes", map[string]string{"skip": "yes"}, baseIdx, false},
		{"skip YES case-insensitive", map[string]string{"skip": "YES"}, baseIdx, false},
		{"skip no", map[string]string{"skip": "no"}, baseIdx, true},
		{"already sent", map[string]string{"sent_status": "sent"}, baseIdx, false},
		{"already sent mixed case", map[string]string{"sent_status": "Sent"}, baseIdx, false},
		{"missing email", map[string]string{"email": ""}, baseIdx, false},
		{"missing name", map[string]string{"name": ""}, baseIdx, false},
		{"missing role", map[string]string{"role": ""}, baseIdx, false},
		{"missing company", map[string]string{"company": ""}, baseIdx, false},
		{"send column absent means no gate", nil, baseIdx, true},
		{"send column present and empty", nil, idxFor("email", "name", "role", "company", "send"), false},
		{"send column present and yes", map[string]string{"send": "yes"}, idxFor("email", "name", "role", "company", "send"), true},
		{"send column present and no", map[string]string{"send": "no"}, idxFor("email", "name", "role", "company", "send"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EligibleRecords([]sheets.Record{rec(2, tt.fields)}, tt.idx)
			if tt.eligible {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestEligibleRecords_SkipIsMonotonic(t *testing.T) {
	records := []sheets.Record{
		rec(2, map[string]string{"email": "a@x.test"}),
		rec(3, map[string]string{"email": "b@x.test"}),
		rec(4, map[string]string{"email": "c@x.test"}),
	}
	before := EligibleRecords(records, baseIdx)
	require.Len(t, before, 3)

	// Flip the middle record to skip: it disappears, the rest keep
	// their relative order.
	records[1].Fields["skip"] = "yes"
	after := EligibleRecords(records, baseIdx)
	require.Len(t, after, 2)
	assert.Equal(t, 2, after[0].RowNumber)
	assert.Equal(t, 4, after[1].RowNumber)
}

func TestApplyPreview(t *testing.T) {
	records := []sheets.Record{rec(2, nil), rec(3, nil), rec(4, nil), rec(5, nil), rec(6, nil)}
	eligible := EligibleRecords(records, baseIdx)
	require.Len(t, eligible, 5)

	got := ApplyPreview(eligible, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].RowNumber)
	assert.Equal(t, 3, got[1].RowNumber)

	assert.Len(t, ApplyPreview(eligible, 0), 5, "0 disables preview")
	assert.Len(t, ApplyPreview(eligible, 9), 5)
}

func TestApplyTestToSelf_TruncatesToOne(t *testing.T) {
	eligible := []sheets.Record{rec(2, nil), rec(3, nil)}
	got := ApplyTestToSelf(eligible)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].RowNumber)

	assert.Empty(t, ApplyTestToSelf(nil))
}

func TestEligibleRecords_SentStatusRoundTrip(t *testing.T) {
	// A row recorded as sent on a previous run stays excluded even when
	// every other condition passes.
	r := rec(2, nil)
	require.Len(t, EligibleRecords([]sheets.Record{r}, baseIdx), 1)
	r.Fields["sent_status"] = sheets.SentMarker
	assert.Empty(t, EligibleRecords([]sheets.Record{r}, baseIdx))
}
