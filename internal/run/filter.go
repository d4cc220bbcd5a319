package run

import (
	"strings"

	"github.com/sendoff/sendoff/internal/sheets"
)

// requiredColumns must all be present (and non-empty per record) for a
// message to be rendered and addressed.
var requiredColumns = []string{"email", "name", "role", "company"}

// trackingColumns are managed by the worker to record completion.
var trackingColumns = []string{"sent_status", "sent_at"}

func isYes(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "yes")
}

// EligibleRecords returns the ordered subset of records that should
// receive a message this run. A record is excluded when skip == yes,
// when a send column exists and is not yes, when sent_status already
// says sent (idempotency across re-runs and crashes), or when any
// required field is empty.
func EligibleRecords(records []sheets.Record, idx map[string]int) []sheets.Record {
	_, hasSendCol := idx["send"]

	var eligible []sheets.Record
	for _, rec := range records {
		if isYes(rec.Get("skip")) {
			continue
		}
		if hasSendCol && !isYes(rec.Get("send")) {
			continue
		}
		if strings.EqualFold(rec.Get("sent_status"), sheets.SentMarker) {
			continue
		}
		if rec.Get("email") == "" || rec.Get("name") == "" ||
			rec.Get("role") == "" || rec.Get("company") == "" {
			continue
		}
		eligible = append(eligible, rec)
	}
	return eligible
}

// ApplyPreview truncates the eligible list to its first n entries when
// n > 0.
func ApplyPreview(eligible []sheets.Record, n int) []sheets.Record {
	if n > 0 && len(eligible) > n {
		return eligible[:n]
	}
	return eligible
}

// ApplyTestToSelf truncates the eligible list to at most one entry.
// The address override, subject prefix, and cc/bcc suppression happen
// at send time. Test mode composes with preview: it applies after
// preview truncation.
func ApplyTestToSelf(eligible []sheets.Record) []sheets.Record {
	if len(eligible) > 1 {
		return eligible[:1]
	}
	return eligible
}
