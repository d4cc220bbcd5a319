// Package run implements the batch-send worker: it reads applicant rows
// from the spreadsheet, filters them to the eligible set, renders and
// sends per-recipient messages with retry and throttling, and records
// send status back into the sheet. The worker owns all run state and
// reports to its caller only through the event stream.
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sendoff/sendoff/internal/backoff"
	"github.com/sendoff/sendoff/internal/config"
	"github.com/sendoff/sendoff/internal/googleauth"
	"github.com/sendoff/sendoff/internal/logger"
	"github.com/sendoff/sendoff/internal/mail"
	"github.com/sendoff/sendoff/internal/sheets"
	"github.com/sendoff/sendoff/internal/template"
)

// ErrRunActive is returned when Start is called while a run is active.
// Concurrent runs are rejected, never queued.
var ErrRunActive = errors.New("a run is already active")

// eventBuffer sizes the event channel. A full buffer blocks the worker
// until the consumer drains; events are never dropped.
const eventBuffer = 1024

// Clients are the remote services one run talks to.
type Clients struct {
	Sheets sheets.API
	Mail   mail.Sender
}

// ClientFactory builds remote clients from an authorized session.
// needMail is false for dry runs, which never construct the mail client.
type ClientFactory func(ctx context.Context, session *googleauth.Session, needMail bool) (Clients, error)

// Runner drives one run at a time on a dedicated goroutine.
type Runner struct {
	cfg      config.Config
	provider googleauth.Provider
	clients  ClientFactory
	renderer *template.Renderer
	ex       *backoff.Executor
	log      *logger.Logger

	// injectable clock for throttle and cooldown tests
	now   func() time.Time
	sleep func(time.Duration)

	busy   atomic.Bool
	cancel atomic.Bool
}

// New creates a Runner. The configuration is copied: edits to the
// caller's Config after Start do not affect an in-flight run.
func New(cfg *config.Config, provider googleauth.Provider, factory ClientFactory, log *logger.Logger) *Runner {
	return &Runner{
		cfg:      *cfg,
		provider: provider,
		clients:  factory,
		renderer: template.NewRenderer(),
		ex:       backoff.New(),
		log:      log.WithComponent("runner"),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Cancel requests cooperative cancellation. The flag is checked at
// iteration boundaries only: a send or status write already in progress
// completes, and already-sent rows keep their recorded status.
func (r *Runner) Cancel() { r.cancel.Store(true) }

// Start launches the run on its own goroutine and returns the event
// stream. The channel is closed when the run ends; no events follow a
// fatal line. Start fails with ErrRunActive while a run is in flight.
func (r *Runner) Start(ctx context.Context) (<-chan Event, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrRunActive
	}
	r.cancel.Store(false)
	events := make(chan Event, eventBuffer)

	go func() {
		defer r.busy.Store(false)
		defer close(events)
		defer func() {
			if p := recover(); p != nil {
				r.log.Error().Interface("panic", p).Msg("run panicked")
				events <- logEvent("FATAL: %v", p)
			}
		}()
		r.log.Info().
			Str("spreadsheet_id", r.cfg.Sheet.SpreadsheetID).
			Bool("dry_run", r.cfg.Run.DryRun).
			Bool("test_to_self", r.cfg.Run.TestToSelf).
			Msg("run started")
		if err := r.run(ctx, events); err != nil {
			r.log.Error().Err(err).Msg("run failed")
			events <- logEvent("FATAL: %v", err)
			return
		}
		r.log.Info().Msg("run finished")
	}()

	return events, nil
}

// run is the state machine body. A nil return is a clean end (Done or
// Cancelled); an error return becomes the single FATAL line.
func (r *Runner) run(ctx context.Context, events chan<- Event) error {
	cfg := r.cfg
	emit := func(e Event) { events <- e }

	// Authorizing
	emit(logEvent("Authorizing with Google… (a browser window may open)"))
	session, err := r.provider.ObtainSession(ctx, cfg.Google.CredentialsPath, cfg.Google.TokenPath)
	if err != nil {
		return err
	}
	clients, err := r.clients(ctx, session, !cfg.Run.DryRun)
	if err != nil {
		return err
	}
	api := clients.Sheets

	// Reading
	titles, err := backoff.Do(ctx, r.ex, func() ([]string, error) {
		return api.TabTitles(ctx, cfg.Sheet.SpreadsheetID)
	})
	if err != nil {
		return err
	}
	tab, err := sheets.ResolveTabTitle(titles, cfg.Sheet.Tab)
	if errors.Is(err, sheets.ErrNoTabs) {
		emit(logEvent("This spreadsheet has no tabs."))
		return nil
	}
	if err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!%s", sheets.QuoteTab(tab), cfg.Sheet.ReadRange)
	emit(logEvent("Reading %s · tab '%s' · range %s", cfg.Sheet.SpreadsheetID, tab, cfg.Sheet.ReadRange))
	grid, err := backoff.Do(ctx, r.ex, func() ([][]string, error) {
		return api.Values(ctx, cfg.Sheet.SpreadsheetID, readRange)
	})
	if err != nil {
		return err
	}
	if len(grid) == 0 {
		emit(logEvent("No rows found in tab '%s' (range %s).", tab, cfg.Sheet.ReadRange))
		return nil
	}

	// Filtering
	records, headers, err := sheets.ParseGrid(grid)
	if err != nil {
		emit(logEvent("%v", err))
		return nil
	}
	headers, err = sheets.EnsureColumns(ctx, api, cfg.Sheet.SpreadsheetID, tab, headers, trackingColumns)
	if err != nil {
		return err
	}
	idx := sheets.HeaderIndex(headers)

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		emit(logEvent("ERROR: Missing required columns in '%s': %s", tab, strings.Join(missing, ", ")))
		return nil
	}

	eligible := EligibleRecords(records, idx)
	if len(eligible) == 0 {
		emit(logEvent("No eligible rows to process."))
		return nil
	}
	if cfg.Run.PreviewN > 0 {
		eligible = ApplyPreview(eligible, cfg.Run.PreviewN)
		emit(logEvent("Preview mode: limiting to first %d row(s).", len(eligible)))
	}
	if cfg.Run.TestToSelf {
		eligible = ApplyTestToSelf(eligible)
		emit(logEvent("Test mode: sending first eligible row to the sender address (Cc/Bcc suppressed)."))
	}
	total := len(eligible)

	textSrc, err := os.ReadFile(cfg.Mail.TextTemplate)
	if err != nil {
		return fmt.Errorf("read text template: %w", err)
	}
	htmlSrc := ""
	if cfg.Mail.HTMLTemplate != "" {
		b, err := os.ReadFile(cfg.Mail.HTMLTemplate)
		if err != nil {
			return fmt.Errorf("read html template: %w", err)
		}
		htmlSrc = string(b)
	}

	senderName := cfg.ResolvedSenderName()
	senderTitle := cfg.ResolvedSenderTitle()
	cooldown := time.Duration(cfg.Run.DomainThrottleSeconds * float64(time.Second))
	throttle := time.Duration(cfg.Run.ThrottleSeconds * float64(time.Second))
	lastDomainAt := make(map[string]time.Time)

	// Sending
	sent := 0
	for i, rec := range eligible {
		if r.cancel.Load() {
			emit(logEvent("Cancelled by user."))
			return nil
		}

		rctx := map[string]interface{}{
			"email":            rec.Get("email"),
			"name":             rec.Get("name"),
			"role":             rec.Get("role"),
			"company":          rec.Get("company"),
			"stage":            rec.Get("stage"),
			"reason":           rec.Get("reason"),
			"application_date": rec.Get("application_date"),
			"sender_name":      senderName,
			"sender_title":     senderTitle,
		}

		subject, err := r.renderer.Render(cfg.Mail.Subject, rctx)
		if err != nil {
			return err
		}
		if cfg.Run.TestToSelf {
			subject = "[TEST] " + subject
		}
		text, err := r.renderer.Render(string(textSrc), rctx)
		if err != nil {
			return err
		}
		html := ""
		if htmlSrc != "" {
			if html, err = r.renderer.Render(htmlSrc, rctx); err != nil {
				return err
			}
		}

		if strings.TrimSpace(text) == "" && template.StripHTML(html) == "" {
			emit(logEvent("   Error: rendered templates are empty; skipping %s", rec.Get("email")))
			emit(progressEvent(i+1, total))
			continue
		}

		to, cc, bcc := rec.Get("email"), cfg.Mail.CC, cfg.Mail.BCC
		if cfg.Run.TestToSelf {
			to, cc, bcc = cfg.Mail.Sender, "", ""
		}

		raw, err := mail.Build(mail.BuildParams{
			From:        cfg.Mail.Sender,
			To:          to,
			Subject:     subject,
			Text:        text,
			HTML:        html,
			CC:          cc,
			BCC:         bcc,
			ReplyTo:     cfg.Mail.ReplyTo,
			Attachments: cfg.Mail.Attachments,
			Date:        r.now(),
		})
		if err != nil {
			return err
		}

		emit(logEvent("[%d/%d] %s → %s | CC: %s | BCC: %s | %s",
			i+1, total, r.actionKind(), to, orDash(cc), orDash(bcc), subject))
		emit(progressEvent(i+1, total))

		if cfg.Run.DryRun {
			continue
		}

		if cooldown > 0 {
			domain := addrDomain(to)
			if last, ok := lastDomainAt[domain]; ok {
				if wait := cooldown - r.now().Sub(last); wait > 0 {
					r.sleep(wait)
				}
			}
			lastDomainAt[domain] = r.now()
		}

		if err := r.ex.Execute(ctx, func() error { return clients.Mail.Send(ctx, raw) }); err != nil {
			emit(logEvent("   Error: %v", err))
			continue
		}
		if !cfg.Run.TestToSelf {
			err := r.ex.Execute(ctx, func() error {
				return sheets.WriteStatus(ctx, api, cfg.Sheet.SpreadsheetID, tab,
					rec.RowNumber, idx["sent_status"], idx["sent_at"], r.now())
			})
			if err != nil {
				emit(logEvent("   Error: %v", err))
				continue
			}
		}
		sent++
		r.sleep(throttle)
	}

	// Done
	if cfg.Run.DryRun {
		emit(logEvent("Done. Processed %d eligible rows in this run. No emails sent (dry run).", total))
	} else {
		emit(logEvent("Done. Processed %d eligible rows in this run. Sent %d.", total, sent))
	}
	return nil
}

func (r *Runner) actionKind() string {
	switch {
	case r.cfg.Run.DryRun:
		return "DRY"
	case r.cfg.Run.TestToSelf:
		return "TEST"
	default:
		return "SEND"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// addrDomain extracts the lowercased destination domain for cooldown
// bookkeeping.
func addrDomain(addr string) string {
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		return strings.ToLower(addr[at+1:])
	}
	return ""
}
