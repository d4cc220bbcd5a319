package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sendoff/sendoff/internal/config"
	"github.com/sendoff/sendoff/internal/googleauth"
	"github.com/sendoff/sendoff/internal/logger"
	"github.com/sendoff/sendoff/internal/mail"
	"github.com/sendoff/sendoff/internal/run"
	"github.com/sendoff/sendoff/internal/sheets"
)

var (
	cfgFile    string
	dryRun     bool
	testToSelf bool
	previewN   int
)

var rootCmd = &cobra.Command{
	Use:   "sendoff",
	Short: "Batch applicant rejection mailer backed by Google Sheets and Gmail",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read the applicant sheet and send (or dry-run) rejection emails",
	RunE:  runSend,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sendoff.yaml)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log actions without sending or writing status")
	runCmd.Flags().BoolVar(&testToSelf, "test-to-self", false, "send only the first eligible row to the sender address")
	runCmd.Flags().IntVar(&previewN, "preview", 0, "limit the run to the first N eligible rows")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	// A local .env may carry SENDER_NAME / SENDER_TITLE overrides.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Run.DryRun = dryRun
	}
	if cmd.Flags().Changed("test-to-self") {
		cfg.Run.TestToSelf = testToSelf
	}
	if cmd.Flags().Changed("preview") {
		cfg.Run.PreviewN = previewN
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	provider := &googleauth.InstalledAppProvider{
		AuthPrompt: func(url string) {
			fmt.Println("Open this URL in your browser to authorize:")
			fmt.Println("  " + url)
		},
	}

	factory := func(ctx context.Context, session *googleauth.Session, needMail bool) (run.Clients, error) {
		var clients run.Clients
		api, err := sheets.NewGoogleClient(ctx, session.TokenSource)
		if err != nil {
			return clients, err
		}
		clients.Sheets = api
		if needMail {
			sender, err := mail.NewGmailSender(ctx, session.TokenSource)
			if err != nil {
				return clients, err
			}
			clients.Mail = sender
		}
		return clients, nil
	}

	runner := run.New(cfg, provider, factory, log)

	ctx := context.Background()
	events, err := runner.Start(ctx)
	if err != nil {
		return err
	}

	// First Ctrl-C cancels cooperatively; the run ends at the next
	// recipient boundary.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn().Msg("cancellation requested, finishing current recipient")
		runner.Cancel()
	}()
	defer signal.Stop(sigCh)

	for e := range events {
		if e.IsProgress() {
			log.Debug().Int("completed", e.Completed).Int("total", e.Total).Msg("progress")
			continue
		}
		fmt.Println(e.Line)
	}
	return nil
}
