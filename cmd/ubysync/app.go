package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ubysync/ubysync/config"
	"github.com/ubysync/ubysync/internal/cache"
	"github.com/ubysync/ubysync/internal/cache/rediscache"
	"github.com/ubysync/ubysync/internal/export"
	"github.com/ubysync/ubysync/internal/intake"
	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/logging"
	"github.com/ubysync/ubysync/internal/metrics"
	"github.com/ubysync/ubysync/internal/services/codetables"
	"github.com/ubysync/ubysync/internal/services/registration"
	"github.com/ubysync/ubysync/internal/storage/artifacts"
	"github.com/ubysync/ubysync/internal/storage/backup"
	"github.com/ubysync/ubysync/internal/validator"
)

type runOptions struct {
	configPath string
	input      string
	dbDSN      string
	env        string
	dryRun     bool
	yes        bool
	refresh    bool
}

func newRootCmd(f factories, in io.Reader, out io.Writer) *cobra.Command {
	var opts runOptions

	root := &cobra.Command{
		Use:           "ubysync",
		Short:         "Report foreign guests to the accommodation registration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", envOr("configPath", "config.yaml"), "path to the YAML config")
	root.PersistentFlags().StringVar(&opts.env, "env", "test", "service environment from the config, or \"fake\"")

	run := &cobra.Command{
		Use:   "run",
		Short: "Validate the input table and submit new guests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLog, err := loadAndSetup(opts, true)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				return err
			}
			defer func() { _ = closeLog() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := RunSubmission(ctx, cfg, opts, f, in, out); err != nil {
				slog.Error("run failed", "error", err.Error())
				fmt.Fprintln(out, "error:", err)
				return err
			}
			return nil
		},
	}
	run.Flags().StringVarP(&opts.input, "input", "i", "", "input table (.xlsx or .csv)")
	run.Flags().StringVar(&opts.dbDSN, "db", "", "ledger connection string, overrides the config")
	run.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show what would be submitted and stop")
	run.Flags().BoolVarP(&opts.yes, "yes", "y", false, "submit without asking")
	_ = run.MarkFlagRequired("input")

	check := &cobra.Command{
		Use:   "check",
		Short: "Check connectivity and code tables of the service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLog, err := loadAndSetup(opts, false)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				return err
			}
			defer func() { _ = closeLog() }()

			if err := RunCheck(cmd.Context(), cfg, opts.env, opts.refresh, f, out); err != nil {
				fmt.Fprintln(out, "error:", err)
				return err
			}
			return nil
		},
	}

	check.Flags().BoolVar(&opts.refresh, "refresh", false, "drop cached code tables before reading them")

	root.AddCommand(run, check)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadAndSetup(opts runOptions, logToFile bool) (*config.Config, func() error, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	config.ApplyEnv(cfg)
	applyDefaults(cfg)
	if opts.dbDSN != "" {
		cfg.Database.DSN = opts.dbDSN
	}

	logFile := ""
	if logToFile {
		logFile = filepath.Join(cfg.Paths.Logs, "ubysync_"+time.Now().Format("20060102_150405")+".log")
	}
	closeLog, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, logFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

// RunSubmission executes one submission run. A declined confirmation is not
// an error.
func RunSubmission(ctx context.Context, cfg *config.Config, opts runOptions, f factories, in io.Reader, out io.Writer) error {
	slog.Info("run started", "env", opts.env, "input", opts.input, "dry_run", opts.dryRun, "auto_confirm", opts.yes)

	table, err := intake.ReadFile(opts.input)
	if err != nil {
		return errors.Wrap(err, "read input")
	}
	if len(table.Ignored) > 0 {
		slog.Info("ignored input columns", "columns", strings.Join(table.Ignored, ", "))
	}

	ledger, closeLedger, err := f.newLedger(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open ledger")
	}
	if closeLedger != nil {
		defer closeLedger()
	}

	var c cache.BytesCache = cache.Nop{}
	if rc := f.newRedis(cfg); rc != nil {
		defer func() { _ = rc.Close() }()
		c = rc
		if !opts.dryRun {
			lock := rediscache.NewLock(rc.Client(), "ubysync:run:"+cfg.Operator.ID,
				time.Duration(cfg.Redis.RunLockTTLSeconds)*time.Second)
			if err := lock.Acquire(ctx); err != nil {
				return errors.Wrap(err, "acquire run lock")
			}
			defer func() {
				if err := lock.Release(context.Background()); err != nil {
					slog.Warn("failed to release run lock", "error", err.Error())
				}
			}()
		}
	}

	client, extractor, err := f.newClient(cfg, opts.env)
	if err != nil {
		return errors.Wrap(err, "service client")
	}

	// A dry run stays off the network and only sees cached code tables.
	var fetcher codetables.Fetcher = client
	if opts.dryRun {
		fetcher = offlineFetcher{}
	}
	tables := codetables.New(fetcher, c, time.Duration(cfg.Redis.CodeTableTTLSeconds)*time.Second)

	events, closeEvents := f.newEvents(cfg)
	defer closeEvents()

	m := metrics.NewRun()
	store := artifacts.New(cfg.Paths.Confirmations, cfg.Paths.Diagnostics)
	backups := backup.New(cfg.Paths.Backups).WithSource(ledger, cfg.Pipeline.BackupKeep)

	p := registration.New(newValidator(ctx, tables), ledger, client, store, events, m).
		WithSettings(cfg.Pipeline.FallbackBatchSize, cfg.Pipeline.FatalPrefixes, cfg.Pipeline.DuplicateMarkers).
		WithExtractor(extractor).
		WithBackup(backups).
		WithMode(opts.dryRun, opts.yes, promptConfirmer(in, out))

	rep, runErr := p.Run(ctx, table.Rows)
	if rep != nil {
		printReport(out, rep)
	}
	if errors.Is(runErr, registration.ErrAborted) {
		fmt.Fprintln(out, "Submission cancelled.")
		runErr = nil
	}

	if runErr == nil && rep != nil && rep.Processed > 0 {
		exportLedger(ctx, ledger, export.New(cfg.Paths.Exports))
	}

	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
		slog.Warn("failed to push metrics", "error", err.Error())
	}
	return runErr
}

var errOffline = errors.New("code table not cached")

type offlineFetcher struct{}

func (offlineFetcher) CodeTable(context.Context, ubyport.CodeTableKind) ([]ubyport.CodeEntry, error) {
	return nil, errOffline
}

// newValidator adds the service's country names to the built-in aliases.
// Without the country table the built-in aliases are used alone.
func newValidator(ctx context.Context, tables *codetables.Service) *validator.Validator {
	extra, err := tables.CountryAliases(ctx)
	if err != nil {
		slog.Warn("country code table unavailable, using built-in aliases", "error", err.Error())
		return validator.Default()
	}
	slog.Info("country aliases loaded", "names", len(extra))
	return validator.New(validator.Options{CountryAliases: validator.MergeCountryAliases(extra)})
}

func exportLedger(ctx context.Context, ledger ledgerStore, ex *export.Exporter) {
	snap, err := ledger.Snapshot(ctx)
	if err != nil {
		slog.Warn("export skipped", "error", err.Error())
		return
	}
	if res, err := ex.All(snap); err != nil {
		slog.Warn("full export failed", "error", err.Error())
	} else {
		slog.Info("full export written", "path", res.Path, "guests", res.Guests, "transactions", res.Transactions)
	}
	if res, err := ex.Registered(snap); err != nil {
		slog.Warn("registered export failed", "error", err.Error())
	} else if res.Path != "" {
		slog.Info("registered export written", "path", res.Path, "guests", res.Guests)
	}
}

// promptConfirmer asks on out and reads the answer from in.
func promptConfirmer(in io.Reader, out io.Writer) registration.Confirmer {
	return registration.ConfirmFunc(func(n int) (bool, error) {
		fmt.Fprintf(out, "New guests to register: %d\nProceed with submission? [y/n]: ", n)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "ano":
			return true, nil
		}
		return false, nil
	})
}

func printReport(out io.Writer, rep *registration.Report) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(out, line)
	if rep.DryRun {
		fmt.Fprintln(out, "DRY RUN - nothing was submitted")
	}
	fmt.Fprintf(out, "Rows read:            %5d\n", rep.Rows)
	fmt.Fprintf(out, "New to register:      %5d\n", rep.New)
	fmt.Fprintf(out, "Already known:        %5d\n", rep.Known+rep.Repeated)
	fmt.Fprintf(out, "Registered:           %5d\n", rep.Registered)
	fmt.Fprintf(out, "Errors:               %5d\n", rep.Errors)
	fmt.Fprintf(out, "Processed:            %5d\n", rep.Processed)
	if len(rep.InvalidRows) > 0 {
		fmt.Fprintf(out, "Skipped (validation): %5d\n", len(rep.InvalidRows))
		for _, re := range rep.InvalidRows {
			fmt.Fprintf(out, "  - %s\n", re.Error())
		}
	}
	fmt.Fprintln(out, line)
}

// RunCheck reports availability, batch limit and code table sizes. With
// refresh the cached tables are dropped first.
func RunCheck(ctx context.Context, cfg *config.Config, env string, refresh bool, f factories, out io.Writer) error {
	client, _, err := f.newClient(cfg, env)
	if err != nil {
		return err
	}

	ok, err := client.Available(ctx)
	if err != nil {
		return errors.Wrap(err, "availability check")
	}
	fmt.Fprintf(out, "available: %t\n", ok)
	if !ok {
		return ubyport.ErrUnavailable
	}

	if n, err := client.MaxBatchSize(ctx); err != nil {
		fmt.Fprintf(out, "max batch size: unknown (%v)\n", err)
	} else {
		fmt.Fprintf(out, "max batch size: %d\n", n)
	}

	var c cache.BytesCache = cache.Nop{}
	if rc := f.newRedis(cfg); rc != nil {
		defer func() { _ = rc.Close() }()
		c = rc
	}
	tables := codetables.New(client, c, time.Duration(cfg.Redis.CodeTableTTLSeconds)*time.Second)
	if refresh {
		if err := tables.Invalidate(ctx, ubyport.CodeTableKinds...); err != nil {
			fmt.Fprintf(out, "cache refresh failed: %v\n", err)
		}
	}
	for _, kind := range ubyport.CodeTableKinds {
		entries, err := tables.Lookup(ctx, kind)
		if err != nil {
			fmt.Fprintf(out, "code table %s: error (%v)\n", kind, err)
			continue
		}
		fmt.Fprintf(out, "code table %s: %d entries\n", kind, len(entries))
	}
	return nil
}
