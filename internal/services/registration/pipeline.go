package registration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/confirmation"
	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/metrics"
	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/validator"
)

// ErrNoValidRecords is returned when every input row failed validation.
var ErrNoValidRecords = errors.New("no valid records in input")

type Pipeline struct {
	validator  *validator.Validator
	detector   *Detector
	client     ubyport.Client
	submitter  *Submitter
	reconciler *Reconciler
	backup     Backuper
	confirmer  Confirmer
	metrics    *metrics.Run

	fallbackBatchSize int
	dryRun            bool
	autoConfirm       bool

	newID func() string

	totalRuns       atomic.Int64
	totalSubmitted  atomic.Int64
	totalRegistered atomic.Int64
	totalErrors     atomic.Int64
	lastRunUnixNano atomic.Int64
	lastErrorMu     sync.Mutex
	lastError       string
}

// New wires the pipeline stages. events and m may be nil.
func New(v *validator.Validator, ledger Ledger, client ubyport.Client, store ArtifactStore, events EventPublisher, m *metrics.Run) *Pipeline {
	if v == nil {
		v = validator.Default()
	}
	if m == nil {
		m = metrics.NewRun()
	}
	return &Pipeline{
		validator:         v,
		detector:          NewDetector(ledger),
		client:            client,
		submitter:         NewSubmitter(client, store, nil, ubyport.DefaultSeverityRules()),
		reconciler:        NewReconciler(ledger, events, m),
		metrics:           m,
		fallbackBatchSize: DefaultFallbackBatchSize,
		newID:             func() string { return uuid.NewString() },
	}
}

func (p *Pipeline) WithSettings(fallbackBatchSize int, fatalPrefixes, duplicateMarkers []string) *Pipeline {
	if fallbackBatchSize > 0 {
		p.fallbackBatchSize = fallbackBatchSize
	}
	if len(fatalPrefixes) > 0 {
		p.submitter.rules = ubyport.SeverityRules{FatalPrefixes: fatalPrefixes}
	}
	p.reconciler.WithDuplicateMarkers(duplicateMarkers)
	return p
}

// WithExtractor replaces the PDF text extractor used on confirmations.
func (p *Pipeline) WithExtractor(ex confirmation.TextExtractor) *Pipeline {
	if ex != nil {
		p.submitter.extractor = ex
	}
	return p
}

func (p *Pipeline) WithBackup(b Backuper) *Pipeline {
	p.backup = b
	return p
}

// WithMode sets dry-run and auto-confirm. Without auto-confirm a Confirmer
// must be set or the run is aborted.
func (p *Pipeline) WithMode(dryRun, autoConfirm bool, c Confirmer) *Pipeline {
	p.dryRun = dryRun
	p.autoConfirm = autoConfirm
	p.confirmer = c
	return p
}

// Report summarises one run.
type Report struct {
	RunID string `json:"runId"`

	Rows        int                   `json:"rows"`
	Valid       int                   `json:"valid"`
	InvalidRows []*validator.RowError `json:"-"`
	Known       int                   `json:"known"`
	Repeated    int                   `json:"repeated"`
	New         int                   `json:"new"`

	BatchSize     int `json:"batchSize"`
	Batches       int `json:"batches"`
	BatchesFailed int `json:"batchesFailed"`

	Registered      int `json:"registered"`
	Errors          int `json:"errors"`
	Duplicates      int `json:"duplicates"`
	PersistFailures int `json:"persistFailures"`
	Processed       int `json:"processed"`

	DryRun     bool   `json:"dryRun"`
	BackupPath string `json:"backupPath,omitempty"`

	Results []RecordResult `json:"-"`
}

// Run validates rows, submits the new ones and reconciles the answers.
// Batch and record failures are reported, not returned. The returned error
// is set only when the run could not proceed.
func (p *Pipeline) Run(ctx context.Context, rows []validator.Row) (*Report, error) {
	runID := p.newID()
	log := slog.With("run_id", runID)
	rep := &Report{RunID: runID, Rows: len(rows), DryRun: p.dryRun}

	p.totalRuns.Add(1)
	p.lastRunUnixNano.Store(time.Now().UTC().UnixNano())

	records, rowErrs := p.validator.ValidateAll(rows)
	rep.Valid = len(records)
	rep.InvalidRows = rowErrs
	p.metrics.RecordsValidated.Add(float64(len(records)))
	p.metrics.RecordsInvalid.Add(float64(len(rowErrs)))
	if len(rowErrs) > 0 {
		log.Warn("rows failed validation and will be skipped", "count", len(rowErrs))
		for _, re := range rowErrs {
			log.Warn("invalid row", "row", re.Row, "name", re.Name, "errors", re.Error())
		}
	}
	if len(records) == 0 {
		p.setLastError(ErrNoValidRecords)
		return rep, ErrNoValidRecords
	}

	part, err := p.detector.Detect(ctx, records)
	if err != nil {
		p.setLastError(err)
		return rep, errors.Wrap(err, "detect new records")
	}
	rep.Known, rep.Repeated, rep.New = len(part.Known), len(part.Repeated), len(part.New)
	p.metrics.RecordsSkipped.Add(float64(rep.Known + rep.Repeated))
	log.Info("records partitioned", "new", rep.New, "known", rep.Known, "repeated", rep.Repeated)

	if rep.New == 0 {
		log.Info("no new guests to register")
		return rep, nil
	}
	if p.dryRun {
		log.Info("dry run, nothing submitted", "new", rep.New)
		return rep, nil
	}
	if !p.autoConfirm {
		ok := false
		if p.confirmer != nil {
			if ok, err = p.confirmer.Confirm(rep.New); err != nil {
				return rep, errors.Wrap(err, "confirm submission")
			}
		}
		if !ok {
			log.Info("submission declined by operator")
			return rep, ErrAborted
		}
	}

	if p.backup != nil {
		path, err := p.backup.Backup(ctx)
		if err != nil {
			log.Warn("backup failed", "error", err.Error())
		}
		rep.BackupPath = path
		if path != "" {
			log.Info("backup created", "path", path)
		}
	}

	ok, err := p.client.Available(ctx)
	if err == nil && !ok {
		err = ubyport.ErrUnavailable
	}
	if err != nil {
		p.setLastError(err)
		return rep, errors.Wrap(err, "availability check")
	}

	rep.BatchSize = BatchSize(ctx, p.client, p.fallbackBatchSize)
	batches := Split(part.New, rep.BatchSize)
	rep.Batches = len(batches)
	log.Info("submitting new guests", "records", rep.New, "batches", rep.Batches, "batch_size", rep.BatchSize)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return rep, errors.Wrap(err, "run interrupted")
		}
		batchID := fmt.Sprintf("%s-%03d", runID, i+1)
		blog := log.With("batch", i+1, "batch_id", batchID, "records", len(batch))
		blog.Info("submitting batch")

		start := time.Now()
		out := p.submitter.Submit(ctx, batch, rep.BatchSize)
		p.metrics.RecordsSubmitted.Add(float64(len(batch)))
		p.totalSubmitted.Add(int64(len(batch)))
		if err := ctx.Err(); err != nil {
			return rep, errors.Wrap(err, "run interrupted")
		}

		results := p.reconciler.Reconcile(ctx, batchID, batch, out)
		p.metrics.ObserveBatch(start, out.Success)
		if !out.Success {
			rep.BatchesFailed++
			p.setLastError(errors.New(out.ErrorText()))
			blog.Error("batch unsuccessful", "header_errors", out.HeaderErrors)
		}
		p.tally(rep, results)
	}

	p.logReport(log, rep)
	return rep, nil
}

func (p *Pipeline) tally(rep *Report, results []RecordResult) {
	for _, r := range results {
		rep.Processed++
		rep.Results = append(rep.Results, r)
		if !r.Persisted {
			rep.PersistFailures++
			rep.Errors++
			p.totalErrors.Add(1)
			continue
		}
		switch r.Status {
		case models.GuestStatusRegistered:
			rep.Registered++
			p.totalRegistered.Add(1)
		case models.GuestStatusDuplicateError:
			rep.Duplicates++
			rep.Errors++
			p.totalErrors.Add(1)
		default:
			rep.Errors++
			p.totalErrors.Add(1)
		}
	}
}

func (p *Pipeline) logReport(log *slog.Logger, rep *Report) {
	log.Info("run finished",
		"registered", rep.Registered,
		"errors", rep.Errors,
		"duplicates", rep.Duplicates,
		"processed", rep.Processed,
		"batches", rep.Batches,
		"batches_failed", rep.BatchesFailed,
		"skipped_invalid", len(rep.InvalidRows),
		"skipped_known", rep.Known+rep.Repeated,
	)
}

func (p *Pipeline) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

type Stats struct {
	LastRunAt       *time.Time `json:"lastRunAt,omitempty"`
	TotalRuns       int64      `json:"totalRuns"`
	TotalSubmitted  int64      `json:"totalSubmitted"`
	TotalRegistered int64      `json:"totalRegistered"`
	TotalErrors     int64      `json:"totalErrors"`
	LastError       string     `json:"lastError,omitempty"`
}

func (p *Pipeline) Stats() Stats {
	st := Stats{
		TotalRuns:       p.totalRuns.Load(),
		TotalSubmitted:  p.totalSubmitted.Load(),
		TotalRegistered: p.totalRegistered.Load(),
		TotalErrors:     p.totalErrors.Load(),
	}
	if n := p.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}
