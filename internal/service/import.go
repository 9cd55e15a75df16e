package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"paytrack/internal/clients"
	"paytrack/internal/domain"
	"paytrack/internal/importer"
	"paytrack/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentCreator interface {
	Validate(raw validation.RawPayment) (domain.Payment, error)
	CreateValidated(ctx context.Context, p domain.Payment) (domain.Payment, error)
}

// RowResult is the outcome of one imported row. Exactly one of ID, Errors
// and Error is set, except in dry runs where valid rows carry nothing.
type RowResult struct {
	Line   int               `json:"line"`
	ID     string            `json:"id,omitempty"`
	Errors validation.Errors `json:"errors,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (r RowResult) Failed() bool {
	return len(r.Errors) > 0 || r.Error != ""
}

type ImportReport struct {
	JobID    string      `json:"job_id"`
	DryRun   bool        `json:"dry_run"`
	Total    int         `json:"total"`
	Imported int         `json:"imported"`
	Failed   int         `json:"failed"`
	Rows     []RowResult `json:"rows"`
}

type ImportOptions struct {
	DryRun   bool
	ClientID string
	Source   string
}

const importProgressEvery = 100

type ImportService struct {
	payments PaymentCreator
	jobs     *jobTracker
	log      *zap.Logger
}

func NewImportService(payments PaymentCreator, cache StatusCache, notify Notifier, log *zap.Logger) *ImportService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ImportService{
		payments: payments,
		jobs:     &jobTracker{cache: cache, notify: notify, log: log},
		log:      log,
	}
}

// Import validates every row and persists the valid ones unless DryRun is
// set. Bad rows are reported and never stop the batch; only a cancelled
// context does.
func (s *ImportService) Import(ctx context.Context, rows []importer.Row, opts ImportOptions) (ImportReport, error) {
	report := ImportReport{
		JobID:  fmt.Sprintf("imports:%s", uuid.NewString()),
		DryRun: opts.DryRun,
		Total:  len(rows),
		Rows:   make([]RowResult, 0, len(rows)),
	}

	status := &JobStatus{
		Key:      report.JobID,
		Type:     "import",
		ClientID: opts.ClientID,
		Filters:  map[string]any{"source": opts.Source, "dry_run": opts.DryRun},
		Created:  time.Now(),
	}
	s.jobs.save(ctx, status)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			s.jobs.fail(context.WithoutCancel(ctx), clients.JobImport, status, err)
			return report, err
		}

		res := s.importRow(ctx, row, opts.DryRun)
		if res.Failed() {
			report.Failed++
		} else {
			report.Imported++
		}
		report.Rows = append(report.Rows, res)

		if (i+1)%importProgressEvery == 0 {
			progress := math.Round(float64(i+1) / float64(len(rows)) * 100.0)
			s.jobs.progress(ctx, clients.JobImport, status, progress, "importing")
		}
	}

	status.Summary = map[string]any{
		"total":    report.Total,
		"imported": report.Imported,
		"failed":   report.Failed,
	}
	s.jobs.complete(ctx, clients.JobImport, status, "", "")

	s.log.Info("payments import finished",
		zap.String("job", report.JobID),
		zap.String("source", opts.Source),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("total", report.Total),
		zap.Int("imported", report.Imported),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *ImportService) importRow(ctx context.Context, row importer.Row, dryRun bool) RowResult {
	res := RowResult{Line: row.Line}

	p, err := s.payments.Validate(row.Raw)
	if err != nil {
		if errs, ok := validation.AsErrors(err); ok {
			res.Errors = errs
		} else {
			res.Error = err.Error()
		}
		return res
	}
	if dryRun {
		return res
	}

	created, err := s.payments.CreateValidated(ctx, p)
	if err != nil {
		s.log.Warn("import row not persisted", zap.Int("line", row.Line), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.ID = created.ID
	return res
}
