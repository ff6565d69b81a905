package reimburse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rmacedof/fuelsync/internal/dedup"
	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/rmacedof/fuelsync/internal/normalize"
	"github.com/rmacedof/fuelsync/internal/portal"
	"go.uber.org/zap"
)

// Authenticator produces an authenticated portal session
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*portal.Session, error)
}

// RefuelSink is the idempotent storage contract the runner hands batches to
type RefuelSink interface {
	UpsertBatch(records []*models.Refuel) (int, error)
}

// Config tunes one runner instance
type Config struct {
	Username        string
	Password        string
	APIBaseURL      string
	Origin          string
	InvoicePath     string
	DetailPath      string
	InvoicePageSize int
	DetailPageSize  int
	Workers         int
	LookbackDays    int
	RequestTimeout  time.Duration
}

// Runner drives the reimbursement extraction: authenticate once, fetch the
// invoice headers, fan the line-item fetches out over a bounded worker pool,
// dedupe and persist.
type Runner struct {
	cfg        Config
	auth       Authenticator
	normalizer *normalize.Normalizer
	sink       RefuelSink
	logger     *zap.Logger
}

// NewRunner creates a runner
func NewRunner(cfg Config, auth Authenticator, n *normalize.Normalizer, sink RefuelSink, logger *zap.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	return &Runner{cfg: cfg, auth: auth, normalizer: n, sink: sink, logger: logger}
}

// Window computes the bulk run's date window in the API's ISO format
func Window(now time.Time, lookbackDays int) (from, to string) {
	start := now.AddDate(0, 0, -lookbackDays)
	return start.Format("2006-01-02T00:00:00.000Z"), now.Format("2006-01-02T15:04:05.000Z")
}

// Run executes the scheduled bulk extraction across all known stations.
// Authentication failures abort the run; everything below invoice
// granularity degrades to partial results.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run_id", runID))
	started := time.Now()

	from, to := Window(time.Now(), r.cfg.LookbackDays)
	logger.Info("Starting bulk reimbursement run",
		zap.String("from", from), zap.String("to", to),
		zap.Int("workers", r.cfg.Workers))

	session, err := r.auth.Authenticate(ctx, r.cfg.Username, r.cfg.Password)
	if err != nil {
		return fmt.Errorf("bulk run aborted: %w", err)
	}

	client := portal.NewClient(r.cfg.APIBaseURL, r.cfg.Origin, session, r.cfg.RequestTimeout, logger)
	invoices := NewInvoiceFetcher(client, r.cfg.InvoicePath, r.cfg.InvoicePageSize, logger)
	lines := NewLineItemFetcher(client, r.cfg.DetailPath, r.cfg.DetailPageSize, r.normalizer, logger)

	headers, err := invoices.FetchWindow(ctx, from, to)
	if err != nil {
		logger.Warn("Invoice header pagination degraded to partial results", zap.Error(err))
	}
	logger.Info("Invoice headers fetched", zap.Int("count", len(headers)))

	refuels := r.fanOut(ctx, logger, lines, headers)

	_, err = r.persist(logger, refuels, started)
	return err
}

// FetchPeriod is the on-demand path: fetch reimbursements for one station
// and period, persist them and return what was stored. Dates are plain
// "2006-01-02"; the portal wants the full ISO envelope.
func (r *Runner) FetchPeriod(ctx context.Context, cnpj, fromDate, toDate string) ([]*models.Refuel, error) {
	logger := r.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("cnpj", cnpj))
	started := time.Now()

	from := fromDate + "T00:00:00.000Z"
	to := toDate + "T23:59:59.000Z"
	logger.Info("Starting on-demand reimbursement fetch",
		zap.String("from", fromDate), zap.String("to", toDate))

	session, err := r.auth.Authenticate(ctx, r.cfg.Username, r.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("on-demand fetch aborted: %w", err)
	}

	client := portal.NewClient(r.cfg.APIBaseURL, r.cfg.Origin, session, r.cfg.RequestTimeout, logger)
	invoices := NewInvoiceFetcher(client, r.cfg.InvoicePath, r.cfg.InvoicePageSize, logger)
	lines := NewLineItemFetcher(client, r.cfg.DetailPath, r.cfg.DetailPageSize, r.normalizer, logger)

	headers, err := invoices.FetchWindow(ctx, from, to)
	if err != nil {
		logger.Warn("Invoice header pagination degraded to partial results", zap.Error(err))
	}
	logger.Info("Invoice headers fetched", zap.Int("count", len(headers)))

	var refuels []*models.Refuel
	for _, inv := range headers {
		recs, err := lines.FetchInvoice(ctx, inv, cnpj)
		if err != nil {
			logger.Warn("Invoice detail fetch degraded to partial results",
				zap.Int64("invoice_id", inv.ID), zap.Error(err))
		}
		refuels = append(refuels, recs...)
	}

	return r.persist(logger, refuels, started)
}

// fanOut schedules one line-item fetch per invoice over the worker pool.
// A task failure is logged and never aborts siblings or the run.
func (r *Runner) fanOut(ctx context.Context, logger *zap.Logger, lines *LineItemFetcher, headers []*models.InvoiceHeader) []*models.Refuel {
	jobs := make(chan *models.InvoiceHeader)

	var mu sync.Mutex
	var all []*models.Refuel
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inv := range jobs {
				recs := r.runTask(ctx, logger, lines, inv)
				if len(recs) > 0 {
					mu.Lock()
					all = append(all, recs...)
					mu.Unlock()
				}
			}
		}()
	}

	for _, h := range headers {
		jobs <- h
	}
	close(jobs)
	wg.Wait()

	return all
}

// runTask fetches one invoice's lines, containing panics and errors to the
// task.
func (r *Runner) runTask(ctx context.Context, logger *zap.Logger, lines *LineItemFetcher, inv *models.InvoiceHeader) (recs []*models.Refuel) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Invoice task panicked",
				zap.Int64("invoice_id", inv.ID),
				zap.Any("panic", p))
			recs = nil
		}
	}()

	recs, err := lines.FetchInvoice(ctx, inv, "")
	if err != nil {
		logger.Warn("Invoice detail fetch degraded to partial results",
			zap.Int64("invoice_id", inv.ID), zap.Error(err))
	}
	return recs
}

// persist dedupes, hands the batch to the sink and returns what was written
func (r *Runner) persist(logger *zap.Logger, refuels []*models.Refuel, started time.Time) ([]*models.Refuel, error) {
	if len(refuels) == 0 {
		logger.Info("No refuels gathered, nothing to persist",
			zap.Duration("elapsed", time.Since(started)))
		return nil, nil
	}

	clean := dedup.Refuels(refuels)
	if dropped := len(refuels) - len(clean); dropped > 0 {
		logger.Info("Overlapping records dropped before persistence", zap.Int("dropped", dropped))
	}

	written, err := r.sink.UpsertBatch(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to persist refuel batch: %w", err)
	}

	logger.Info("Reimbursement run finished",
		zap.Int("gathered", len(refuels)),
		zap.Int("persisted", written),
		zap.Duration("elapsed", time.Since(started)))
	return clean, nil
}
