// Package sales implements the per-station daily-sales extraction. Unlike
// the reimbursement flow there is no browser login here: each station holds
// its own rotating API key in external storage, and the portal announces
// rotations in-band through a response header on the first call.
package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rmacedof/fuelsync/internal/dedup"
	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/rmacedof/fuelsync/internal/normalize"
	"github.com/rmacedof/fuelsync/internal/portal"
	"go.uber.org/zap"
)

// RotationHeader is the response header carrying a freshly rotated API key.
// The portal renews a key once it passes half its lifetime; the new key must
// be persisted and used for the remainder of the run so no request mixes
// credentials.
const RotationHeader = "renovacao-automatica-jwt"

// StatusAuthorized is the only authorization status that gets persisted
const StatusAuthorized = "Autorizado"

// KeyStore reads and conditionally rewrites per-station credentials, and
// resolves station ids for the canonical records.
type KeyStore interface {
	APIKey(cnpj string) (string, error)
	UpdateAPIKey(cnpj, newKey string) error
	ResolveID(cnpj string) string
}

// SaleSink is the idempotent storage contract for sale batches
type SaleSink interface {
	UpsertBatch(records []*models.Sale) (int, error)
}

// Config tunes the sales runner
type Config struct {
	APIBaseURL     string
	Origin         string
	SalesPath      string
	PageSize       int
	RequestTimeout time.Duration
}

// Runner extracts one station's sales for a window
type Runner struct {
	cfg        Config
	keys       KeyStore
	normalizer *normalize.Normalizer
	sink       SaleSink
	logger     *zap.Logger
}

// NewRunner creates a sales runner
func NewRunner(cfg Config, keys KeyStore, n *normalize.Normalizer, sink SaleSink, logger *zap.Logger) *Runner {
	if cfg.PageSize <= 0 || cfg.PageSize > 200 {
		cfg.PageSize = 200
	}
	return &Runner{cfg: cfg, keys: keys, normalizer: n, sink: sink, logger: logger}
}

// RunStation fetches, filters, maps and persists one station's sales for
// [from, to]. A station without a registered key is skipped, not failed.
// When validDays is non-nil only sales on those calendar days survive the
// post-fetch filter. Returns the persisted records.
func (r *Runner) RunStation(ctx context.Context, cnpj, from, to string, validDays map[string]bool) ([]*models.Sale, error) {
	logger := r.logger.With(zap.String("cnpj", cnpj))

	key, err := r.keys.APIKey(cnpj)
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if key == "" {
		logger.Warn("Station has no api key registered, skipping sales run")
		return nil, nil
	}

	client := portal.NewKeyClient(r.cfg.APIBaseURL, r.cfg.Origin, key, r.cfg.RequestTimeout, logger)

	// One-record probe: cheap way to surface a rotated key before the real
	// pagination starts, so the whole run speaks a single credential.
	headers, probeErr := client.PostJSON(ctx, r.cfg.SalesPath, r.payload(1, 1, from, to), nil)
	if headers != nil {
		if newKey := headers.Get(RotationHeader); newKey != "" {
			logger.Info("Rotated api key announced by portal, switching")
			if err := r.keys.UpdateAPIKey(cnpj, newKey); err != nil {
				return nil, fmt.Errorf("failed to persist rotated key: %w", err)
			}
			client.SetBearer(newKey)
		}
	}
	if probeErr != nil {
		return nil, fmt.Errorf("sales probe failed for %s: %w", cnpj, probeErr)
	}

	raw, err := client.FetchAll(ctx, r.cfg.SalesPath, r.cfg.PageSize, func(page int) any {
		return r.payload(page, r.cfg.PageSize, from, to)
	})
	if err != nil {
		logger.Warn("Sales pagination degraded to partial results", zap.Error(err))
	}

	stationID := r.keys.ResolveID(cnpj)

	var mapped []*models.Sale
	for _, msg := range raw {
		var rec models.SaleRecord
		if uerr := json.Unmarshal(msg, &rec); uerr != nil {
			logger.Warn("Skipping malformed sale record", zap.Error(uerr))
			continue
		}
		if rec.AuthorizationStatus != StatusAuthorized {
			continue
		}
		if validDays != nil {
			if len(rec.FuelingTime) < 10 || !validDays[rec.FuelingTime[:10]] {
				continue
			}
		}
		mapped = append(mapped, r.normalizer.MapSale(&rec, cnpj, stationID))
	}

	clean := dedup.Sales(mapped)
	if len(clean) == 0 {
		logger.Info("No authorized sales in window")
		return nil, nil
	}

	written, err := r.sink.UpsertBatch(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to persist sale batch: %w", err)
	}
	logger.Info("Sales persisted", zap.Int("count", written))
	return clean, nil
}

// RunAll runs every allow-listed station sequentially; one station at a time
// keeps the portal's rate limit happy. Per-station failures are logged and
// do not stop the remaining stations.
func (r *Runner) RunAll(ctx context.Context, cnpjs []string, from, to string, validDays map[string]bool) {
	for _, cnpj := range cnpjs {
		if _, err := r.RunStation(ctx, cnpj, from, to, validDays); err != nil {
			r.logger.Error("Sales run failed for station",
				zap.String("cnpj", cnpj), zap.Error(err))
		}
	}
}

// payload builds the sales search envelope
func (r *Runner) payload(page, pageSize int, from, to string) map[string]any {
	return map[string]any{
		"pagina":                        page,
		"tamanhoPagina":                 pageSize,
		"idAutorizacaoPagamentoInicial": 0,
		"idAutorizacaoPagamentoExato":   false,
		"dataInicial":                   from,
		"dataFinal":                     to,
	}
}
