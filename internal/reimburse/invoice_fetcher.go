// Package reimburse implements the PAI/FILHO extraction of reimbursement
// invoices and their fueling lines from the portal, for both the scheduled
// bulk run and the on-demand per-station path.
package reimburse

import (
	"context"
	"encoding/json"

	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/rmacedof/fuelsync/internal/portal"
	"go.uber.org/zap"
)

// InvoiceFetcher retrieves invoice headers (parent nodes) for a date window.
// The endpoint cannot filter by the station allow-list, so station filtering
// is deferred to the line-item stage.
type InvoiceFetcher struct {
	client   *portal.Client
	path     string
	pageSize int
	logger   *zap.Logger
}

// NewInvoiceFetcher creates an invoice fetcher bound to a session client
func NewInvoiceFetcher(client *portal.Client, path string, pageSize int, logger *zap.Logger) *InvoiceFetcher {
	return &InvoiceFetcher{client: client, path: path, pageSize: pageSize, logger: logger}
}

// FetchWindow returns all invoice headers whose reimbursement deadline falls
// inside [from, to] (API-native ISO-8601 with milliseconds). A mid-pagination
// failure degrades to the headers gathered so far.
func (f *InvoiceFetcher) FetchWindow(ctx context.Context, from, to string) ([]*models.InvoiceHeader, error) {
	raw, err := f.client.FetchAll(ctx, f.path, f.pageSize, func(page int) any {
		return map[string]any{
			"paginacao":      models.Pagination{Page: page, PageSize: f.pageSize},
			"frota":          map[string]any{"id": nil, "nome": "Todas as frotas"},
			"empresaUnidade": map[string]any{"id": nil, "nome": "Todos"},
			"de":             from,
			"ate":            to,
			"tipoFiltroData": models.LabeledValue{Value: 1, Label: "Prazo de Reembolso"},
			"pontoDeVenda":   nil,
		}
	})

	headers := make([]*models.InvoiceHeader, 0, len(raw))
	for _, msg := range raw {
		var h models.InvoiceHeader
		if uerr := json.Unmarshal(msg, &h); uerr != nil {
			f.logger.Warn("Skipping malformed invoice header", zap.Error(uerr))
			continue
		}
		headers = append(headers, &h)
	}

	return headers, err
}
