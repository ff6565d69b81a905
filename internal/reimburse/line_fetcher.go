package reimburse

import (
	"context"
	"encoding/json"

	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/rmacedof/fuelsync/internal/normalize"
	"github.com/rmacedof/fuelsync/internal/portal"
	"go.uber.org/zap"
)

// StatusPaid is the portal's label for a settled reimbursement
const StatusPaid = "Pago"

// statusPending stands in when the portal omits the payment status
const statusPending = "Pendente"

// LineItemFetcher retrieves the fueling lines (child nodes) of one invoice
// and normalizes each as it arrives.
type LineItemFetcher struct {
	client     *portal.Client
	path       string
	pageSize   int
	normalizer *normalize.Normalizer
	logger     *zap.Logger
}

// NewLineItemFetcher creates a line-item fetcher bound to a session client
func NewLineItemFetcher(client *portal.Client, path string, pageSize int, n *normalize.Normalizer, logger *zap.Logger) *LineItemFetcher {
	return &LineItemFetcher{client: client, path: path, pageSize: pageSize, normalizer: n, logger: logger}
}

// FetchInvoice returns the canonical refuels of one invoice, optionally
// restricted to a single station. An invoice missing its consolidated id,
// fleet id or point-of-sale id yields zero lines: there is not enough
// addressing information to query the detail endpoint, and that is not an
// error. Retry-exhausted pages stop this invoice's pagination and keep what
// was gathered.
func (f *LineItemFetcher) FetchInvoice(ctx context.Context, inv *models.InvoiceHeader, stationFilter string) ([]*models.Refuel, error) {
	if inv.ID == 0 || inv.FleetPointOfSale == nil || inv.FleetPointOfSale.Fleet == nil ||
		inv.FleetPointOfSale.Fleet.ID == 0 || inv.FleetPointOfSale.PointOfSaleID == 0 {
		f.logger.Debug("Invoice lacks addressing ids, skipping", zap.Int64("invoice_id", inv.ID))
		return nil, nil
	}

	fleet := inv.FleetPointOfSale.Fleet
	invCtx := normalize.InvoiceContext{
		ReimbursementTotal: inv.ReimbursementTotal.Float64(),
		PaymentStatus:      paymentStatus(inv),
		PaymentDate:        paymentDate(inv),
	}

	raw, err := f.client.FetchAll(ctx, f.path, f.pageSize, func(page int) any {
		return map[string]any{
			"semEstorno":       false,
			"processamentoDe":  inv.PeriodStart,
			"processamentoAte": inv.PeriodEnd,
			"frota":            map[string]any{"id": fleet.ID, "cnpj": fleet.CNPJ},
			"pontoDeVenda":     map[string]any{"id": inv.FleetPointOfSale.PointOfSaleID},
			"agruparExibicao":  map[string]any{"name": "ABASTECIMENTO"},
			"idConsolidado":    inv.ID,
			"paginacao":        models.Pagination{Page: page, PageSize: f.pageSize},
		}
	})

	var refuels []*models.Refuel
	for _, msg := range raw {
		var rec models.DetailRecord
		if uerr := json.Unmarshal(msg, &rec); uerr != nil {
			f.logger.Warn("Skipping malformed detail record",
				zap.Int64("invoice_id", inv.ID), zap.Error(uerr))
			continue
		}
		for i := range rec.Children {
			if refuel, ok := f.normalizer.NormalizeLine(&rec.Children[i], invCtx, stationFilter); ok {
				refuels = append(refuels, refuel)
			}
		}
	}

	return refuels, err
}

// paymentStatus returns the invoice's payment status label, defaulting to
// pending when the portal omits it.
func paymentStatus(inv *models.InvoiceHeader) string {
	if inv.PaymentStatus != nil && inv.PaymentStatus.Label != "" {
		return inv.PaymentStatus.Label
	}
	return statusPending
}

// paymentDate derives the date shown to the dashboard: the paid date for
// settled invoices, the computed deadline otherwise. Portal datetimes longer
// than a plain date are truncated to their date prefix.
func paymentDate(inv *models.InvoiceHeader) string {
	var raw string
	if inv.PaymentStatus != nil && inv.PaymentStatus.Label == StatusPaid {
		raw = inv.PaymentDate
	} else if inv.Deadlines != nil {
		raw = inv.Deadlines.PaymentDeadline
	}
	if len(raw) >= 10 {
		return raw[:10]
	}
	return ""
}
