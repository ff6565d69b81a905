package reimburse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/rmacedof/fuelsync/internal/normalize"
	"github.com/rmacedof/fuelsync/internal/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCNPJ = "03.951.672/0001-70"

func testNormalizer() *normalize.Normalizer {
	return normalize.New(normalize.Options{
		AllowList:       map[string]string{testCNPJ: "Auto Posto Sof Norte Ltda"},
		ExemptFragments: []string{"prefeitura"},
		SecondaryMarker: "arla",
	}, nil)
}

func sessionClient(baseURL string) *portal.Client {
	return portal.NewClient(baseURL, "", &portal.Session{Bearer: "Bearer tok"}, 5*time.Second, zap.NewNop())
}

func addressedInvoice() *models.InvoiceHeader {
	return &models.InvoiceHeader{
		ID:                 4001,
		PeriodStart:        "2024-03-01T00:00:00",
		PeriodEnd:          "2024-03-15T23:59:59",
		ReimbursementTotal: 630,
		PaymentStatus:      &models.LabeledValue{Value: 2, Label: StatusPaid},
		PaymentDate:        "2024-03-20T00:00:00",
		FleetPointOfSale: &models.FleetPOS{
			Fleet:         &models.Fleet{ID: 77, CNPJ: "11.222.333/0001-44"},
			PointOfSaleID: 55,
		},
	}
}

func TestFetchInvoice_MissingAddressingYieldsZeroRows(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.InvoiceHeader)
	}{
		{name: "missing consolidated id", mutate: func(h *models.InvoiceHeader) { h.ID = 0 }},
		{name: "missing fleet block", mutate: func(h *models.InvoiceHeader) { h.FleetPointOfSale = nil }},
		{name: "missing fleet", mutate: func(h *models.InvoiceHeader) { h.FleetPointOfSale.Fleet = nil }},
		{name: "missing fleet id", mutate: func(h *models.InvoiceHeader) { h.FleetPointOfSale.Fleet.ID = 0 }},
		{name: "missing pv id", mutate: func(h *models.InvoiceHeader) { h.FleetPointOfSale.PointOfSaleID = 0 }},
	}

	fetcher := NewLineItemFetcher(nil, "/detail", 500, testNormalizer(), zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := addressedInvoice()
			tt.mutate(inv)

			refuels, err := fetcher.FetchInvoice(context.Background(), inv, "")
			assert.NoError(t, err)
			assert.Empty(t, refuels)
		})
	}
}

func TestFetchInvoice_NormalizesChildLines(t *testing.T) {
	detail := fmt.Sprintf(`{
		"abastecimentosFilhos": [
			{
				"cnpjPosto": %q,
				"dataTransacao": "15/03/2024",
				"horaTransacao": "08:30",
				"nomeFrota": "Transportes Alfa Ltda",
				"valorTotal": 630,
				"totalLitrosAbastecimento": 110,
				"itensAbastecimento": [
					{"nome": "Diesel S10", "quantidade": 100, "valorUnitario": 6.0, "valorTotal": 600},
					{"nome": "Arla 32", "quantidade": 10, "valorUnitario": 3.0, "valorTotal": 30}
				]
			},
			{
				"cnpjPosto": "99.999.999/0001-99",
				"dataTransacao": "15/03/2024",
				"horaTransacao": "09:00",
				"nomeFrota": "Fora da Lista",
				"valorTotal": 100
			}
		]
	}`, testCNPJ)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.EqualValues(t, 4001, payload["idConsolidado"])

		fmt.Fprintf(w, `{"registros": [%s], "totalItems": 1}`, detail)
	}))
	defer srv.Close()

	fetcher := NewLineItemFetcher(sessionClient(srv.URL), "/detail", 500, testNormalizer(), zap.NewNop())

	refuels, err := fetcher.FetchInvoice(context.Background(), addressedInvoice(), "")
	require.NoError(t, err)
	require.Len(t, refuels, 1)

	got := refuels[0]
	assert.Equal(t, testCNPJ, got.StationCNPJ)
	assert.Equal(t, "2024-03-15", got.Date)
	assert.Equal(t, StatusPaid, got.PaymentStatus)
	assert.Equal(t, "2024-03-20", got.PaymentDate)
	assert.InDelta(t, 630, got.ReimbursementTotal, 0.01)
}

func TestPaymentStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   *models.LabeledValue
		expected string
	}{
		{name: "paid", status: &models.LabeledValue{Label: "Pago"}, expected: "Pago"},
		{name: "authorized", status: &models.LabeledValue{Label: "Autorizado"}, expected: "Autorizado"},
		{name: "empty label defaults to pending", status: &models.LabeledValue{}, expected: "Pendente"},
		{name: "missing block defaults to pending", status: nil, expected: "Pendente"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := addressedInvoice()
			inv.PaymentStatus = tt.status
			assert.Equal(t, tt.expected, paymentStatus(inv))
		})
	}
}

func TestPaymentDate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.InvoiceHeader)
		expected string
	}{
		{
			name:     "paid invoice uses payment date prefix",
			mutate:   func(h *models.InvoiceHeader) {},
			expected: "2024-03-20",
		},
		{
			name: "unpaid invoice falls back to deadline",
			mutate: func(h *models.InvoiceHeader) {
				h.PaymentStatus = &models.LabeledValue{Label: "Autorizado"}
				h.Deadlines = &models.Deadlines{PaymentDeadline: "2024-04-01T00:00:00"}
			},
			expected: "2024-04-01",
		},
		{
			name: "unpaid invoice without deadline stays empty",
			mutate: func(h *models.InvoiceHeader) {
				h.PaymentStatus = &models.LabeledValue{Label: "Autorizado"}
				h.Deadlines = nil
			},
			expected: "",
		},
		{
			name: "short raw date stays empty",
			mutate: func(h *models.InvoiceHeader) {
				h.PaymentDate = "2024"
			},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := addressedInvoice()
			tt.mutate(inv)
			assert.Equal(t, tt.expected, paymentDate(inv))
		})
	}
}

func TestFetchWindow_ParsesHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "2024-03-01T00:00:00.000Z", payload["de"])

		fmt.Fprint(w, `{
			"registros": [
				{"id": 4001, "valorReembolso": 630.5, "frotaPontoVenda": {"frota": {"id": 77, "cnpj": "11.222.333/0001-44"}, "idPv": 55}},
				{"id": 4002, "valorReembolso": "120,75"}
			],
			"totalItems": 2
		}`)
	}))
	defer srv.Close()

	fetcher := NewInvoiceFetcher(sessionClient(srv.URL), "/invoices", 50, zap.NewNop())

	headers, err := fetcher.FetchWindow(context.Background(), "2024-03-01T00:00:00.000Z", "2024-03-15T23:59:59.000Z")
	require.NoError(t, err)
	require.Len(t, headers, 2)

	assert.Equal(t, int64(4001), headers[0].ID)
	assert.InDelta(t, 630.5, headers[0].ReimbursementTotal.Float64(), 0.001)
	// Comma-decimal string amounts parse too.
	assert.InDelta(t, 120.75, headers[1].ReimbursementTotal.Float64(), 0.001)
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 3, 18, 15, 4, 5, 0, time.UTC)
	from, to := Window(now, 7)

	assert.Equal(t, "2024-03-11T00:00:00.000Z", from)
	assert.Equal(t, "2024-03-18T15:04:05.000Z", to)
}
