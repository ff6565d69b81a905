package normalize

import (
	"testing"

	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	ids map[string]string
}

func (s *stubResolver) ResolveID(cnpj string) string {
	return s.ids[cnpj]
}

const testCNPJ = "03.951.672/0001-70"

func newTestNormalizer() *Normalizer {
	return New(Options{
		AllowList:       map[string]string{testCNPJ: "Auto Posto Sof Norte Ltda"},
		ExemptFragments: []string{"cooperativa", "prefeitura"},
		SecondaryMarker: "arla",
	}, &stubResolver{ids: map[string]string{testCNPJ: "station-uuid-1"}})
}

func baseLine() *models.TransactionLine {
	return &models.TransactionLine{
		StationCNPJ:  testCNPJ,
		Date:         "15/03/2024",
		Time:         "08:30",
		FleetName:    "Transportes Alfa Ltda",
		Plate:        "ABC1D23",
		DriverName:   "João da Silva",
		Destination:  "Unidade Norte",
		TotalLiters:  110,
		TotalAmount:  630,
		InvoiceCount: 1,
		IssuedNumbers: []models.IssuedInvoice{
			{Number: "12345"},
		},
		Items: []models.LineItem{
			{Name: "Diesel S10", Quantity: 100, UnitPrice: 6.0, Total: 600},
			{Name: "Arla 32", Quantity: 10, UnitPrice: 3.0, Total: 30},
		},
	}
}

func TestBRDateToISO(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "standard date", input: "15/03/2024", expected: "2024-03-15"},
		{name: "end of year", input: "31/12/2023", expected: "2023-12-31"},
		{name: "too short", input: "1/3/24", expected: ""},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BRDateToISO(tt.input))
		})
	}
}

func TestNormalizeLine_DateAndTimestamp(t *testing.T) {
	n := newTestNormalizer()

	refuel, ok := n.NormalizeLine(baseLine(), InvoiceContext{}, "")
	require.True(t, ok)

	assert.Equal(t, "2024-03-15", refuel.Date)
	assert.Equal(t, "08:30", refuel.Time)
	assert.Equal(t, "08:30 15/03/2024", refuel.RawTimestamp)
}

func TestNormalizeLine_MissingTimeDefaultsToMidnight(t *testing.T) {
	n := newTestNormalizer()
	line := baseLine()
	line.Time = ""

	refuel, ok := n.NormalizeLine(line, InvoiceContext{}, "")
	require.True(t, ok)

	assert.Equal(t, "00:00", refuel.Time)
	assert.Equal(t, "00:00 15/03/2024", refuel.RawTimestamp)
}

func TestNormalizeLine_FuelSecondarySplit(t *testing.T) {
	n := newTestNormalizer()

	refuel, ok := n.NormalizeLine(baseLine(), InvoiceContext{}, "")
	require.True(t, ok)

	assert.Equal(t, "Diesel S10", refuel.FuelName)
	assert.Equal(t, "Arla 32", refuel.ServiceName)
	assert.InDelta(t, 100, refuel.FuelLiters, 0.001)
	assert.InDelta(t, 10, refuel.SecondaryLiters, 0.001)
	assert.InDelta(t, 600, refuel.FuelAmount, 0.01)
	assert.InDelta(t, 30, refuel.SecondaryAmount, 0.01)
	assert.InDelta(t, 630, refuel.TotalAmount, 0.01)
	assert.InDelta(t, 110, refuel.TotalLiters, 0.001)
}

func TestNormalizeLine_ItemAmountFallsBackToQtyTimesUnit(t *testing.T) {
	n := newTestNormalizer()
	line := baseLine()
	line.Items = []models.LineItem{
		{Name: "Gasolina Comum", Quantity: 40, UnitPrice: 5.5, Total: 0},
	}
	line.TotalAmount = 0
	line.TotalLiters = 0

	refuel, ok := n.NormalizeLine(line, InvoiceContext{}, "")
	require.True(t, ok)

	assert.InDelta(t, 220, refuel.FuelAmount, 0.01)
	assert.InDelta(t, 220, refuel.TotalAmount, 0.01)
	assert.InDelta(t, 40, refuel.TotalLiters, 0.001)
}

func TestNormalizeLine_RootLevelFuelFallback(t *testing.T) {
	n := newTestNormalizer()
	line := baseLine()
	line.Items = nil
	line.FuelName = "Diesel S500"
	line.TotalLiters = 50
	line.TotalAmount = 300

	refuel, ok := n.NormalizeLine(line, InvoiceContext{}, "")
	require.True(t, ok)

	assert.Equal(t, "Diesel S500", refuel.FuelName)
	assert.InDelta(t, 50, refuel.FuelLiters, 0.001)
	assert.InDelta(t, 300, refuel.FuelAmount, 0.01)
}

func TestNormalizeLine_RootLevelSecondaryHasNoAmountInference(t *testing.T) {
	n := newTestNormalizer()
	line := baseLine()
	line.Items = nil
	line.FuelName = "Arla 32 Granel"
	line.TotalLiters = 20
	line.TotalAmount = 80

	refuel, ok := n.NormalizeLine(line, InvoiceContext{}, "")
	require.True(t, ok)

	assert.Equal(t, "Arla 32 Granel", refuel.ServiceName)
	assert.InDelta(t, 20, refuel.SecondaryLiters, 0.001)
	assert.InDelta(t, 0, refuel.SecondaryAmount, 0.01)
}

func TestNormalizeLine_AmountReconciliation(t *testing.T) {
	n := newTestNormalizer()
	line := baseLine()
	line.TotalAmount = 0

	refuel, ok := n.NormalizeLine(line, InvoiceContext{}, "")
	require.True(t, ok)

	assert.InDelta(t, refuel.FuelAmount+refuel.SecondaryAmount, refuel.TotalAmount, 0.01)
}

func TestNormalizeLine_AllowListFilter(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name          string
		cnpj          string
		stationFilter string
		wantOK        bool
	}{
		{name: "allow-listed station passes", cnpj: testCNPJ, wantOK: true},
		{name: "unknown station dropped", cnpj: "99.999.999/0001-99", wantOK: false},
		{name: "matching filter passes", cnpj: testCNPJ, stationFilter: testCNPJ, wantOK: true},
		{name: "mismatched filter dropped", cnpj: testCNPJ, stationFilter: "11.111.111/0001-11", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := baseLine()
			line.StationCNPJ = tt.cnpj
			_, ok := n.NormalizeLine(line, InvoiceContext{}, tt.stationFilter)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNormalizeLine_ExemptionInference(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name     string
		company  string
		numbers  []models.IssuedInvoice
		expected string
	}{
		{
			name:     "issued numbers are joined",
			company:  "Transportes Alfa Ltda",
			numbers:  []models.IssuedInvoice{{Number: "111"}, {Number: "222"}},
			expected: "111, 222",
		},
		{
			name:     "exempt company with no numbers gets the marker",
			company:  "Prefeitura Municipal de Sobradinho",
			numbers:  nil,
			expected: ExemptMarker,
		},
		{
			name:     "exempt company with numbers keeps the numbers",
			company:  "Cooperativa Agro Central",
			numbers:  []models.IssuedInvoice{{Number: "333"}},
			expected: "333",
		},
		{
			name:     "non-exempt company with no numbers stays empty",
			company:  "Transportes Alfa Ltda",
			numbers:  nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := baseLine()
			line.FleetName = tt.company
			line.IssuedNumbers = tt.numbers
			refuel, ok := n.NormalizeLine(line, InvoiceContext{}, "")
			require.True(t, ok)
			assert.Equal(t, tt.expected, refuel.InvoiceNumbers)
		})
	}
}

func TestNormalizeLine_InvoiceContextFoldedIn(t *testing.T) {
	n := newTestNormalizer()

	refuel, ok := n.NormalizeLine(baseLine(), InvoiceContext{
		ReimbursementTotal: 1234.567,
		PaymentStatus:      "Pago",
		PaymentDate:        "2024-03-20",
	}, "")
	require.True(t, ok)

	assert.InDelta(t, 1234.57, refuel.ReimbursementTotal, 0.001)
	assert.Equal(t, "Pago", refuel.PaymentStatus)
	assert.Equal(t, "2024-03-20", refuel.PaymentDate)
	assert.Equal(t, "station-uuid-1", refuel.StationID)
	assert.Equal(t, "ABC1D23\nJoão da Silva", refuel.PlateDriver)
}

func TestNormalizeLine_Deterministic(t *testing.T) {
	n := newTestNormalizer()
	ctx := InvoiceContext{ReimbursementTotal: 630, PaymentStatus: "Pendente"}

	first, ok := n.NormalizeLine(baseLine(), ctx, "")
	require.True(t, ok)
	second, ok := n.NormalizeLine(baseLine(), ctx, "")
	require.True(t, ok)

	assert.Equal(t, first, second)
}

func baseSale() *models.SaleRecord {
	return &models.SaleRecord{
		AuthorizationID: 987654,
		FuelingTime:     "2024-03-15T08:30:45",
		Fleet:           &models.SaleFleet{LegalName: "Transportes Alfa Ltda", CNPJ: "11.222.333/0001-44"},
		Driver:          &models.Driver{Name: "Maria Souza", CPF: "123.456.789-00"},
		Vehicle:         &models.Vehicle{Plate: "XYZ9A87"},
		Cycle: &models.Cycle{
			Start:         "2024-03-01T00:00:00",
			End:           "2024-03-15T23:59:59",
			IssueDeadline: "2024-03-20T23:59:59",
		},
		Items: []models.SaleItem{
			{Description: "Diesel S10", Quantity: 80, UnitPrice: 6.2, Total: 496},
			{Description: "Arla 32", Quantity: 5, UnitPrice: 3.1, Total: 15.5},
		},
		TotalAmount:         511.5,
		AuthorizationStatus: "Autorizado",
		InvoiceStatus:       "Emitida",
	}
}

func TestMapSale(t *testing.T) {
	n := newTestNormalizer()

	sale := n.MapSale(baseSale(), testCNPJ, "station-uuid-1")

	assert.Equal(t, int64(987654), sale.AuthorizationID)
	assert.Equal(t, "2024-03-15", sale.Date)
	assert.Equal(t, "08:30:45", sale.Time)
	assert.Equal(t, "Transportes Alfa Ltda", sale.FleetName)
	assert.Equal(t, "Maria Souza", sale.DriverName)
	assert.Equal(t, "XYZ9A87", sale.Plate)
	assert.Equal(t, "Diesel S10", sale.Product)
	assert.Equal(t, "Arla 32", sale.Service)
	assert.InDelta(t, 6.2, sale.UnitPrice, 0.001)
	assert.InDelta(t, 511.5, sale.TotalAmount, 0.01)
	assert.InDelta(t, 85, sale.TotalLiters, 0.001)
	assert.Equal(t, "2024-03-01", sale.CycleStart)
	assert.Equal(t, "2024-03-15", sale.CycleEnd)
	assert.Equal(t, "2024-03-20", sale.CycleIssueDeadline)
	assert.Equal(t, "Emitida", sale.InvoiceStatus)
}

func TestMapSale_ExemptionReplacesPendingInvoiceStatus(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name     string
		company  string
		status   string
		expected string
	}{
		{name: "exempt company, pending status", company: "Prefeitura de Planaltina", status: "Pendente", expected: ExemptMarker},
		{name: "exempt company, empty status", company: "Cooperativa Beta", status: "", expected: ExemptMarker},
		{name: "exempt company, issued status kept", company: "Prefeitura de Planaltina", status: "Emitida", expected: "Emitida"},
		{name: "regular company, pending kept", company: "Transportes Alfa Ltda", status: "Pendente", expected: "Pendente"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := baseSale()
			rec.Fleet.LegalName = tt.company
			rec.InvoiceStatus = tt.status
			sale := n.MapSale(rec, testCNPJ, "")
			assert.Equal(t, tt.expected, sale.InvoiceStatus)
		})
	}
}

func TestMapSale_TotalReconciliation(t *testing.T) {
	n := newTestNormalizer()
	rec := baseSale()
	rec.TotalAmount = 0

	sale := n.MapSale(rec, testCNPJ, "")

	assert.InDelta(t, sale.FuelAmount+sale.SecondaryAmount, sale.TotalAmount, 0.01)
}

func TestRounding(t *testing.T) {
	assert.InDelta(t, 1.23, Round2(1.2345), 0.0001)
	assert.InDelta(t, 1.235, Round3(1.23456), 0.00001)
}
