// Package normalize maps raw portal transaction and sale JSON into the
// canonical records the sink persists. It owns the fuel vs secondary-fluid
// split, the fiscal-exemption inference and the amount reconciliation rules.
package normalize

import (
	"math"
	"strings"

	"github.com/rmacedof/fuelsync/internal/models"
)

// ExemptMarker is the literal written to invoice-number/status fields when a
// company is fiscally exempt and no invoice numbers were issued.
const ExemptMarker = "Isenta"

// StationResolver resolves a station tax-id to its stored identifier. An
// unresolved lookup yields "" and never drops the record.
type StationResolver interface {
	ResolveID(cnpj string) string
}

// Options configures the normalizer
type Options struct {
	AllowList       map[string]string // cnpj -> display name, the authoritative filter
	ExemptFragments []string          // case-insensitive company-name fragments
	SecondaryMarker string            // sub-item name fragment marking the secondary fluid
}

// Normalizer turns raw portal records into canonical ones
type Normalizer struct {
	opts     Options
	resolver StationResolver
}

// New creates a normalizer
func New(opts Options, resolver StationResolver) *Normalizer {
	if opts.SecondaryMarker == "" {
		opts.SecondaryMarker = "arla"
	}
	return &Normalizer{opts: opts, resolver: resolver}
}

// InvoiceContext is the parent-invoice data folded into each line's record
type InvoiceContext struct {
	ReimbursementTotal float64
	PaymentStatus      string
	PaymentDate        string
}

// split is the per-class accumulation of a transaction's sub-items
type split struct {
	fuelNames       []string
	secondaryNames  []string
	fuelLiters      float64
	fuelAmount      float64
	secondaryLiters float64
	secondaryAmount float64
}

func (n *Normalizer) isSecondary(name string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(n.opts.SecondaryMarker))
}

// addItem classifies one sub-item and accumulates liters and amount. When the
// item's own total is missing or non-positive, quantity times unit price
// stands in for it.
func (s *split) addItem(n *Normalizer, name string, qty, unit, total float64) {
	if total <= 0 {
		total = qty * unit
	}
	if n.isSecondary(name) {
		if name != "" {
			s.secondaryNames = append(s.secondaryNames, name)
		}
		s.secondaryLiters += qty
		s.secondaryAmount += total
		return
	}
	if name != "" {
		s.fuelNames = append(s.fuelNames, name)
	}
	s.fuelLiters += qty
	s.fuelAmount += total
}

// NormalizeLine maps one transaction line into a canonical refuel record.
// Returns (nil, false) when the line is out of scope: station not on the
// allow-list, or not the explicitly requested station.
func (n *Normalizer) NormalizeLine(line *models.TransactionLine, inv InvoiceContext, stationFilter string) (*models.Refuel, bool) {
	cnpj := line.StationCNPJ
	if _, ok := n.opts.AllowList[cnpj]; !ok {
		return nil, false
	}
	if stationFilter != "" && cnpj != stationFilter {
		return nil, false
	}

	isoDate := BRDateToISO(line.Date)
	hour := line.Time
	if hour == "" {
		hour = "00:00"
	}
	rawTimestamp := strings.TrimSpace(hour + " " + line.Date)

	var numbers []string
	for _, nf := range line.IssuedNumbers {
		if nf.Number != "" {
			numbers = append(numbers, nf.Number)
		}
	}
	invoiceNumbers := strings.Join(numbers, ", ")
	if invoiceNumbers == "" && n.companyExempt(line.FleetName) {
		invoiceNumbers = ExemptMarker
	}

	var s split
	for _, item := range line.Items {
		s.addItem(n, item.Name, item.Quantity.Float64(), item.UnitPrice.Float64(), item.Total.Float64())
	}

	txTotal := line.TotalAmount.Float64()

	// Root-level fallback: older invoices carry the fuel only as flat fields
	// on the transaction, with no sub-item breakdown.
	if line.FuelName != "" {
		if n.isSecondary(line.FuelName) {
			if s.secondaryAmount == 0 {
				s.secondaryNames = append(s.secondaryNames, line.FuelName)
				s.secondaryLiters += line.TotalLiters.Float64()
				// No amount inference on this branch; matches portal exports.
			}
		} else if s.fuelAmount == 0 {
			s.fuelNames = append(s.fuelNames, line.FuelName)
			s.fuelLiters += line.TotalLiters.Float64()
			if txTotal > 0 {
				s.fuelAmount = txTotal - s.secondaryAmount
			}
		}
	}

	if txTotal <= 0 {
		txTotal = s.fuelAmount + s.secondaryAmount
	}
	totalLiters := line.TotalLiters.Float64()
	if totalLiters <= 0 {
		totalLiters = s.fuelLiters + s.secondaryLiters
	}

	plateDriver := strings.TrimSpace(line.Plate + "\n" + line.DriverName)

	var stationID string
	if n.resolver != nil {
		stationID = n.resolver.ResolveID(cnpj)
	}

	return &models.Refuel{
		StationID:          stationID,
		StationCNPJ:        cnpj,
		Company:            line.FleetName,
		ReimbursementTotal: Round2(inv.ReimbursementTotal),
		RawTimestamp:       rawTimestamp,
		Date:               isoDate,
		Time:               hour,
		InvoiceNumbers:     invoiceNumbers,
		PlateDriver:        plateDriver,
		FuelName:           strings.Join(s.fuelNames, " + "),
		ServiceName:        strings.Join(s.secondaryNames, " + "),
		TotalLiters:        Round3(totalLiters),
		FuelLiters:         Round3(s.fuelLiters),
		SecondaryLiters:    Round3(s.secondaryLiters),
		TotalAmount:        Round2(txTotal),
		FuelAmount:         Round2(s.fuelAmount),
		SecondaryAmount:    Round2(s.secondaryAmount),
		Destination:        line.Destination,
		InvoiceCount:       line.InvoiceCount,
		PaymentStatus:      inv.PaymentStatus,
		PaymentDate:        inv.PaymentDate,
	}, true
}

// MapSale maps one sales authorization into a canonical sale record
func (n *Normalizer) MapSale(r *models.SaleRecord, cnpj, stationID string) *models.Sale {
	var isoDate, hour string
	if ts := r.FuelingTime; len(ts) >= 10 {
		isoDate = ts[:10]
		if len(ts) >= 19 {
			hour = ts[11:19]
		}
	}

	var fleetName, fleetCNPJ string
	if r.Fleet != nil {
		fleetName = r.Fleet.LegalName
		fleetCNPJ = r.Fleet.CNPJ
	}

	invoiceStatus := r.InvoiceStatus
	if n.companyExempt(fleetName) && invoiceStatusPending(invoiceStatus) {
		invoiceStatus = ExemptMarker
	}

	var s split
	var unitPrice float64
	for i, item := range r.Items {
		if i == 0 {
			unitPrice = item.UnitPrice.Float64()
		}
		s.addItem(n, item.Description, item.Quantity.Float64(), item.UnitPrice.Float64(), item.Total.Float64())
	}

	total := r.TotalAmount.Float64()
	if total <= 0 {
		total = s.fuelAmount + s.secondaryAmount
	}

	sale := &models.Sale{
		AuthorizationID:    r.AuthorizationID,
		StationID:          stationID,
		StationCNPJ:        cnpj,
		Date:               isoDate,
		Time:               hour,
		FleetName:          fleetName,
		FleetCNPJ:          fleetCNPJ,
		Product:            strings.Join(s.fuelNames, " + "),
		Service:            strings.Join(s.secondaryNames, " + "),
		TotalLiters:        Round3(s.fuelLiters + s.secondaryLiters),
		UnitPrice:          unitPrice,
		TotalAmount:        Round2(total),
		AuthorizationState: r.AuthorizationStatus,
		InvoiceStatus:      invoiceStatus,
		FuelLiters:         Round3(s.fuelLiters),
		FuelAmount:         Round2(s.fuelAmount),
		SecondaryLiters:    Round3(s.secondaryLiters),
		SecondaryAmount:    Round2(s.secondaryAmount),
	}
	if r.Driver != nil {
		sale.DriverName = r.Driver.Name
		sale.DriverCPF = r.Driver.CPF
	}
	if r.Vehicle != nil {
		sale.Plate = r.Vehicle.Plate
	}
	if r.Cycle != nil {
		sale.CycleStart = datePrefix(r.Cycle.Start)
		sale.CycleEnd = datePrefix(r.Cycle.End)
		sale.CycleIssueDeadline = datePrefix(r.Cycle.IssueDeadline)
	}
	return sale
}

// companyExempt reports whether the company name matches any configured
// exemption fragment, case-insensitively.
func (n *Normalizer) companyExempt(company string) bool {
	lower := strings.ToLower(company)
	for _, frag := range n.opts.ExemptFragments {
		if frag != "" && strings.Contains(lower, strings.ToLower(frag)) {
			return true
		}
	}
	return false
}

// invoiceStatusPending reports whether the portal's invoice-emission status
// still allows the exemption label to replace it.
func invoiceStatusPending(status string) bool {
	if status == "" {
		return true
	}
	lower := strings.ToLower(status)
	return strings.Contains(lower, "pendent") || strings.Contains(lower, "não")
}

// BRDateToISO converts "dd/mm/yyyy" into "yyyy-mm-dd". Anything too short
// comes back empty.
func BRDateToISO(d string) string {
	if len(d) < 10 {
		return ""
	}
	return d[6:10] + "-" + d[3:5] + "-" + d[0:2]
}

// datePrefix truncates a portal datetime to its date-only prefix
func datePrefix(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return ""
}

// Round2 rounds currency to 2 decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round3 rounds volumes to 3 decimal places
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
