// Package report renders a station's period into a downloadable spreadsheet:
// a summary sheet plus one sheet each for sales and reimbursements.
package report

import (
	"fmt"

	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/rmacedof/fuelsync/internal/normalize"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Resumo"
	salesSheet   = "Vendas"
	refuelsSheet = "Reembolsos"
)

// Period builds the xlsx workbook for one station and window. The caller owns
// the returned file and must Close it.
func Period(cnpj, from, to string, sales []*models.Sale, refuels []*models.Refuel) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename summary sheet: %w", err)
	}
	for _, name := range []string{salesSheet, refuelsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	writeSummary(f, cnpj, from, to, sales, refuels)
	writeSales(f, sales)
	writeRefuels(f, refuels)

	return f, nil
}

// writeSummary fills the header sheet with the period totals
func writeSummary(f *excelize.File, cnpj, from, to string, sales []*models.Sale, refuels []*models.Refuel) {
	var salesTotal, salesLiters float64
	for _, s := range sales {
		salesTotal += s.TotalAmount
		salesLiters += s.TotalLiters
	}
	var refuelTotal, refuelLiters, fuelAmount, secondaryAmount float64
	for _, r := range refuels {
		refuelTotal += r.TotalAmount
		refuelLiters += r.TotalLiters
		fuelAmount += r.FuelAmount
		secondaryAmount += r.SecondaryAmount
	}

	rows := [][]any{
		{"Posto (CNPJ)", cnpj},
		{"Período", from + " a " + to},
		{},
		{"Vendas", len(sales)},
		{"Total vendas (R$)", normalize.Round2(salesTotal)},
		{"Litros vendidos", normalize.Round3(salesLiters)},
		{},
		{"Reembolsos", len(refuels)},
		{"Total reembolsos (R$)", normalize.Round2(refuelTotal)},
		{"Litros reembolsados", normalize.Round3(refuelLiters)},
		{"Combustível (R$)", normalize.Round2(fuelAmount)},
		{"Arla (R$)", normalize.Round2(secondaryAmount)},
	}
	for i, row := range rows {
		setRow(f, summarySheet, i+1, row)
	}
}

// writeSales fills the sales sheet, one authorization per row
func writeSales(f *excelize.File, sales []*models.Sale) {
	setRow(f, salesSheet, 1, []any{
		"Autorização", "Data", "Hora", "Frota", "CNPJ Frota", "Motorista",
		"Placa", "Produto", "Serviço", "Litros", "Valor Unitário",
		"Valor Total", "Status", "Nota Fiscal",
	})
	for i, s := range sales {
		setRow(f, salesSheet, i+2, []any{
			s.AuthorizationID, s.Date, s.Time, s.FleetName, s.FleetCNPJ, s.DriverName,
			s.Plate, s.Product, s.Service, s.TotalLiters, s.UnitPrice,
			s.TotalAmount, s.AuthorizationState, s.InvoiceStatus,
		})
	}
}

// writeRefuels fills the reimbursement sheet, one transaction per row
func writeRefuels(f *excelize.File, refuels []*models.Refuel) {
	setRow(f, refuelsSheet, 1, []any{
		"Data", "Hora", "Empresa", "Placa/Motorista", "Combustível", "Serviço",
		"Litros", "Litros Combustível", "Litros Arla",
		"Valor Total", "Valor Combustível", "Valor Arla",
		"Nota Fiscal", "Qtd NFs", "Status Pagamento", "Data Pagamento", "Destino",
	})
	for i, r := range refuels {
		setRow(f, refuelsSheet, i+2, []any{
			r.Date, r.Time, r.Company, r.PlateDriver, r.FuelName, r.ServiceName,
			r.TotalLiters, r.FuelLiters, r.SecondaryLiters,
			r.TotalAmount, r.FuelAmount, r.SecondaryAmount,
			r.InvoiceNumbers, r.InvoiceCount, r.PaymentStatus, r.PaymentDate, r.Destination,
		})
	}
}

// setRow writes one row of values starting at column A. A failed cell write
// leaves that cell blank.
func setRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			continue
		}
		_ = f.SetCellValue(sheet, cell, v)
	}
}
