package report

import (
	"testing"

	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_SheetsAndTotals(t *testing.T) {
	sales := []*models.Sale{
		{AuthorizationID: 1, Date: "2024-03-15", TotalAmount: 100.5, TotalLiters: 20},
		{AuthorizationID: 2, Date: "2024-03-16", TotalAmount: 200.25, TotalLiters: 40},
	}
	refuels := []*models.Refuel{
		{Date: "2024-03-15", Company: "Transportes Alfa Ltda", TotalAmount: 630,
			TotalLiters: 110, FuelAmount: 600, SecondaryAmount: 30},
	}

	f, err := Period("03.951.672/0001-70", "2024-03-01", "2024-03-15", sales, refuels)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Resumo", "Vendas", "Reembolsos"}, f.GetSheetList())

	cnpj, err := f.GetCellValue("Resumo", "B1")
	require.NoError(t, err)
	assert.Equal(t, "03.951.672/0001-70", cnpj)

	salesTotal, err := f.GetCellValue("Resumo", "B5")
	require.NoError(t, err)
	assert.Equal(t, "300.75", salesTotal)

	company, err := f.GetCellValue("Reembolsos", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Transportes Alfa Ltda", company)
}

func TestPeriod_EmptyWindow(t *testing.T) {
	f, err := Period("03.951.672/0001-70", "2024-03-01", "2024-03-15", nil, nil)
	require.NoError(t, err)
	defer f.Close()

	// Header rows only.
	rows, err := f.GetRows("Vendas")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
