package store

import (
	"database/sql"
	"fmt"

	"github.com/rmacedof/fuelsync/internal/models"
	"go.uber.org/zap"
)

// SaleRepository persists canonical daily sales. Writes are idempotent
// upserts keyed on the provider-assigned authorization id.
type SaleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *sql.DB, logger *zap.Logger) *SaleRepository {
	return &SaleRepository{db: db, logger: logger}
}

// UpsertBatch writes a batch inside one transaction and returns the number
// of records written.
func (r *SaleRepository) UpsertBatch(records []*models.Sale) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO sales (
			authorization_id, station_id, station_cnpj, sale_date, sale_time,
			fleet_name, fleet_cnpj, driver_name, driver_cpf, plate,
			product, service, total_liters, unit_price, total_amount,
			authorization_status, invoice_status,
			cycle_start, cycle_end, cycle_issue_deadline,
			fuel_liters, fuel_amount, secondary_liters, secondary_amount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(authorization_id) DO UPDATE SET
			authorization_status = excluded.authorization_status,
			invoice_status = excluded.invoice_status,
			total_amount = excluded.total_amount,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range records {
		_, err := stmt.Exec(
			s.AuthorizationID, nullable(s.StationID), s.StationCNPJ, nullable(s.Date), s.Time,
			s.FleetName, s.FleetCNPJ, s.DriverName, s.DriverCPF, s.Plate,
			s.Product, s.Service, s.TotalLiters, s.UnitPrice, s.TotalAmount,
			s.AuthorizationState, s.InvoiceStatus,
			nullable(s.CycleStart), nullable(s.CycleEnd), nullable(s.CycleIssueDeadline),
			s.FuelLiters, s.FuelAmount, s.SecondaryLiters, s.SecondaryAmount,
		)
		if err != nil {
			r.logger.Error("Failed to upsert sale",
				zap.Int64("authorization_id", s.AuthorizationID),
				zap.Error(err))
			return 0, fmt.Errorf("failed to upsert sale: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sale batch: %w", err)
	}

	r.logger.Info("Sale batch persisted", zap.Int("count", len(records)))
	return len(records), nil
}

// ListByStationPeriod returns sales for a station within a date window
func (r *SaleRepository) ListByStationPeriod(cnpj, from, to string) ([]*models.Sale, error) {
	rows, err := r.db.Query(`
		SELECT authorization_id, station_id, station_cnpj, sale_date, sale_time,
			fleet_name, fleet_cnpj, driver_name, driver_cpf, plate,
			product, service, total_liters, unit_price, total_amount,
			authorization_status, invoice_status,
			cycle_start, cycle_end, cycle_issue_deadline,
			fuel_liters, fuel_amount, secondary_liters, secondary_amount
		FROM sales
		WHERE station_cnpj = ? AND sale_date >= ? AND sale_date <= ?
		ORDER BY sale_date DESC, sale_time DESC
		LIMIT 5000
	`, cnpj, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var records []*models.Sale
	for rows.Next() {
		var s models.Sale
		var stationID, date, cs, ce, cd sql.NullString
		err := rows.Scan(
			&s.AuthorizationID, &stationID, &s.StationCNPJ, &date, &s.Time,
			&s.FleetName, &s.FleetCNPJ, &s.DriverName, &s.DriverCPF, &s.Plate,
			&s.Product, &s.Service, &s.TotalLiters, &s.UnitPrice, &s.TotalAmount,
			&s.AuthorizationState, &s.InvoiceStatus,
			&cs, &ce, &cd,
			&s.FuelLiters, &s.FuelAmount, &s.SecondaryLiters, &s.SecondaryAmount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		s.StationID = stationID.String
		s.Date = date.String
		s.CycleStart = cs.String
		s.CycleEnd = ce.String
		s.CycleIssueDeadline = cd.String
		records = append(records, &s)
	}
	return records, rows.Err()
}
