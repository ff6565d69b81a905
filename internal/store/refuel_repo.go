package store

import (
	"database/sql"
	"fmt"

	"github.com/rmacedof/fuelsync/internal/models"
	"go.uber.org/zap"
)

// RefuelRepository persists canonical reimbursement records. Writes are
// idempotent upserts keyed on (company, raw_timestamp, total_amount), so
// re-fetching an overlapping window never duplicates rows.
type RefuelRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRefuelRepository creates a new refuel repository
func NewRefuelRepository(db *sql.DB, logger *zap.Logger) *RefuelRepository {
	return &RefuelRepository{db: db, logger: logger}
}

// UpsertBatch writes a batch inside one transaction and returns the number
// of records written.
func (r *RefuelRepository) UpsertBatch(records []*models.Refuel) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO refuels (
			station_id, station_cnpj, company, reimbursement_total,
			raw_timestamp, refuel_date, refuel_time, invoice_numbers,
			plate_driver, fuel_name, service_name,
			total_liters, fuel_liters, secondary_liters,
			total_amount, fuel_amount, secondary_amount,
			destination, invoice_count, payment_status, payment_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company, raw_timestamp, total_amount) DO UPDATE SET
			station_id = excluded.station_id,
			reimbursement_total = excluded.reimbursement_total,
			invoice_numbers = excluded.invoice_numbers,
			payment_status = excluded.payment_status,
			payment_date = excluded.payment_date,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.Exec(
			nullable(rec.StationID), rec.StationCNPJ, rec.Company, rec.ReimbursementTotal,
			rec.RawTimestamp, nullable(rec.Date), rec.Time, rec.InvoiceNumbers,
			rec.PlateDriver, rec.FuelName, rec.ServiceName,
			rec.TotalLiters, rec.FuelLiters, rec.SecondaryLiters,
			rec.TotalAmount, rec.FuelAmount, rec.SecondaryAmount,
			rec.Destination, rec.InvoiceCount, rec.PaymentStatus, nullable(rec.PaymentDate),
		)
		if err != nil {
			r.logger.Error("Failed to upsert refuel",
				zap.String("company", rec.Company),
				zap.String("raw_timestamp", rec.RawTimestamp),
				zap.Error(err))
			return 0, fmt.Errorf("failed to upsert refuel: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit refuel batch: %w", err)
	}

	r.logger.Info("Refuel batch persisted", zap.Int("count", len(records)))
	return len(records), nil
}

// ListByStationPeriod returns refuels for a station in a date window. When
// byPayment is set the window applies to payment_date, matching how the
// dashboard groups reimbursements; otherwise to the refuel date.
func (r *RefuelRepository) ListByStationPeriod(cnpj, from, to string, byPayment bool) ([]*models.Refuel, error) {
	dateCol := "refuel_date"
	if byPayment {
		dateCol = "payment_date"
	}

	query := fmt.Sprintf(`
		SELECT station_id, station_cnpj, company, reimbursement_total,
			raw_timestamp, refuel_date, refuel_time, invoice_numbers,
			plate_driver, fuel_name, service_name,
			total_liters, fuel_liters, secondary_liters,
			total_amount, fuel_amount, secondary_amount,
			destination, invoice_count, payment_status, payment_date
		FROM refuels
		WHERE station_cnpj = ? AND %s >= ? AND %s <= ?
		ORDER BY %s DESC
		LIMIT 5000
	`, dateCol, dateCol, dateCol)

	rows, err := r.db.Query(query, cnpj, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query refuels: %w", err)
	}
	defer rows.Close()

	var records []*models.Refuel
	for rows.Next() {
		var rec models.Refuel
		var stationID, date, paymentDate sql.NullString
		err := rows.Scan(
			&stationID, &rec.StationCNPJ, &rec.Company, &rec.ReimbursementTotal,
			&rec.RawTimestamp, &date, &rec.Time, &rec.InvoiceNumbers,
			&rec.PlateDriver, &rec.FuelName, &rec.ServiceName,
			&rec.TotalLiters, &rec.FuelLiters, &rec.SecondaryLiters,
			&rec.TotalAmount, &rec.FuelAmount, &rec.SecondaryAmount,
			&rec.Destination, &rec.InvoiceCount, &rec.PaymentStatus, &paymentDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refuel: %w", err)
		}
		rec.StationID = stationID.String
		rec.Date = date.String
		rec.PaymentDate = paymentDate.String
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// nullable maps "" to NULL so partial dates don't pollute date columns
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
