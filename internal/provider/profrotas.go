package provider

import (
	"context"

	"github.com/rmacedof/fuelsync/internal/flight"
	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/rmacedof/fuelsync/internal/sales"
	"go.uber.org/zap"
)

// RefuelReader serves stored reimbursements
type RefuelReader interface {
	ListByStationPeriod(cnpj, from, to string, byPayment bool) ([]*models.Refuel, error)
}

// SaleReader serves stored sales
type SaleReader interface {
	ListByStationPeriod(cnpj, from, to string) ([]*models.Sale, error)
}

// StationReader lists the registered stations
type StationReader interface {
	List() ([]*models.Station, error)
}

// ReimburseFetcher is the on-demand reimbursement path
type ReimburseFetcher interface {
	FetchPeriod(ctx context.Context, cnpj, fromDate, toDate string) ([]*models.Refuel, error)
}

// SaleFetcher is the on-demand sales path
type SaleFetcher interface {
	RunStation(ctx context.Context, cnpj, from, to string, validDays map[string]bool) ([]*models.Sale, error)
}

// Profrotas serves Profrotas data, storage first. A window with no stored
// rows triggers a live portal fetch, serialized per (kind, station, period)
// by the single-flight registry so concurrent dashboard refreshes cannot
// spawn duplicate browser logins.
type Profrotas struct {
	stations   StationReader
	refuels    RefuelReader
	sells      SaleReader
	reimburser ReimburseFetcher
	seller     SaleFetcher
	flights    *flight.Registry
	logger     *zap.Logger
}

// NewProfrotas wires the Profrotas provider
func NewProfrotas(stations StationReader, refuels RefuelReader, sells SaleReader,
	reimburser ReimburseFetcher, seller SaleFetcher, flights *flight.Registry, logger *zap.Logger) *Profrotas {
	return &Profrotas{
		stations:   stations,
		refuels:    refuels,
		sells:      sells,
		reimburser: reimburser,
		seller:     seller,
		flights:    flights,
		logger:     logger,
	}
}

// Slug implements Provider
func (p *Profrotas) Slug() string { return "profrotas" }

// Name implements Provider
func (p *Profrotas) Name() string { return "Profrotas" }

// Stations implements Provider
func (p *Profrotas) Stations() ([]*models.Station, error) {
	return p.stations.List()
}

// Sales implements Provider. Dates are plain yyyy-mm-dd.
func (p *Profrotas) Sales(ctx context.Context, cnpj, from, to string) ([]*models.Sale, error) {
	stored, err := p.sells.ListByStationPeriod(cnpj, from, to)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return stored, nil
	}

	key := flight.Key("sales", cnpj, from, to)
	if err := p.flights.Acquire(key); err != nil {
		return nil, err
	}
	defer p.flights.Release(key)

	p.logger.Info("No stored sales for window, fetching on demand",
		zap.String("cnpj", cnpj), zap.String("from", from), zap.String("to", to))

	apiFrom, apiTo := sales.PeriodWindow(from, to)
	fetched, err := p.seller.RunStation(ctx, cnpj, apiFrom, apiTo, nil)
	if err != nil {
		return nil, err
	}
	return fetched, nil
}

// Reimbursements implements Provider
func (p *Profrotas) Reimbursements(ctx context.Context, cnpj, from, to string, byPayment bool) ([]*models.Refuel, error) {
	stored, err := p.refuels.ListByStationPeriod(cnpj, from, to, byPayment)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return stored, nil
	}

	key := flight.Key("reimburse", cnpj, from, to)
	if err := p.flights.Acquire(key); err != nil {
		return nil, err
	}
	defer p.flights.Release(key)

	p.logger.Info("No stored reimbursements for window, fetching on demand",
		zap.String("cnpj", cnpj), zap.String("from", from), zap.String("to", to))

	fetched, err := p.reimburser.FetchPeriod(ctx, cnpj, from, to)
	if err != nil {
		return nil, err
	}
	if byPayment {
		// The live fetch persisted everything; re-read so the payment-date
		// window applies.
		return p.refuels.ListByStationPeriod(cnpj, from, to, true)
	}
	return fetched, nil
}
