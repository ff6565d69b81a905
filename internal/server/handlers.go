package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rmacedof/fuelsync/internal/flight"
	"github.com/rmacedof/fuelsync/internal/normalize"
	"github.com/rmacedof/fuelsync/internal/provider"
	"github.com/rmacedof/fuelsync/internal/report"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	registry *provider.Registry
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(registry *provider.Registry, logger *zap.Logger) *Handlers {
	return &Handlers{registry: registry, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ProviderResponse describes one registered portal integration
type ProviderResponse struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// PeriodRequest represents the common query parameters of the data routes
type PeriodRequest struct {
	CNPJ      string `form:"cnpj"`
	From      string `form:"from"`
	To        string `form:"to"`
	ByPayment bool   `form:"by_payment"`
}

// SummaryResponse aggregates a station's period in one payload
type SummaryResponse struct {
	CNPJ                string  `json:"cnpj"`
	From                string  `json:"from"`
	To                  string  `json:"to"`
	SalesCount          int     `json:"sales_count"`
	SalesTotal          float64 `json:"sales_total"`
	SalesLiters         float64 `json:"sales_liters"`
	ReimbursementCount  int     `json:"reimbursement_count"`
	ReimbursementTotal  float64 `json:"reimbursement_total"`
	ReimbursementLiters float64 `json:"reimbursement_liters"`
	FuelAmount          float64 `json:"fuel_amount"`
	SecondaryAmount     float64 `json:"secondary_amount"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// ListProviders handles GET /api/providers
func (h *Handlers) ListProviders(c *gin.Context) {
	var out []ProviderResponse
	for _, p := range h.registry.List() {
		out = append(out, ProviderResponse{Slug: p.Slug(), Name: p.Name()})
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: out})
}

// ListStations handles GET /api/:provider/stations
func (h *Handlers) ListStations(c *gin.Context) {
	p, ok := h.provider(c)
	if !ok {
		return
	}

	stations, err := p.Stations()
	if err != nil {
		h.logger.Error("Failed to list stations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve stations",
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: stations})
}

// ListSales handles GET /api/:provider/sales
func (h *Handlers) ListSales(c *gin.Context) {
	p, ok := h.provider(c)
	if !ok {
		return
	}
	req, ok := h.period(c)
	if !ok {
		return
	}

	sales, err := p.Sales(c.Request.Context(), req.CNPJ, req.From, req.To)
	if err != nil {
		h.fetchError(c, "sales", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sales})
}

// ListReimbursements handles GET /api/:provider/reimbursements
func (h *Handlers) ListReimbursements(c *gin.Context) {
	p, ok := h.provider(c)
	if !ok {
		return
	}
	req, ok := h.period(c)
	if !ok {
		return
	}

	refuels, err := p.Reimbursements(c.Request.Context(), req.CNPJ, req.From, req.To, req.ByPayment)
	if err != nil {
		h.fetchError(c, "reimbursements", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: refuels})
}

// Summary handles GET /api/:provider/summary
func (h *Handlers) Summary(c *gin.Context) {
	p, ok := h.provider(c)
	if !ok {
		return
	}
	req, ok := h.period(c)
	if !ok {
		return
	}

	sales, err := p.Sales(c.Request.Context(), req.CNPJ, req.From, req.To)
	if err != nil {
		h.fetchError(c, "summary", err)
		return
	}
	refuels, err := p.Reimbursements(c.Request.Context(), req.CNPJ, req.From, req.To, req.ByPayment)
	if err != nil {
		h.fetchError(c, "summary", err)
		return
	}

	summary := SummaryResponse{CNPJ: req.CNPJ, From: req.From, To: req.To}
	for _, s := range sales {
		summary.SalesCount++
		summary.SalesTotal += s.TotalAmount
		summary.SalesLiters += s.TotalLiters
	}
	for _, r := range refuels {
		summary.ReimbursementCount++
		summary.ReimbursementTotal += r.TotalAmount
		summary.ReimbursementLiters += r.TotalLiters
		summary.FuelAmount += r.FuelAmount
		summary.SecondaryAmount += r.SecondaryAmount
	}
	summary.SalesTotal = normalize.Round2(summary.SalesTotal)
	summary.SalesLiters = normalize.Round3(summary.SalesLiters)
	summary.ReimbursementTotal = normalize.Round2(summary.ReimbursementTotal)
	summary.ReimbursementLiters = normalize.Round3(summary.ReimbursementLiters)
	summary.FuelAmount = normalize.Round2(summary.FuelAmount)
	summary.SecondaryAmount = normalize.Round2(summary.SecondaryAmount)

	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// Report handles GET /api/:provider/report.xlsx
func (h *Handlers) Report(c *gin.Context) {
	p, ok := h.provider(c)
	if !ok {
		return
	}
	req, ok := h.period(c)
	if !ok {
		return
	}

	sales, err := p.Sales(c.Request.Context(), req.CNPJ, req.From, req.To)
	if err != nil {
		h.fetchError(c, "report", err)
		return
	}
	refuels, err := p.Reimbursements(c.Request.Context(), req.CNPJ, req.From, req.To, req.ByPayment)
	if err != nil {
		h.fetchError(c, "report", err)
		return
	}

	file, err := report.Period(req.CNPJ, req.From, req.To, sales, refuels)
	if err != nil {
		h.logger.Error("Failed to build report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to build report",
		})
		return
	}
	defer file.Close()

	filename := fmt.Sprintf("report_%s_%s_%s.xlsx", req.CNPJ, req.From, req.To)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		h.logger.Error("Failed to stream report", zap.Error(err))
	}
}

// provider resolves the :provider path parameter, answering 404 itself on an
// unknown slug.
func (h *Handlers) provider(c *gin.Context) (provider.Provider, bool) {
	slug := c.Param("provider")
	p, err := h.registry.Get(slug)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "unknown provider " + slug,
		})
		return nil, false
	}
	return p, true
}

// period binds and validates the common cnpj/from/to query parameters
func (h *Handlers) period(c *gin.Context) (PeriodRequest, bool) {
	var req PeriodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return req, false
	}
	if req.CNPJ == "" || req.From == "" || req.To == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "cnpj, from and to are required",
		})
		return req, false
	}
	for _, d := range []string{req.From, req.To} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "dates must be yyyy-mm-dd",
			})
			return req, false
		}
	}
	if req.From > req.To {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "from must not be after to",
		})
		return req, false
	}
	return req, true
}

// fetchError maps provider failures to status codes. A concurrent on-demand
// fetch for the same resource surfaces as 409 so the client retries shortly.
func (h *Handlers) fetchError(c *gin.Context, op string, err error) {
	if errors.Is(err, flight.ErrInFlight) {
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Error:   "a sync for this resource is already in progress",
		})
		return
	}
	h.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error:   "failed to retrieve " + op,
	})
}
