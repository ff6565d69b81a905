package models

// Refuel is the canonical reimbursement record persisted per qualifying
// transaction line. Upserts conflict on (Company, RawTimestamp, TotalAmount).
type Refuel struct {
	StationID          string  `json:"posto_id,omitempty"`
	StationCNPJ        string  `json:"cnpj_posto"`
	Company            string  `json:"empresa"`
	ReimbursementTotal float64 `json:"reembolso_total"`
	RawTimestamp       string  `json:"data_bruta"` // "HH:MM dd/mm/yyyy", dedup component
	Date               string  `json:"data"`       // yyyy-mm-dd
	Time               string  `json:"hora"`
	InvoiceNumbers     string  `json:"nota_fiscal"` // comma-joined, or the exemption marker
	PlateDriver        string  `json:"placa_motorista"`
	FuelName           string  `json:"combustivel"`
	ServiceName        string  `json:"servico"`
	TotalLiters        float64 `json:"litros"`
	FuelLiters         float64 `json:"litros_combustivel"`
	SecondaryLiters    float64 `json:"litros_arla"`
	TotalAmount        float64 `json:"valor_total"`
	FuelAmount         float64 `json:"valor_combustivel"`
	SecondaryAmount    float64 `json:"valor_arla"`
	Destination        string  `json:"local_destino"`
	InvoiceCount       int     `json:"qtd_nfs"`
	PaymentStatus      string  `json:"status_pagamento"`
	PaymentDate        string  `json:"data_pagamento,omitempty"`
}

// DedupKey is the natural key that makes refuel persistence idempotent
type DedupKey struct {
	Company      string
	RawTimestamp string
	TotalAmount  float64
}

// Key returns the refuel's natural key
func (r *Refuel) Key() DedupKey {
	return DedupKey{Company: r.Company, RawTimestamp: r.RawTimestamp, TotalAmount: r.TotalAmount}
}

// Sale is the canonical daily-sale record. Upserts conflict on the
// provider-assigned AuthorizationID.
type Sale struct {
	AuthorizationID    int64   `json:"id_autorizacao"`
	StationID          string  `json:"posto_id,omitempty"`
	StationCNPJ        string  `json:"cnpj_posto"`
	Date               string  `json:"data_abastecimento"` // yyyy-mm-dd
	Time               string  `json:"hora_abastecimento"`
	FleetName          string  `json:"nome_frota"`
	FleetCNPJ          string  `json:"cnpj_frota"`
	DriverName         string  `json:"nome_motorista"`
	DriverCPF          string  `json:"cpf_motorista"`
	Plate              string  `json:"placa_veiculo"`
	Product            string  `json:"produto"` // all fuels, " + "-joined
	Service            string  `json:"servico"` // all secondary fluids/services
	TotalLiters        float64 `json:"quantidade_litros"`
	UnitPrice          float64 `json:"valor_unitario"`
	TotalAmount        float64 `json:"valor_total"`
	AuthorizationState string  `json:"status_autorizacao"`
	InvoiceStatus      string  `json:"status_nota_fiscal"`
	CycleStart         string  `json:"ciclo_inicio,omitempty"`
	CycleEnd           string  `json:"ciclo_fim,omitempty"`
	CycleIssueDeadline string  `json:"ciclo_limite_emissao,omitempty"`
	FuelLiters         float64 `json:"litros_combustivel"`
	FuelAmount         float64 `json:"valor_combustivel"`
	SecondaryLiters    float64 `json:"litros_arla"`
	SecondaryAmount    float64 `json:"valor_arla"`
}

// Station is an allow-listed gas station with its portal credential
type Station struct {
	ID     string `json:"id"`
	CNPJ   string `json:"cnpj"`
	Name   string `json:"nome"`
	APIKey string `json:"-"`
}
