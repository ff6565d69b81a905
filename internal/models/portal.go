package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexFloat parses portal money/volume fields that arrive either as JSON
// numbers or as strings, sometimes with a comma decimal separator. Invalid
// or empty values decode to zero.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(strings.ReplaceAll(str, ",", "."))
		if str == "" || str == "None" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// Float64 returns the parsed value
func (f FlexFloat) Float64() float64 { return float64(f) }

// Pagination is the page envelope every portal search endpoint accepts
type Pagination struct {
	Page     int `json:"pagina"`
	PageSize int `json:"tamanhoPagina"`
}

// PageResponse is the common shape of portal search responses: a records
// array plus the server-reported total across all pages.
type PageResponse struct {
	Records    []json.RawMessage `json:"registros"`
	TotalItems int               `json:"totalItems"`
}

// LabeledValue is the portal's {value,label} enum wrapper
type LabeledValue struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// InvoiceHeader is one reimbursement grouping (parent node) returned by the
// invoice search endpoint. Its nested fleet/point-of-sale reference addresses
// the follow-up detail request.
type InvoiceHeader struct {
	ID                 int64         `json:"id"`
	PeriodStart        string        `json:"dataInicioPeriodo"`
	PeriodEnd          string        `json:"dataFimPeriodo"`
	ReimbursementTotal FlexFloat     `json:"valorReembolso"`
	PaymentStatus      *LabeledValue `json:"statusPagamentoReembolso"`
	PaymentDate        string        `json:"dataPagamento"`
	Deadlines          *Deadlines    `json:"prazos"`
	FleetPointOfSale   *FleetPOS     `json:"frotaPontoVenda"`
}

// Deadlines carries the invoice's computed payment deadline
type Deadlines struct {
	PaymentDeadline string `json:"dataLimitePagamento"`
}

// FleetPOS links an invoice to its fleet and point of sale
type FleetPOS struct {
	Fleet         *Fleet `json:"frota"`
	PointOfSaleID int64  `json:"idPv"`
}

// Fleet identifies the paying fleet company
type Fleet struct {
	ID        int64  `json:"id"`
	CNPJ      string `json:"cnpj"`
	TradeName string `json:"nomeFantasia"`
}

// DetailRecord is one record from the detail endpoint; the transaction lines
// themselves are nested children.
type DetailRecord struct {
	Children []TransactionLine `json:"abastecimentosFilhos"`
}

// TransactionLine is one fueling transaction (child node) inside an invoice
type TransactionLine struct {
	StationCNPJ   string          `json:"cnpjPosto"`
	Date          string          `json:"dataTransacao"` // dd/mm/yyyy
	Time          string          `json:"horaTransacao"` // HH:MM
	FleetName     string          `json:"nomeFrota"`
	Plate         string          `json:"placaVeiculo"`
	DriverName    string          `json:"nomeMotorista"`
	Destination   string          `json:"nomeUnidade"`
	FuelName      string          `json:"nomeItemAbastecimento"` // root-level fuel item
	TotalLiters   FlexFloat       `json:"totalLitrosAbastecimento"`
	TotalAmount   FlexFloat       `json:"valorTotal"`
	InvoiceCount  int             `json:"quantidadeNotasFiscais"`
	IssuedNumbers []IssuedInvoice `json:"notasFiscaisEmitidas"`
	Items         []LineItem      `json:"itensAbastecimento"`
}

// IssuedInvoice is an issued fiscal invoice number attached to a transaction
type IssuedInvoice struct {
	Number string `json:"numero"`
}

// LineItem is a fuel or service sub-item of a transaction
type LineItem struct {
	Name      string    `json:"nome"`
	Quantity  FlexFloat `json:"quantidade"`
	UnitPrice FlexFloat `json:"valorUnitario"`
	Total     FlexFloat `json:"valorTotal"`
}

// SaleRecord is one authorization returned by the sales endpoint
type SaleRecord struct {
	AuthorizationID     int64      `json:"idAutorizacaoPagamento"`
	FuelingTime         string     `json:"dataAbastecimento"` // RFC3339-ish local timestamp
	Fleet               *SaleFleet `json:"frota"`
	Driver              *Driver    `json:"motorista"`
	Vehicle             *Vehicle   `json:"veiculo"`
	Cycle               *Cycle     `json:"ciclo"`
	Items               []SaleItem `json:"itens"`
	TotalAmount         FlexFloat  `json:"valorTotal"`
	AuthorizationStatus string     `json:"statusAutorizacaoPagamento"`
	InvoiceStatus       string     `json:"statusEmissaoNotaFiscal"`
}

// SaleFleet identifies the buying fleet on a sale
type SaleFleet struct {
	LegalName string `json:"razaoSocial"`
	CNPJ      string `json:"cnpj"`
}

// Driver identifies the driver on a sale
type Driver struct {
	Name string `json:"nome"`
	CPF  string `json:"cpf"`
}

// Vehicle identifies the vehicle on a sale
type Vehicle struct {
	Plate string `json:"placa"`
}

// Cycle is the billing cycle window of a sale
type Cycle struct {
	Start         string `json:"dataInicio"`
	End           string `json:"dataFim"`
	IssueDeadline string `json:"dataLimiteEmissao"`
}

// SaleItem is a fuel or service sub-item of a sale
type SaleItem struct {
	Description string    `json:"descricao"`
	Quantity    FlexFloat `json:"quantidade"`
	UnitPrice   FlexFloat `json:"valorUnitario"`
	Total       FlexFloat `json:"valorTotal"`
}
