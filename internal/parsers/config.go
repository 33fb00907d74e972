package parsers

import (
	"fmt"
	"strings"
)

// Standard field names understood by the CSV parsers
const (
	FieldID           = "id"
	FieldClientID     = "client_id"
	FieldDate         = "date"
	FieldDescription  = "description"
	FieldReference    = "reference"
	FieldAmount       = "amount"
	FieldCategory     = "category"
	FieldIssueDate    = "issue_date"
	FieldTotalAmount  = "total_amount"
	FieldIssuerTaxID  = "issuer_tax_id"
	FieldIssuerName   = "issuer_name"
	FieldFolio        = "folio"
	FieldDocumentType = "document_type"
)

// defaultAliases lists the header spellings accepted for each field, as
// found in common bank and invoicing exports
var defaultAliases = map[string][]string{
	FieldID:           {"id", "transaction_id", "trx_id", "document_id"},
	FieldClientID:     {"client_id", "client", "cliente_id"},
	FieldDate:         {"date", "transaction_date", "posting_date", "fecha"},
	FieldDescription:  {"description", "details", "memo", "glosa", "descripcion"},
	FieldReference:    {"reference", "ref", "ref_number", "referencia"},
	FieldAmount:       {"amount", "transaction_amount", "monto"},
	FieldCategory:     {"category", "categoria"},
	FieldIssueDate:    {"issue_date", "date", "fecha_emision"},
	FieldTotalAmount:  {"total_amount", "total", "amount", "monto_total"},
	FieldIssuerTaxID:  {"issuer_tax_id", "tax_id", "rut_emisor", "rfc_emisor"},
	FieldIssuerName:   {"issuer_name", "issuer", "razon_social"},
	FieldFolio:        {"folio", "invoice_number", "number"},
	FieldDocumentType: {"document_type", "type", "tipo_documento"},
}

// CSVConfig configures a CSV import
type CSVConfig struct {
	// ClientID is assigned to rows without a client_id column value
	ClientID string `json:"client_id" yaml:"client_id"`
	// Delimiter separates fields, ',' when zero
	Delimiter rune `json:"delimiter" yaml:"delimiter"`
	// ColumnAliases maps a standard field name to the header used in the file.
	// It takes precedence over the built-in spellings.
	ColumnAliases map[string]string `json:"column_aliases,omitempty" yaml:"column_aliases,omitempty"`
}

// DefaultCSVConfig returns a comma-separated configuration with no default client
func DefaultCSVConfig() *CSVConfig {
	return &CSVConfig{
		Delimiter:     ',',
		ColumnAliases: make(map[string]string),
	}
}

// Validate checks the configuration is usable
func (c *CSVConfig) Validate() error {
	switch c.Delimiter {
	case 0, ',', ';', '\t', '|':
	default:
		return fmt.Errorf("unsupported delimiter %q", c.Delimiter)
	}
	for field, column := range c.ColumnAliases {
		if _, ok := defaultAliases[field]; !ok {
			return fmt.Errorf("unknown field %q in column aliases", field)
		}
		if strings.TrimSpace(column) == "" {
			return fmt.Errorf("column alias for %q cannot be empty", field)
		}
	}
	return nil
}

// ColumnNames returns the header names accepted for field, the configured
// alias first
func (c *CSVConfig) ColumnNames(field string) []string {
	names := make([]string, 0, len(defaultAliases[field])+1)
	if alias, ok := c.ColumnAliases[field]; ok {
		names = append(names, alias)
	}
	return append(names, defaultAliases[field]...)
}

func (c *CSVConfig) parseConfig() *ParseConfig {
	pc := DefaultParseConfig()
	if c.Delimiter != 0 {
		pc.Delimiter = c.Delimiter
	}
	return pc
}

// ParseDelimiter converts a flag value such as "," or "tab" into a rune
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "\t", "\\t", "tab":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported delimiter %q", s)
}
