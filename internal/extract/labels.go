package extract

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Labels names the checklist items that carry each field for one role.
// Several labels may be listed for a field; the first one present wins.
type Labels struct {
	InvoiceNumber []string `yaml:"invoice_number"`
	EntryNumber   []string `yaml:"entry_number"`
	Value         []string `yaml:"value"`
	Supplier      []string `yaml:"supplier"`
	Photo         []string `yaml:"photo"`
}

// DefaultPrimaryLabels are the warehouse checklist labels
func DefaultPrimaryLabels() Labels {
	return Labels{
		InvoiceNumber: []string{"Número da Nota Fiscal"},
		Value:         []string{"Valor da Nota Fiscal", "Valor Total da Nota"},
		Supplier:      []string{"Fornecedor"},
		Photo:         []string{"Foto da Nota Fiscal"},
	}
}

// DefaultSecondaryLabels are the trainee checklist labels
func DefaultSecondaryLabels() Labels {
	return Labels{
		InvoiceNumber: []string{"Número da Nota Fiscal"},
		EntryNumber:   []string{"Número do Lançamento"},
		Value:         []string{"Valor que Você Lançou"},
	}
}

// WithDefaults returns l with every empty list taken from d
func (l Labels) WithDefaults(d Labels) Labels {
	if len(l.InvoiceNumber) == 0 {
		l.InvoiceNumber = d.InvoiceNumber
	}
	if len(l.EntryNumber) == 0 {
		l.EntryNumber = d.EntryNumber
	}
	if len(l.Value) == 0 {
		l.Value = d.Value
	}
	if len(l.Supplier) == 0 {
		l.Supplier = d.Supplier
	}
	if len(l.Photo) == 0 {
		l.Photo = d.Photo
	}
	return l
}

// normalizeLabel makes "Número", "NÚMERO" and " número " compare equal.
func normalizeLabel(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
