package extract

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/evaluation"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

func field(label, rawValue string, attachments ...string) evaluation.Field {
	f := evaluation.Field{Label: label}
	if rawValue != "" {
		f.Value = json.RawMessage(rawValue)
	}
	for _, u := range attachments {
		f.Attachments = append(f.Attachments, evaluation.Attachment{URL: u})
	}
	return f
}

func secondaryEvaluation(fields ...evaluation.Field) *evaluation.Evaluation {
	return &evaluation.Evaluation{
		ID:        901,
		Checklist: evaluation.Checklist{ID: 7, Name: "Aprendiz"},
		User:      evaluation.User{Name: " Bruno "},
		Unit:      evaluation.Unit{Name: "Loja Centro"},
		Fields:    fields,
	}
}

func TestExtract_Secondary(t *testing.T) {
	x := New(Labels{}, Labels{})
	ev := secondaryEvaluation(
		field("Número da Nota Fiscal", `"NF-100"`),
		field("Número do Lançamento", `5512`),
		field("Valor que Você Lançou", `150.00`),
	)

	rec, err := x.Extract(ev, models.RoleSecondary)
	require.NoError(t, err)

	assert.Equal(t, "NF-100", rec.Key)
	assert.Equal(t, models.RoleSecondary, rec.Role)
	assert.Equal(t, "Bruno", rec.SubmitterName)
	assert.Equal(t, "Loja Centro", rec.UnitName)
	assert.Equal(t, "5512", rec.EntryNumber)
	assert.Equal(t, "150.00", rec.Value.Text('f'))
	assert.Equal(t, int64(901), rec.ExternalSubmissionID)
	assert.Equal(t, int64(7), rec.ChecklistID)
}

func TestExtract_Primary_SupplierAndPhoto(t *testing.T) {
	x := New(Labels{}, Labels{})
	ev := secondaryEvaluation(
		field("Número da Nota Fiscal", `12345`),
		field("Fornecedor", `"Distribuidora Sul"`),
		field("Valor da Nota Fiscal", `"R$ 1.234,56"`),
		field("Foto da Nota Fiscal", "", "https://cdn.example.com/nf.jpg"),
	)

	rec, err := x.Extract(ev, models.RolePrimary)
	require.NoError(t, err)

	assert.Equal(t, "12345", rec.Key)
	assert.Equal(t, "Distribuidora Sul", rec.Supplier)
	assert.Equal(t, "1234.56", rec.Value.Text('f'))
	assert.Equal(t, "https://cdn.example.com/nf.jpg", rec.AttachmentRef)
}

func TestExtract_MissingKey(t *testing.T) {
	x := New(Labels{}, Labels{})

	cases := map[string]*evaluation.Evaluation{
		"no field":    secondaryEvaluation(field("Valor que Você Lançou", `10`)),
		"blank":       secondaryEvaluation(field("Número da Nota Fiscal", `"   "`)),
		"null":        secondaryEvaluation(field("Número da Nota Fiscal", `null`)),
		"nil payload": nil,
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := x.Extract(ev, models.RoleSecondary)
			assert.ErrorIs(t, err, ErrMissingKeyField)
		})
	}
}

func TestExtract_ValueDefaultsToZero(t *testing.T) {
	x := New(Labels{}, Labels{})
	ev := secondaryEvaluation(field("Número da Nota Fiscal", `"NF-1"`))

	rec, err := x.Extract(ev, models.RoleSecondary)
	require.NoError(t, err)
	assert.True(t, rec.Value.IsZero())
}

func TestExtract_LabelNormalization(t *testing.T) {
	x := New(Labels{}, Labels{})
	// decomposed "ú" (u + combining acute) and different casing
	ev := secondaryEvaluation(
		field("NÚMERO DA NOTA  FISCAL", `"NF-9"`),
		field("valor que você lançou", `"99,90"`),
	)

	rec, err := x.Extract(ev, models.RoleSecondary)
	require.NoError(t, err)
	assert.Equal(t, "NF-9", rec.Key)
	assert.Equal(t, "99.90", rec.Value.Text('f'))
}

func TestExtract_CustomLabels(t *testing.T) {
	x := New(Labels{}, Labels{InvoiceNumber: []string{"Invoice"}, Value: []string{"Amount"}})
	ev := secondaryEvaluation(field("Invoice", `"INV-1"`), field("Amount", `12.5`))

	rec, err := x.Extract(ev, models.RoleSecondary)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", rec.Key)
	assert.Equal(t, "12.5", rec.Value.Text('f'))
	assert.Empty(t, rec.EntryNumber, "entry number label falls back to the default, which is absent here")
}

func TestParseLocalizedAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"150.00", "150.00"},
		{"150,00", "150.00"},
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"R$ 1.234,56", "1234.56"},
		{"1.234.567", "1234567"},
		{"", "0"},
		{"abc", "0"},
		{"NaN", "0"},
		{"Infinity", "0"},
		{"-Inf", "0"},
		{"1e100000", "0"},
		{"1e-100000", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseLocalizedAmount(tt.in)
			assert.Equal(t, tt.want, got.Text('f'))
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"number", `150.5`, "150.5"},
		{"number keeps scale", `150.00`, "150.00"},
		{"string", `"1.234,56"`, "1234.56"},
		{"null", `null`, "0"},
		{"huge exponent", `1e100000`, "0"},
		{"tiny exponent", `1E-100000`, "0"},
		{"nan string", `"NaN"`, "0"},
		{"infinity string", `"Infinity"`, "0"},
		{"too many digits", `1234567890123456789012345678901234567890`, "0"},
		{"boolean", `true`, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAmount(json.RawMessage(tt.raw))
			assert.Equal(t, apd.Finite, got.Form)
			assert.Equal(t, tt.want, got.Text('f'))
		})
	}
}

func TestExtract_NonFiniteValueBecomesZero(t *testing.T) {
	x := New(Labels{}, Labels{})
	ev := secondaryEvaluation(
		field("Número da Nota Fiscal", `"NF-1"`),
		field("Valor que Você Lançou", `"NaN"`),
	)

	rec, err := x.Extract(ev, models.RoleSecondary)
	require.NoError(t, err)
	assert.True(t, rec.Value.IsZero())
	assert.Equal(t, "0.00", rec.ValueText())
}
