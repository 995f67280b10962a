package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// MessageCard layout accepted by chat incoming webhooks
type messageCard struct {
	Type       string    `json:"@type"`
	Context    string    `json:"@context"`
	ThemeColor string    `json:"themeColor"`
	Summary    string    `json:"summary"`
	Title      string    `json:"title"`
	Sections   []section `json:"sections"`
	Actions    []action  `json:"potentialAction,omitempty"`
}

type section struct {
	ActivityTitle string `json:"activityTitle"`
	Facts         []fact `json:"facts"`
	Markdown      bool   `json:"markdown"`
}

type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type action struct {
	Type    string   `json:"@type"`
	Name    string   `json:"name"`
	Targets []target `json:"targets"`
}

type target struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

const (
	colorMismatch  = "D13438"
	colorUnmatched = "FFB900"

	receivedAtLayout = "02/01/2006 15:04:05"
)

// RenderCard builds the JSON body for a. Output depends only on a and loc.
func RenderCard(a Alert, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}

	card := messageCard{
		Type:    "MessageCard",
		Context: "http://schema.org/extensions",
	}

	switch a.Kind {
	case KindMismatch:
		card.ThemeColor = colorMismatch
		card.Summary = fmt.Sprintf("Invoice %s: values differ", a.InvoiceNumber)
		card.Title = "Invoice values differ"
		card.Sections = []section{{
			ActivityTitle: "Invoice " + a.InvoiceNumber,
			Facts: []fact{
				{Name: "Unit", Value: a.UnitName},
				{Name: "Supplier", Value: a.Supplier},
				{Name: "Warehouse", Value: a.PrimarySubmitter},
				{Name: "Warehouse value", Value: money(&a.PrimaryValue)},
				{Name: "Trainee", Value: a.SecondarySubmitter},
				{Name: "Trainee value", Value: money(&a.SecondaryValue)},
				{Name: "Difference", Value: money(&a.Delta)},
				{Name: "Reference", Value: a.ID},
			},
			Markdown: true,
		}}
		if a.AttachmentRef != "" {
			card.Actions = []action{{
				Type:    "OpenUri",
				Name:    "View invoice photo",
				Targets: []target{{OS: "default", URI: a.AttachmentRef}},
			}}
		}

	case KindUnmatched:
		card.ThemeColor = colorUnmatched
		card.Summary = fmt.Sprintf("Invoice %s not found", a.InvoiceNumber)
		card.Title = "Invoice not found in ledger"
		card.Sections = []section{{
			ActivityTitle: "Invoice " + a.InvoiceNumber,
			Facts: []fact{
				{Name: "Unit", Value: a.UnitName},
				{Name: "Trainee", Value: a.SecondarySubmitter},
				{Name: "Trainee value", Value: money(&a.SecondaryValue)},
				{Name: "Entry number", Value: a.EntryNumber},
				{Name: "Received at", Value: a.ReceivedAt.In(loc).Format(receivedAtLayout)},
				{Name: "Reference", Value: a.ID},
			},
			Markdown: true,
		}}

	default:
		return nil, fmt.Errorf("unknown alert kind %q", a.Kind)
	}

	return json.MarshalIndent(card, "", "  ")
}

func money(d *apd.Decimal) string {
	return "R$ " + models.FormatMoney(d)
}
