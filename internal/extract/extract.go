// Package extract turns evaluation-platform payloads into SubmissionRecords.
//
// Only the invoice number is mandatory. Everything else is read best-effort so
// that a partially filled checklist still reaches the matching step.
package extract

import (
	"errors"
	"strings"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/evaluation"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// ErrMissingKeyField means the evaluation has no invoice number
var ErrMissingKeyField = errors.New("invoice number not found in evaluation")

// Extractor maps checklist labels to record fields per role
type Extractor struct {
	primary   Labels
	secondary Labels
}

// New creates an Extractor. Empty label lists fall back to the defaults.
func New(primary, secondary Labels) *Extractor {
	return &Extractor{
		primary:   primary.WithDefaults(DefaultPrimaryLabels()),
		secondary: secondary.WithDefaults(DefaultSecondaryLabels()),
	}
}

// Extract builds the record for ev as reported by role
func (x *Extractor) Extract(ev *evaluation.Evaluation, role models.Role) (models.SubmissionRecord, error) {
	if ev == nil {
		return models.SubmissionRecord{}, ErrMissingKeyField
	}

	labels := x.secondary
	if role == models.RolePrimary {
		labels = x.primary
	}
	idx := indexFields(ev.Fields)

	key := ""
	if f := idx.lookup(labels.InvoiceNumber); f != nil {
		key = rawText(f.Value)
	}
	if key == "" {
		return models.SubmissionRecord{}, ErrMissingKeyField
	}

	rec := models.SubmissionRecord{
		Key:                  key,
		Role:                 role,
		SubmitterName:        strings.TrimSpace(ev.User.Name),
		UnitName:             strings.TrimSpace(ev.Unit.Name),
		ExternalSubmissionID: ev.ID,
		ChecklistID:          ev.Checklist.ID,
	}
	if f := idx.lookup(labels.EntryNumber); f != nil {
		rec.EntryNumber = rawText(f.Value)
	}
	if f := idx.lookup(labels.Supplier); f != nil {
		rec.Supplier = rawText(f.Value)
	}

	valueField := idx.lookup(labels.Value)
	if valueField != nil {
		rec.Value = parseAmount(valueField.Value)
	}
	rec.AttachmentRef = attachmentRef(idx.lookup(labels.Photo), valueField)

	return rec, nil
}

// attachmentRef prefers the photo field (attachment or URL value) and falls
// back to an attachment on the value field.
func attachmentRef(photo, value *evaluation.Field) string {
	if photo != nil {
		if len(photo.Attachments) > 0 && photo.Attachments[0].URL != "" {
			return photo.Attachments[0].URL
		}
		if s := rawText(photo.Value); strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			return s
		}
	}
	if value != nil && len(value.Attachments) > 0 {
		return value.Attachments[0].URL
	}
	return ""
}

type fieldIndex map[string]*evaluation.Field

func indexFields(fields []evaluation.Field) fieldIndex {
	idx := make(fieldIndex, len(fields))
	for i := range fields {
		k := normalizeLabel(fields[i].Label)
		if _, dup := idx[k]; !dup {
			idx[k] = &fields[i]
		}
	}
	return idx
}

func (idx fieldIndex) lookup(labels []string) *evaluation.Field {
	for _, l := range labels {
		if f, ok := idx[normalizeLabel(l)]; ok {
			return f
		}
	}
	return nil
}
