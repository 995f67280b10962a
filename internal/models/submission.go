package models

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Role identifies which side of a transaction a submission reports
type Role string

const (
	RolePrimary   Role = "primary"   // warehouse worker
	RoleSecondary Role = "secondary" // trainee
)

// ParseRole accepts the canonical role names plus the original checklist aliases
func ParseRole(s string) (Role, error) {
	switch s {
	case "primary", "estoquista", "warehouse":
		return RolePrimary, nil
	case "secondary", "aprendiz", "trainee", "":
		return RoleSecondary, nil
	default:
		return "", fmt.Errorf("unknown submission role %q", s)
	}
}

// SubmissionRecord is one side's normalized report of an invoice.
// Values are copied on construction; treat a record as immutable.
type SubmissionRecord struct {
	Key                  string // invoice / document number
	Role                 Role
	SubmitterName        string
	UnitName             string // store or warehouse location
	Supplier             string // only reported by the primary side
	EntryNumber          string // posting number typed by the secondary side
	Value                apd.Decimal
	ExternalSubmissionID int64  // idempotency key
	AttachmentRef        string // optional photo / document URL
	ChecklistID          int64
}

// ValueText renders Value with two decimal places
func (r SubmissionRecord) ValueText() string {
	return FormatMoney(&r.Value)
}

// IntakeMessage is the message consumed from the submission intake topic
type IntakeMessage struct {
	EvaluationID int64  `json:"evaluationId"`
	Role         string `json:"role,omitempty"`
}
