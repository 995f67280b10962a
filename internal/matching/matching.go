// Package matching holds the comparison rule between the two sides of an
// invoice and the outcome kinds it produces.
package matching

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// Kind is the terminal result of reconciling a secondary submission
type Kind string

const (
	Matched        Kind = "matched"
	Mismatched     Kind = "mismatched"
	UnmatchedKey   Kind = "unmatched_key"
	DispatchFailed Kind = "dispatch_failed"
)

// LedgerStatus is the status column written to the ledger for k
func (k Kind) LedgerStatus() string {
	switch k {
	case Matched:
		return "OK"
	case Mismatched:
		return "Failed"
	case UnmatchedKey:
		return "Pending"
	default:
		return string(k)
	}
}

// KindFromLedgerStatus maps a status column back to its Kind, "" when the
// row has not been reconciled.
func KindFromLedgerStatus(status string) Kind {
	switch status {
	case "OK":
		return Matched
	case "Failed":
		return Mismatched
	case "Pending":
		return UnmatchedKey
	default:
		return ""
	}
}

// Result is the comparison of two values
type Result struct {
	Kind  Kind
	Delta apd.Decimal // |secondary - primary|
}

// Comparator decides Matched vs Mismatched. A zero tolerance requires exact
// decimal equality.
type Comparator struct {
	tolerance apd.Decimal
}

// NewComparator creates a Comparator; tolerance must not be negative
func NewComparator(tolerance apd.Decimal) (*Comparator, error) {
	if tolerance.Negative && !tolerance.IsZero() {
		return nil, fmt.Errorf("matching tolerance cannot be negative: %s", tolerance.Text('f'))
	}
	c := &Comparator{}
	c.tolerance.Set(&tolerance)
	return c, nil
}

// Exact returns the zero-tolerance comparator
func Exact() *Comparator {
	return &Comparator{}
}

// Compare computes |secondary - primary| and classifies it
func (c *Comparator) Compare(primary, secondary *apd.Decimal) (Result, error) {
	var diff apd.Decimal
	if _, err := models.DecimalContext().Sub(&diff, secondary, primary); err != nil {
		return Result{}, fmt.Errorf("compute delta: %w", err)
	}

	res := Result{}
	res.Delta.Abs(&diff)
	if res.Delta.Cmp(&c.tolerance) <= 0 {
		res.Kind = Matched
	} else {
		res.Kind = Mismatched
	}
	return res, nil
}
