package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finanzas/internal/domain"
)

// Status is the fate of one submitted record.
type Status string

const (
	StatusInserted      Status = "inserted"
	StatusAlreadyStored Status = "already_stored"
	StatusRejected      Status = "rejected"
)

// Outcome reports what happened to one record of a batch.
type Outcome struct {
	Index  int
	ID     string
	Status Status
	Err    error
}

// OK reports whether the record is stored.
func (o Outcome) OK() bool {
	return o.Status == StatusInserted || o.Status == StatusAlreadyStored
}

// Counts tallies stored and rejected outcomes.
func Counts(outcomes []Outcome) (stored, rejected int) {
	for _, o := range outcomes {
		if o.OK() {
			stored++
		} else {
			rejected++
		}
	}
	return stored, rejected
}

// Summary renders outcomes on one line, e.g.
// "3 inserted, 1 rejected: duplicate id".
func Summary(outcomes []Outcome) string {
	var inserted, already int
	var reasons []string
	seen := map[string]bool{}
	for _, o := range outcomes {
		switch o.Status {
		case StatusInserted:
			inserted++
		case StatusAlreadyStored:
			already++
		default:
			r := reason(o.Err)
			if !seen[r] {
				seen[r] = true
				reasons = append(reasons, r)
			}
		}
	}
	_, rejected := Counts(outcomes)

	s := fmt.Sprintf("%d inserted", inserted)
	if already > 0 {
		s += fmt.Sprintf(", %d already stored", already)
	}
	s += fmt.Sprintf(", %d rejected", rejected)
	if len(reasons) > 0 {
		s += ": " + strings.Join(reasons, "; ")
	}
	return s
}

func reason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, domain.ErrDuplicateID):
		return "duplicate id"
	case errors.Is(err, domain.ErrValidation):
		return "invalid record"
	default:
		return domain.UserMessage(err)
	}
}

// AcceptDuplicates marks duplicate-id rejections as already stored. It is
// meant for resubmissions that reuse ids from an attempt whose result was
// lost.
func AcceptDuplicates(outcomes []Outcome) []Outcome {
	out := make([]Outcome, len(outcomes))
	for i, o := range outcomes {
		if o.Status == StatusRejected && errors.Is(o.Err, domain.ErrDuplicateID) {
			o.Status = StatusAlreadyStored
			o.Err = nil
		}
		out[i] = o
	}
	return out
}
