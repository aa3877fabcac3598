package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/schema"
	"github.com/google/uuid"
)

// Clock returns the current time.
type Clock func() time.Time

// IDGenerator returns a new unique transaction id.
type IDGenerator func() string

// Config holds the defaults applied to absent fields.
type Config struct {
	HomeCurrency string
	// Location is the zone stored dates are expressed in. Supplied dates
	// with a UTC offset are converted to it; dates without one are taken
	// as wall-clock time there. Nil means UTC.
	Location *time.Location
}

// Normalizer fills omitted fields of a validated record.
type Normalizer struct {
	homeCurrency string
	loc          *time.Location
	now          Clock
	newID        IDGenerator
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the ingestion clock.
func WithClock(c Clock) Option {
	return func(n *Normalizer) { n.now = c }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(n *Normalizer) { n.newID = g }
}

// New creates a Normalizer. Ids default to random (v4) UUIDs.
func New(cfg Config, opts ...Option) *Normalizer {
	home := strings.ToUpper(strings.TrimSpace(cfg.HomeCurrency))
	if home == "" {
		home = domain.HomeCurrency
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	n := &Normalizer{
		homeCurrency: home,
		loc:          loc,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns a complete copy of tx. Present values are kept; a record
// that is already complete comes back unchanged.
func (n *Normalizer) Normalize(tx domain.Transaction) (domain.Transaction, error) {
	out := tx

	if strings.TrimSpace(out.ID) == "" {
		out.ID = n.newID()
	}

	if out.Date == "" {
		out.Date = domain.FormatDate(n.now().In(n.loc))
	} else {
		date, err := domain.CanonicalDate(out.Date, n.loc)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("Normalize: %w", &domain.ValidationError{Fields: []domain.FieldError{{
				Field:   string(schema.FieldDate),
				Kind:    domain.InvalidFieldType,
				Message: fmt.Sprintf("invalid date %q", out.Date),
			}}})
		}
		out.Date = date
	}

	if out.Currency == "" {
		out.Currency = n.homeCurrency
	}

	if out.IsIncome {
		out.ExpenseType = ""
	}

	return out, nil
}

// Result normalizes the record held by a validation result.
func (n *Normalizer) Result(res *schema.Result) (domain.Transaction, error) {
	return n.Normalize(res.Transaction)
}
