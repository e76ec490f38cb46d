package doctxn

import (
	"fmt"
	"time"
)

// Options configure a Transaction: its retry policy plus document handling knobs.
// Start from DefaultOptions; the zero value is not valid.
type Options struct {
	// MaxAttempts is the total number of fetch-mutate-write cycles allowed, 1 or more.
	MaxAttempts int `json:"max_tries"`
	// BaseDelay is the backoff unit. The delay before attempt n+1 is BaseDelay * 2^n.
	BaseDelay time.Duration `json:"delay"`
	// MaxDelay caps a single backoff delay. Zero leaves the backoff uncapped.
	MaxDelay time.Duration `json:"max_delay,omitempty"`
	// OperationTimeout bounds each invocation of the mutation.
	OperationTimeout time.Duration `json:"timeout"`
	// Timestamps stamps updated_at on every written document.
	Timestamps bool `json:"timestamps"`
	// Create starts from an empty document holding only _id when the document does not exist.
	Create bool `json:"create"`
	// Name overrides the transaction name used in logs and error messages.
	Name string `json:"name,omitempty"`
}

// DefaultOptions returns the default transaction options.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:      5,
		BaseDelay:        100 * time.Millisecond,
		OperationTimeout: 15 * time.Second,
		Timestamps:       true,
	}
}

// Validate checks the retry policy invariants.
func (o Options) Validate() error {
	switch {
	case o.MaxAttempts < 1:
		return &ConfigurationError{Constraint: ConstraintPolicy, Detail: fmt.Sprintf("max_tries must be 1 or greater, got %d", o.MaxAttempts)}
	case o.OperationTimeout <= 0:
		return &ConfigurationError{Constraint: ConstraintPolicy, Detail: fmt.Sprintf("timeout must be greater than 0, got %v", o.OperationTimeout)}
	case o.BaseDelay < 0:
		return &ConfigurationError{Constraint: ConstraintPolicy, Detail: fmt.Sprintf("delay can't be negative, got %v", o.BaseDelay)}
	case o.MaxDelay < 0:
		return &ConfigurationError{Constraint: ConstraintPolicy, Detail: fmt.Sprintf("max_delay can't be negative, got %v", o.MaxDelay)}
	}
	return nil
}
