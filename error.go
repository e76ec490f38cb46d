package doctxn

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies transaction failures.
type ErrorCode int

const (
	Unknown ErrorCode = iota
	ConfigurationFailure
	FetchFailure
	WriteFailure
	ConflictFailure
	ExhaustedFailure
	TimeoutFailure
	MutationFailure
	ProgrammingFault
	CancelledFailure
)

var codeNames = map[ErrorCode]string{
	Unknown:              "unknown",
	ConfigurationFailure: "configuration",
	FetchFailure:         "fetch",
	WriteFailure:         "write",
	ConflictFailure:      "conflict",
	ExhaustedFailure:     "exhausted",
	TimeoutFailure:       "timeout",
	MutationFailure:      "mutation",
	ProgrammingFault:     "fault",
	CancelledFailure:     "cancelled",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error wraps an underlying failure with its classification.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	if e.UserData != nil {
		return fmt.Sprintf("%s error: %v, user data: %v", e.Code, e.Err, e.UserData)
	}
	return fmt.Sprintf("%s error: %v", e.Code, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// Sentinels returned (wrapped) by document stores.
var (
	// ErrNotFound means the document or its collection does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict means a write carried a stale revision.
	ErrConflict = errors.New("document update conflict")
	// ErrCancelled means the transaction was cancelled by its owner.
	ErrCancelled = errors.New("transaction cancelled")
)

// Configuration constraints named by ConfigurationError.
const (
	ConstraintLocatorRequired  = "locator_required"
	ConstraintLocatorClash     = "locator_clash"
	ConstraintLocatorMalformed = "locator_malformed"
	ConstraintMutationRequired = "mutation_required"
	ConstraintCallbackRequired = "callback_required"
	ConstraintStoreRequired    = "store_required"
	ConstraintPolicy           = "policy"
)

// ConfigurationError is returned synchronously, before any I/O, for invalid input.
type ConfigurationError struct {
	Constraint string
	Detail     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration (%s): %s", e.Constraint, e.Detail)
}

// ConflictError is a store's rejection of a write carrying a stale revision.
type ConflictError struct {
	Locator Locator
	Rev     string
	Status  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict writing %s at rev %q (status %d)", e.Locator, e.Rev, e.Status)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StoreError is a non-conflict failure reported by a document store.
type StoreError struct {
	Op     string
	Status int
	Reason string
	Err    error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(", status: %d", e.Status)
	}
	if e.Reason != "" {
		msg += ", reason: " + e.Reason
	}
	if e.Err != nil {
		msg += ", details: " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ExhaustedError reports a transaction that ran out of attempts due to conflicts.
type ExhaustedError struct {
	Name     string
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("Transaction (%s) fail after %d conflicts", e.Name, e.Attempts)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrConflict
}

// TimeoutError reports a mutation that outlived Options.OperationTimeout.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Transaction (%s) timed out(timeout=%v)", e.Name, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// FaultError reports a broken state machine invariant, e.g. overlapping timers.
type FaultError struct {
	Name   string
	Detail string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("Transaction (%s) fault: %s", e.Name, e.Detail)
}

// IsTimeout reports whether err is a transaction timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsConflict reports whether err is a write conflict or conflict exhaustion.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// CodeOf classifies err.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Unknown
	}
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	var (
		ce *ConfigurationError
		ee *ExhaustedError
		fe *FaultError
	)
	switch {
	case errors.As(err, &ce):
		return ConfigurationFailure
	case errors.As(err, &ee):
		return ExhaustedFailure
	case IsTimeout(err):
		return TimeoutFailure
	case errors.As(err, &fe):
		return ProgrammingFault
	case errors.Is(err, ErrConflict):
		return ConflictFailure
	case errors.Is(err, ErrCancelled):
		return CancelledFailure
	}
	return Unknown
}
