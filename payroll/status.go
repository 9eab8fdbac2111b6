package payroll

import "fmt"

// =============================================================================
// STATUS - Risk classification of a pay line
// =============================================================================

// Status is a closed sum type: Complete, Warning or Failure. Switch on the
// concrete type; the unexported method keeps other packages from adding variants.
//
//	switch s := calc.Status.(type) {
//	case payroll.Complete:
//	case payroll.Warning:
//	    log(s.Cause)
//	case payroll.Failure:
//	    log(s.Cause)
//	}
type Status interface {
	Kind() StatusKind
	Reason() string
	isStatus()
}

type StatusKind string

const (
	StatusComplete StatusKind = "complete"
	StatusWarning  StatusKind = "warning"
	StatusError    StatusKind = "error"
)

type Complete struct{}

type Warning struct {
	Cause string
}

// Failure marks a line that must not be paid as computed.
type Failure struct {
	Cause string
}

func (Complete) Kind() StatusKind { return StatusComplete }
func (Complete) Reason() string   { return "" }
func (Complete) isStatus()        {}

func (Warning) Kind() StatusKind { return StatusWarning }
func (w Warning) Reason() string { return w.Cause }
func (Warning) isStatus()        {}

func (Failure) Kind() StatusKind { return StatusError }
func (f Failure) Reason() string { return f.Cause }
func (Failure) isStatus()        {}

// Reasons recorded by classification.
const (
	ReasonNegativeNet    = "Net pay is negative"
	ReasonEwaExceeded    = "EWA deductions exceed 50% of gross pay"
	ReasonHighDeductions = "Total deductions exceed threshold of gross pay"
)

// KindOf returns the kind of s, treating nil as complete.
func KindOf(s Status) StatusKind {
	if s == nil {
		return StatusComplete
	}
	return s.Kind()
}

// ParseStatus rebuilds a Status from its stored kind and reason.
func ParseStatus(kind, reason string) (Status, error) {
	switch StatusKind(kind) {
	case StatusComplete, "":
		return Complete{}, nil
	case StatusWarning:
		return Warning{Cause: reason}, nil
	case StatusError:
		return Failure{Cause: reason}, nil
	default:
		return nil, fmt.Errorf("unknown status %q", kind)
	}
}
