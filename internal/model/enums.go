package model

import "fmt"

// ResultType is the direction-carrying type of a Plug (and a Socket's result).
type ResultType string

const (
	ResultTypeResult ResultType = "RESULT"
	ResultTypeError  ResultType = "ERROR"
)

// Valid reports whether t is RESULT or ERROR.
func (t ResultType) Valid() bool {
	return t == ResultTypeResult || t == ResultTypeError
}

// ScheduleType selects how a scheduled Socket is triggered.
type ScheduleType string

const (
	ScheduleCron     ScheduleType = "CRON"
	ScheduleInterval ScheduleType = "INTERVAL"
)

// Valid reports whether t is CRON or INTERVAL.
func (t ScheduleType) Valid() bool {
	return t == ScheduleCron || t == ScheduleInterval
}

// Strategy is a Scheduler's node placement strategy.
type Strategy string

const (
	StrategyBalanced  Strategy = "BALANCED"
	StrategyEfficient Strategy = "EFFICIENT"
)

// Valid reports whether s is BALANCED or EFFICIENT.
func (s Strategy) Valid() bool {
	return s == StrategyBalanced || s == StrategyEfficient
}

// CallState is the lifecycle state of a Call.
type CallState string

const (
	CallCreated CallState = "CREATED"
	CallRunning CallState = "RUNNING"
	CallSuccess CallState = "SUCCESS"
	CallFailure CallState = "FAILURE"
)

// Terminal reports whether no further transition is possible.
func (s CallState) Terminal() bool {
	return s == CallSuccess || s == CallFailure
}

// Valid reports whether s is one of the four call states.
func (s CallState) Valid() bool {
	switch s {
	case CallCreated, CallRunning, CallSuccess, CallFailure:
		return true
	}
	return false
}

func invalidEnum(kind Kind, field string, value any) error {
	return NewValidationError(ReasonInvalidEnum, kind, "", field, fmt.Sprintf("invalid %s %q", field, value))
}
