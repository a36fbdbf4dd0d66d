package models

import (
	"fmt"
	"strings"
)

// Outcome is the terminal result of a purchase, restore or verification
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeVerificationFailed
	OutcomeCancelled
	OutcomeNotAllowed
	OutcomeNoCatalog
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:            "success",
	OutcomeFailed:             "failed",
	OutcomeVerificationFailed: "verification_failed",
	OutcomeCancelled:          "cancelled",
	OutcomeNotAllowed:         "not_allowed",
	OutcomeNoCatalog:          "no_catalog",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler
func (o Outcome) MarshalText() ([]byte, error) {
	if _, ok := outcomeNames[o]; !ok {
		return nil, fmt.Errorf("unknown outcome %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Outcome) UnmarshalText(text []byte) error {
	value := strings.ToLower(string(text))
	for outcome, name := range outcomeNames {
		if name == value {
			*o = outcome
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", value)
}

// Environment selects the verification endpoint
type Environment int

const (
	EnvironmentProduction Environment = iota
	EnvironmentSandbox
)

func (e Environment) String() string {
	if e == EnvironmentSandbox {
		return "sandbox"
	}
	return "production"
}

// MarshalText implements encoding.TextMarshaler
func (e Environment) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// ParseEnvironment accepts "sandbox" or "production", case-insensitive
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(value) {
	case "sandbox":
		return EnvironmentSandbox, nil
	case "production":
		return EnvironmentProduction, nil
	}
	return EnvironmentProduction, fmt.Errorf("unknown environment %q", value)
}

// EnvironmentFor maps the testServer flag of a purchase to an endpoint
func EnvironmentFor(testServer bool) Environment {
	if testServer {
		return EnvironmentSandbox
	}
	return EnvironmentProduction
}
