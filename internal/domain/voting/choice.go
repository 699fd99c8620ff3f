// internal/domain/voting/choice.go
package voting

import (
	"errors"
	"strings"
)

// Choice is the canonical representation of a ballot choice. It is the only
// form stored and passed around; ParseChoice is the single place where other
// spellings are accepted.
type Choice string

const (
	Approve Choice = "approve"
	Reject  Choice = "reject"
	Abstain Choice = "abstain"
)

// ErrInvalidChoice is returned when a choice cannot be parsed.
var ErrInvalidChoice = errors.New("invalid vote choice")

// ParseChoice maps an external value onto a Choice.
// Legacy rows and older clients use "for"/"against".
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "for":
		return Approve, nil
	case "reject", "against":
		return Reject, nil
	case "abstain":
		return Abstain, nil
	}
	return "", ErrInvalidChoice
}

// Valid reports whether c is one of the canonical choices.
func (c Choice) Valid() bool {
	return c == Approve || c == Reject || c == Abstain
}

// Label returns the human-readable label used in summaries.
func (c Choice) Label() string {
	switch c {
	case Approve:
		return "Approve"
	case Reject:
		return "Reject"
	case Abstain:
		return "Abstain"
	}
	return "Unknown"
}

func (c Choice) String() string { return string(c) }
