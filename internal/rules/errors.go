package rules

import (
	"errors"
	"fmt"

	"github.com/rezonia/nfe-auditor/internal/model"
)

var (
	// ErrRuleNotFound is matched by every RuleNotFoundError
	ErrRuleNotFound = errors.New("rule not found")

	// ErrUnsupportedRegime is returned for malformed regime names
	ErrUnsupportedRegime = model.ErrUnsupportedRegime

	// ErrInvalidPack is returned when a rule pack fails to load
	ErrInvalidPack = errors.New("invalid rule pack")
)

// RuleNotFoundError reports a lookup with no matching rule
type RuleNotFoundError struct {
	Table string
	Key   string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("%s: no rule for %s", e.Table, e.Key)
}

// Is makes errors.Is(err, ErrRuleNotFound) match
func (e *RuleNotFoundError) Is(target error) bool {
	return target == ErrRuleNotFound
}

func invalidPack(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPack, fmt.Sprintf(format, args...))
}
