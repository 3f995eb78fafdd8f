package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var ErrMissingRate = errors.New("missing_rate")

// MissingRateError reports a payer without a usable rate for a program.
type MissingRateError struct {
	PayerID snowflake.ID
	Program Program
}

func (e *MissingRateError) Error() string {
	if e.PayerID == 0 {
		return fmt.Sprintf("missing %s rate: client has no payer", e.Program)
	}
	return fmt.Sprintf("missing %s rate for payer %s", e.Program, e.PayerID)
}

func (e *MissingRateError) Is(target error) bool {
	return target == ErrMissingRate
}
