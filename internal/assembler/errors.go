package assembler

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every error the assembler returns.
var ErrValidation = errors.New("invalid configuration")

var (
	ErrUnknownColumn          = validationError("unknown column")
	ErrNoColumnsSelected      = validationError("select at least one text column")
	ErrAttributesLocked       = validationError("attributes are confirmed, unconfirm before editing")
	ErrNoAttributes           = validationError("enter at least one attribute")
	ErrAttributesNotConfirmed = validationError("attributes have not been confirmed")
	ErrUnknownAttribute       = validationError("unknown attribute")
	ErrMissingCredential      = validationError("an api key is required")
	ErrUnknownProvider        = validationError("unknown provider")
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
