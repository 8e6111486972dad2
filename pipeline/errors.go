package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfhtml/background"
	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/fonts"
	"github.com/wudi/pdfhtml/gstate"
	"github.com/wudi/pdfhtml/interp"
)

// Kind classifies fatal conversion errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedState
	KindFontProcessing
	KindEncryptionPassword
	KindCopyProtected
	KindResourceLimit
	KindInvalidConfig
	KindInterpreter
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindMalformedState:
		return "malformed-state"
	case KindFontProcessing:
		return "font-processing"
	case KindEncryptionPassword:
		return "encryption-password"
	case KindCopyProtected:
		return "copy-protected"
	case KindResourceLimit:
		return "resource-limit"
	case KindInvalidConfig:
		return "invalid-config"
	case KindInterpreter:
		return "interpreter"
	case KindCanceled:
		return "canceled"
	}
	return "unknown"
}

var (
	ErrCopyProtected = errors.New("pipeline: document does not allow copying")
	ErrNoPages       = errors.New("pipeline: page range selects no pages")
	ErrUnknownFont   = errors.New("pipeline: glyph references unknown font")
)

// ConversionError is a fatal conversion failure. Page is 1-based and zero
// when the failure is not tied to a page.
type ConversionError struct {
	Kind Kind
	Page int
	Font string
	Err  error
}

func (e *ConversionError) Error() string {
	msg := "pipeline: " + e.Kind.String()
	if e.Page > 0 {
		msg += fmt.Sprintf(" on page %d", e.Page)
	}
	if e.Font != "" {
		msg += " (font " + e.Font + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error { return e.Err }

// KindOf returns the kind of a conversion error, or KindUnknown.
func KindOf(err error) Kind {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// wrap tags err with the kind its cause implies.
func wrap(err error, page int) error {
	if err == nil {
		return nil
	}
	var ce *ConversionError
	if errors.As(err, &ce) {
		return err
	}
	e := &ConversionError{Kind: KindInterpreter, Page: page, Err: err}
	var pe *fonts.ProcessingError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindCanceled
	case errors.Is(err, gstate.ErrStackUnderflow):
		e.Kind = KindMalformedState
	case errors.As(err, &pe):
		e.Kind = KindFontProcessing
		e.Font = pe.FontID
	case errors.Is(err, interp.ErrPasswordRequired), errors.Is(err, interp.ErrBadPassword):
		e.Kind = KindEncryptionPassword
	case errors.Is(err, ErrCopyProtected):
		e.Kind = KindCopyProtected
	case errors.Is(err, config.ErrInvalid), errors.Is(err, ErrNoPages):
		e.Kind = KindInvalidConfig
	case errors.Is(err, background.ErrScratchFull):
		e.Kind = KindResourceLimit
	}
	return e
}
