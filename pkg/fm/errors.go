package fm

import (
	"errors"
	"fmt"
)

// Kind classifies why a font operation failed
type Kind string

const (
	KindNotFound              Kind = "not found"
	KindAmbiguousMatch        Kind = "ambiguous match"
	KindPathTooLong           Kind = "path too long"
	KindUnsupportedFormat     Kind = "unsupported format"
	KindCopyFailure           Kind = "copy failed"
	KindDeleteFailure         Kind = "delete failed"
	KindRegistrationFailure   Kind = "registration failed"
	KindStoreAccessFailure    Kind = "registration store unavailable"
	KindInsufficientPrivilege Kind = "insufficient privilege"
)

// Sentinels for errors.Is; they match any FontError of the same kind.
var (
	ErrNotFound              = &FontError{Kind: KindNotFound}
	ErrAmbiguousMatch        = &FontError{Kind: KindAmbiguousMatch}
	ErrPathTooLong           = &FontError{Kind: KindPathTooLong}
	ErrUnsupportedFormat     = &FontError{Kind: KindUnsupportedFormat}
	ErrCopyFailure           = &FontError{Kind: KindCopyFailure}
	ErrDeleteFailure         = &FontError{Kind: KindDeleteFailure}
	ErrRegistrationFailure   = &FontError{Kind: KindRegistrationFailure}
	ErrStoreAccessFailure    = &FontError{Kind: KindStoreAccessFailure}
	ErrInsufficientPrivilege = &FontError{Kind: KindInsufficientPrivilege}
)

// FontError is a failure attributed to one font identifier
type FontError struct {
	Kind Kind
	Font string // file or display name the error is about
	Err  error
}

func newError(kind Kind, font string, err error) *FontError {
	return &FontError{Kind: kind, Font: font, Err: err}
}

func (e *FontError) Error() string {
	msg := string(e.Kind)
	if e.Font != "" {
		msg = e.Font + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FontError) Unwrap() error {
	return e.Err
}

func (e *FontError) Is(target error) bool {
	t, ok := target.(*FontError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Font == "" && t.Err == nil
}

// KindOf returns the kind of the first FontError in err's chain, or "".
func KindOf(err error) Kind {
	var fe *FontError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsFatal reports whether err invalidates every later operation in the process,
// as opposed to failing a single font.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindStoreAccessFailure, KindInsufficientPrivilege:
		return true
	default:
		return false
	}
}

func ambiguousError(font string, candidates []string) *FontError {
	return newError(KindAmbiguousMatch, font, fmt.Errorf("matches %q", candidates))
}
