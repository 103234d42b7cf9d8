package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadySaved          = errors.New("trainer already saved")
	ErrShortlistLimitReached = errors.New("shortlist limit reached")
	ErrIllegalTransition     = errors.New("illegal stage transition")
	ErrNotClientAccount      = errors.New("account is not a client account")
)
