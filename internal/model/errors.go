package model

import "errors"

// ErrInvalidArgument marks direct API misuse by the caller. It is not retryable.
var ErrInvalidArgument = errors.New("invalid argument")
