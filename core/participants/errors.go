package participants

import (
	"errors"

	"warroom/core/store"
)

var (
	ErrNotFound        = store.ErrNotFound
	ErrInvalidState    = store.ErrInvalidState
	ErrConfiguration   = errors.New("configuration error")
	ErrInvalidArgument = errors.New("invalid argument")
)
