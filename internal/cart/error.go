package cart

import "errors"

var (
	ErrFailedGetCart   = errors.New("failed to get cart")
	ErrFailedClearCart = errors.New("failed to clear cart")
)
