package domain

import "errors"

// Analysis errors.
var (
	// ErrDataUnavailable is returned when a market data source yields no bars
	// for the requested symbol and range.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInvalidInput is returned for unsupported parameter combinations or
	// inputs the core cannot compute over.
	ErrInvalidInput = errors.New("invalid input")
)
