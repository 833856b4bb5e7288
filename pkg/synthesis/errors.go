package synthesis

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for malformed input: wrong mask source,
	// wrong array rank or shape, or an unusable output directory.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDivisionByZero is returned when a gaussian pattern has no density
	// inside the mask and cannot be rescaled.
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrInvalidArgument)

	// ErrDistributionParameter is returned for a negative or non-finite
	// sigma or radius.
	ErrDistributionParameter = fmt.Errorf("%w: invalid distribution parameter", ErrInvalidArgument)
)
