package domain

import apperrors "github.com/edgepos/edgesync/internal/errors"

var (
	// ErrRecordNotFound indicates the conflict record does not exist.
	ErrRecordNotFound = apperrors.Wrap(apperrors.ErrNotFound, "conflict record not found")

	// ErrAlreadyResolved indicates a resolution was attempted on a closed record.
	ErrAlreadyResolved = apperrors.Wrap(apperrors.ErrInvalidInput, "conflict already resolved")

	// ErrInvalidResolution indicates an unknown resolution value.
	ErrInvalidResolution = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid resolution")
)
