package domain

import apperrors "github.com/edgepos/edgesync/internal/errors"

var (
	// ErrNodeNotFound indicates the node id is not registered.
	ErrNodeNotFound = apperrors.Wrap(apperrors.ErrNotFound, "node not found")

	// ErrNodeInactive indicates the node was deactivated.
	ErrNodeInactive = apperrors.Wrap(apperrors.ErrUnauthorized, "node is deactivated")

	// ErrInvalidNodeKey indicates the presented key does not match.
	ErrInvalidNodeKey = apperrors.Wrap(apperrors.ErrUnauthorized, "invalid node key")

	// ErrChangeNotFound indicates no verdict is recorded for the idempotency key.
	ErrChangeNotFound = apperrors.Wrap(apperrors.ErrNotFound, "change not found")

	// ErrDuplicateNode indicates the node id is already registered.
	ErrDuplicateNode = apperrors.Wrap(apperrors.ErrDuplicate, "node already registered")
)
