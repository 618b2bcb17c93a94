package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrUserIdMissing = errors.New("userId is missing")

	// threading errors
	ErrThreadNotFound   = errors.New("thread not found")
	ErrAlreadyAssigned  = errors.New("message already assigned to a thread")
	ErrMessageNotFound  = errors.New("message not found")
	ErrInvalidDirection = errors.New("invalid message direction")

	// dsn errors
	ErrNotADsn           = errors.New("message is not a delivery status notification")
	ErrRawContentMissing = errors.New("raw message content unavailable")
)
