package repository

import "github.com/pkg/errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrThreadNotFound  = errors.New("thread not found")
	ErrAlreadyAssigned = errors.New("message already assigned to a thread")
)
