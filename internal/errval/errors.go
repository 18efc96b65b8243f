package errval

import (
	"errors"
)

var (
	ErrInternal             = errors.New("internal server error")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("invalid webhook signature")
	ErrInvalidPayload       = errors.New("invalid event payload")
	ErrDuplicate            = errors.New("duplicate event inside dedup window")
	ErrMissingEncryptionKey = errors.New("ENCRYPTION_KEY is not set")
	ErrUnusableRecipient    = errors.New("no usable recipient for channel")
)
