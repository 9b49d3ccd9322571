package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrMalformedCommand means the message does not match `identity: payload`.
	ErrMalformedCommand = errors.New("malformed command")
	// ErrNoValidChannels is the business-rule rejection for a subscribe without any known channel.
	ErrNoValidChannels = errors.New("no valid channels")
	ErrChannelBinding  = errors.New("channel binding failure")
	ErrDispatchSend    = errors.New("dispatch send failure")
	ErrPersistence     = errors.New("persistence failure")
	ErrMenuFetch       = errors.New("menu fetch failure")

	ErrInvalidBackend  = errors.New("invalid backend")
	ErrDataStoreAccess = errors.New("data store read/write error")
)

func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	} else {
		return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
	}
}
