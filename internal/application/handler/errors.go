package handler

import (
	"errors"
	"fmt"
)

// CodeUnauthenticated marks a request that carried no user identity.
const CodeUnauthenticated = "UNAUTHENTICATED"

var errUnknownType = errors.New("unknown request type")

func ErrHandlerInvalidPayload(err error) error {
	return fmt.Errorf("invalid payload: %w", err)
}

func ErrHandlerUnmarshal(err error) error {
	return fmt.Errorf("failed to unmarshal payload: %w", err)
}

func ErrHandlerUnknownType(requestType string) error {
	return fmt.Errorf("%w: %q", errUnknownType, requestType)
}
