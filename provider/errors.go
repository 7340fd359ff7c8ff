package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProviderReported is wrapped by every error a provider reports about a request (a bad
// query, an unknown field) as opposed to transport failures. These are never retried.
var ErrProviderReported = errors.New("Provider reported an error")

type ServiceError struct {
	Provider string
	Code     int
	Message  string
	Details  []string
}

func (e *ServiceError) Error() string {

	msg := fmt.Sprintf("%s reported an error", e.Provider)

	if e.Code != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Code)
	}

	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}

	if len(e.Details) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(e.Details, "; "))
	}

	return msg
}

func (e *ServiceError) Unwrap() error {
	return ErrProviderReported
}
