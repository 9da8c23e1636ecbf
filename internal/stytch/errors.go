package stytch

import "fmt"

// Error is a Stytch API error about the request itself (4xx with an error
// object). It carries the message Stytch wants shown to the user.
type Error struct {
	StatusCode   int
	RequestID    string
	ErrorType    string
	ErrorMessage string
}

func (e *Error) Error() string {
	return fmt.Sprintf("stytch error %s (status %d, request %s): %s", e.ErrorType, e.StatusCode, e.RequestID, e.ErrorMessage)
}

// ProviderMessage returns the message Stytch wants shown to the user
func (e *Error) ProviderMessage() string {
	return e.ErrorMessage
}
