package stytch

import (
	"net/http"
	"time"
)

// defaultTimeout bounds a single Stytch API call
const defaultTimeout = 30 * time.Second

// NewRealHTTPClient creates the production HTTP client handed to the SDK
func NewRealHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}
