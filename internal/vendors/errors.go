package vendors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/insight-back/pkg/models"
)

// Error is the normalized failure shape every vendor client returns.
// Exactly one of the three failure modes applies:
//   - transport failure: StatusCode == 0, Err holds the network error
//   - vendor rejection:  StatusCode is the non-2xx status, Message holds the
//     vendor-provided detail when one was present
//   - malformed response: StatusCode is the (2xx) status, Err holds the
//     parse error
type Error struct {
	Vendor     models.Vendor
	Op         string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Vendor, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuth reports whether the vendor rejected the credential. Callers use
// this to prompt for a key update instead of showing a generic failure.
func (e *Error) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsTransport reports whether the request never reached the vendor
func (e *Error) IsTransport() bool {
	return e.StatusCode == 0 && e.Err != nil
}

// AsError extracts a *Error from an error chain
func AsError(err error) (*Error, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// transportError wraps a network-level failure
func transportError(vendor models.Vendor, op string, err error) *Error {
	return &Error{Vendor: vendor, Op: op, Err: err}
}

// decodeError wraps a parse failure on an otherwise successful response
func decodeError(vendor models.Vendor, op string, status int, err error) *Error {
	return &Error{Vendor: vendor, Op: op, StatusCode: status, Message: "malformed vendor response", Err: err}
}

// vendorErrorBody is the union of error envelopes the vendors return
type vendorErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// statusError builds an Error from a non-2xx response, preserving the
// vendor-provided message when the body carries one
func statusError(vendor models.Vendor, op string, resp *http.Response) *Error {
	e := &Error{Vendor: vendor, Op: op, StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return e
	}

	var parsed vendorErrorBody
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Message != "":
			e.Message = parsed.Message
		case parsed.Error != "":
			e.Message = parsed.Error
		case parsed.Detail != "":
			e.Message = parsed.Detail
		}
	}

	return e
}
