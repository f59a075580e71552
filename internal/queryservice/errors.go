package queryservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"syscall"
)

// NetworkError is returned when no response was obtained from the service.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("query service unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is returned for a response with a non-success status.
type HTTPError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s - %s", e.Status, e.StatusText, e.Body)
}

// DecodeError is returned when a success body is not valid JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind is the user-facing category of a failed query.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkUnreachable
	KindHTTPError
	KindDecodeError
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindHTTPError:
		return "http_error"
	case KindDecodeError:
		return "decode_error"
	}
	return "unknown"
}

// ErrorKind is a classified failure. Status, StatusText and Body are set only
// for KindHTTPError.
type ErrorKind struct {
	Kind       Kind
	Status     int
	StatusText string
	Body       string
}

const (
	networkMessage = "Connection error: Unable to reach the server. Please check if the backend is running. Please try again."
	decodeMessage  = "Server response error: Received invalid data format. Please try again."
	unknownMessage = "Sorry, I encountered an error processing your request. Please try again."
)

// Message renders the fixed user-facing text for the failure.
func (k ErrorKind) Message() string {
	switch k.Kind {
	case KindNetworkUnreachable:
		return networkMessage
	case KindHTTPError:
		return "Server error: " + strconv.Itoa(k.Status) + " " + k.StatusText + " - " + k.Body + ". Please try again."
	case KindDecodeError:
		return decodeMessage
	}
	return unknownMessage
}

// Classify maps a failure from the Query Service boundary to one of four
// kinds. It accepts errors from any client, not only this package's, and
// never panics; nil is Unknown.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKind{Kind: KindUnknown}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return ErrorKind{
			Kind:       KindHTTPError,
			Status:     httpErr.Status,
			StatusText: httpErr.StatusText,
			Body:       httpErr.Body,
		}
	}

	var (
		decodeErr *DecodeError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &decodeErr) || errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrorKind{Kind: KindDecodeError}
	}

	var (
		netErr *NetworkError
		urlErr *url.Error
		opErr  net.Error
	)
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.As(err, &opErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorKind{Kind: KindNetworkUnreachable}
	}

	return ErrorKind{Kind: KindUnknown}
}
