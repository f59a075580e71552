package queryservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	var syntaxErr *json.SyntaxError
	jsonErr := json.Unmarshal([]byte("{"), &struct{}{})
	if !errors.As(jsonErr, &syntaxErr) {
		t.Fatalf("setup: %v is not a SyntaxError", jsonErr)
	}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("something odd"), KindUnknown},
		{"network", &NetworkError{Err: errors.New("dial")}, KindNetworkUnreachable},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("dial")}, KindNetworkUnreachable},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindNetworkUnreachable},
		{"econnrefused", fmt.Errorf("wrapped: %w", syscall.ECONNREFUSED), KindNetworkUnreachable},
		{"http", &HTTPError{Status: 404, StatusText: "Not Found", Body: "nope"}, KindHTTPError},
		{"wrapped http", fmt.Errorf("asking: %w", &HTTPError{Status: 400}), KindHTTPError},
		{"decode", &DecodeError{Err: errors.New("bad")}, KindDecodeError},
		{"json syntax", jsonErr, KindDecodeError},
		{"decode wrapped in network", &NetworkError{Err: &DecodeError{Err: errors.New("bad")}}, KindDecodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err).Kind; got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorKind_Message(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{ErrorKind{Kind: KindNetworkUnreachable}, "Connection error: Unable to reach the server. Please check if the backend is running. Please try again."},
		{ErrorKind{Kind: KindHTTPError, Status: 400, StatusText: "Bad Request", Body: `{"error":"User not found"}`}, `Server error: 400 Bad Request - {"error":"User not found"}. Please try again.`},
		{ErrorKind{Kind: KindDecodeError}, "Server response error: Received invalid data format. Please try again."},
		{ErrorKind{Kind: KindUnknown}, "Sorry, I encountered an error processing your request. Please try again."},
	}
	for _, tt := range tests {
		if got := tt.kind.Message(); got != tt.want {
			t.Errorf("Message(%s) = %q, want %q", tt.kind.Kind, got, tt.want)
		}
	}
}

func TestClassify_KeepsHTTPDetail(t *testing.T) {
	k := Classify(&HTTPError{Status: 503, StatusText: "Service Unavailable", Body: "down"})
	if k.Status != 503 || k.StatusText != "Service Unavailable" || k.Body != "down" {
		t.Errorf("Classify = %+v", k)
	}
}
