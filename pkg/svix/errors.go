package svix

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is an API error returned by the server for a non-2xx response.
// Transport-level failures are returned as-is, not wrapped in Error.
type Error struct {
	Status int    `json:"-"`
	Code   string `json:"error"`
	Detail string `json:"message"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("svix: status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("svix: status %d", e.Status)
}

// errorFromResponse decodes the server's error envelope; if the body is
// not a recognizable envelope, the status alone is carried.
func errorFromResponse(resp *http.Response, body []byte) *Error {
	apiErr := &Error{Status: resp.StatusCode}
	if len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
