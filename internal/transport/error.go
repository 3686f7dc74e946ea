package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

type HTTPError struct {
	StatusCode int
	Body       map[string]any
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func newHTTPError(resp *http.Response) *HTTPError {
	herr := &HTTPError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(data) > 0 {
		var body map[string]any
		if json.Unmarshal(data, &body) == nil {
			herr.Body = body
			if msg, ok := body["message"].(string); ok {
				herr.Message = msg
			}
		}
	}
	if herr.Message == "" {
		if herr.Body == nil {
			herr.Message = fmt.Sprintf("error reading the body of a %d response", resp.StatusCode)
		} else {
			herr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return herr
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode
	}
	return 0
}
