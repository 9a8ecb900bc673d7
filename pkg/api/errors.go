package api

import "fmt"

// ResponseError reports a malformed or incomplete API payload. It is raised
// at the fetch boundary, immediately after decoding, so bad upstream data
// never reaches orchestration logic.
type ResponseError struct {
	Endpoint string
	Reason   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("invalid %s response: %s", e.Endpoint, e.Reason)
}

// StatusError reports a non-success HTTP status after retries exhausted.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d", e.URL, e.StatusCode)
}
