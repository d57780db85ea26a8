package calendar

import (
	"fmt"
)

// UpstreamError is returned for any failed call to the calendar provider.
// StatusCode is zero when the request never produced a response.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("calendar API request failed: %v", e.Err)
	}
	return fmt.Sprintf("calendar API returned status %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
