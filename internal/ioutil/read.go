package ioutil

import (
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned by ReadAllLimited when r holds more than limit bytes
var ErrTooLarge = errors.New("body exceeds size limit")

// ReadAllLimited reads all of r, failing with ErrTooLarge instead of
// silently truncating when r is longer than limit.
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return body, nil
}

// Snippet returns at most limit bytes of body for use in logs
func Snippet(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
