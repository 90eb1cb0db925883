package common

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// RowError ties a compilation failure to the input row that caused it.
type RowError struct {
	Row  int // 1-based input line, 0 for synthetic specs
	Algo string
	Err  error
}

func (e *RowError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("synthetic %s class: %v", e.Algo, e.Err)
	}
	return fmt.Sprintf("row %d (%s): %v", e.Row, e.Algo, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

func WrapRow(row int, algo string, err error) error {
	if err == nil {
		return nil
	}
	var re *RowError
	if errors.As(err, &re) {
		return err
	}
	return &RowError{Row: row, Algo: algo, Err: err}
}

// FetchError is a non-200 response from a spec or artifact url.
type FetchError struct {
	URL    string
	Status int
	Body   string // first KiB of the response
}

// newFetchError reads a bounded prefix of the body; the caller still closes it.
func newFetchError(url string, res *http.Response) *FetchError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return &FetchError{URL: url, Status: res.StatusCode, Body: string(body)}
}

func (e *FetchError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: http status %d: %q", e.URL, e.Status, e.Body)
}

// Transient reports whether another attempt may succeed.
func (e *FetchError) Transient() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
