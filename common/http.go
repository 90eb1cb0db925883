package common

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	fetchAttempts = 4
	fetchDelay    = 500 * time.Millisecond
)

// RetryHttpGet fetches url, retrying transport failures and transient statuses.
// On success the caller owns res.Body.
func RetryHttpGet(ctx context.Context, url string) (*http.Response, error) {
	get := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, retry.Unrecoverable(err)
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		if res.StatusCode != http.StatusOK {
			defer res.Body.Close()
			return nil, newFetchError(url, res)
		}
		return res, nil
	}
	return retry.DoWithData(get,
		retry.Context(ctx),
		retry.Attempts(fetchAttempts),
		retry.Delay(fetchDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var fe *FetchError
			switch {
			case errors.As(err, &fe):
				return fe.Transient()
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return false
			}
			return true
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("fetch %s attempt %d: %v, retrying", url, n+1, err)
		}))
}
