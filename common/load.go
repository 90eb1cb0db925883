package common

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
)

// LoadFromFileOrHttpUrl reads a local path, a file:// url or an http[s]:// url.
func LoadFromFileOrHttpUrl(ctx context.Context, src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "":
		return os.ReadFile(src)
	case "file":
		return os.ReadFile(u.Path)
	case "http", "https":
		res, err := RetryHttpGet(ctx, src)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		return io.ReadAll(res.Body)
	default:
		return nil, fmt.Errorf("unknown scheme %q, must use a path, file or http[s]", u.Scheme)
	}
}
