package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/pool"
)

// MaxBodySize caps the bytes read from a fetched body.
const MaxBodySize = 4 << 20

// ErrBodyTooLarge is returned when a response body exceeds MaxBodySize.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// HTTPGet returns a producer that fetches url with the worker's HTTP client
// and yields the response body.
func HTTPGet(worker pool.Worker, url string) actor.Producer {
	return func(ctx context.Context) ([]byte, error) {
		var body []byte
		err := pool.UseGeneric(ctx, worker, func(client *http.Client) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("GET %s: %w", url, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return &StatusError{URL: url, StatusCode: resp.StatusCode}
			}
			body, err = io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
			if err != nil {
				return fmt.Errorf("read body of %s: %w", url, err)
			}
			if len(body) > MaxBodySize {
				body = nil
				return fmt.Errorf("GET %s: %w (limit %d bytes)", url, ErrBodyTooLarge, MaxBodySize)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if body == nil {
			body = []byte{}
		}
		return body, nil
	}
}
