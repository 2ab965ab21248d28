package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NotCoffee418/homedash/pkg/faults"
)

const maxBodyBytes = 1 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// get performs one GET with a hard deadline and returns the body.
// Errors are classified as network, timeout or http_status.
func get(ctx context.Context, client *http.Client, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, faults.Wrapf(faults.Network, err, "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, faults.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, faults.Errorf(faults.HTTPStatus, "unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, faults.ClassifyTransport(fmt.Errorf("read body: %w", err))
	}
	return body, nil
}
