package fetcher

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/NotCoffee418/homedash/pkg/units"
	"github.com/sirupsen/logrus"
)

// HeatingFetcher polls the boiler controller's plain-text endpoint.
type HeatingFetcher struct {
	url     string
	timeout time.Duration
	client  *http.Client
	clock   timebase.Clock
	log     *logrus.Entry
	limiter *logging.RateLimiter
}

func NewHeatingFetcher(url string, timeout time.Duration, clock timebase.Clock) *HeatingFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clock == nil {
		clock = timebase.SystemClock{}
	}
	return &HeatingFetcher{
		url:     url,
		timeout: timeout,
		client:  newHTTPClient(timeout),
		clock:   clock,
		log:     logging.For("heating-fetcher"),
		limiter: logging.NewRateLimiter(time.Minute),
	}
}

func (f *HeatingFetcher) Source() types.Source {
	return types.SourceHeating
}

func (f *HeatingFetcher) Fetch(ctx context.Context) (Result, error) {
	start := time.Now()
	body, err := get(ctx, f.client, f.url, f.timeout)
	latency := time.Since(start)
	if err != nil {
		if faults.Is(err, faults.Timeout) {
			f.limiter.Warn(f.log, "timeout", "Controller request timed out after %s", f.timeout)
		} else {
			f.limiter.Warn(f.log, "request", "Controller request failed: %v", err)
		}
		return Result{Latency: latency}, err
	}

	raw, err := ParseDaqData(body, f.clock.Now())
	if err != nil {
		f.log.Debugf("Unusable daqdata body: %v", err)
		return Result{Latency: latency}, err
	}
	return Result{Raw: raw, Latency: latency}, nil
}

// ParseDaqData splits the body into newline-separated tokens, drops empty
// ones and maps positions onto the field table. Numeric tokens become
// float64, anything else is kept as the raw string.
func ParseDaqData(body []byte, now time.Time) (types.Raw, error) {
	if !utf8.Valid(body) {
		return nil, faults.New(faults.Parse, "daqdata body is not text")
	}
	text := strings.ReplaceAll(string(body), "\r\n", "\n")

	tokens := make([]string, 0, len(heatingFieldNames))
	for _, tok := range strings.Split(text, "\n") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil, faults.New(faults.Parse, "empty daqdata body")
	}
	if len(tokens) < minHeatingTokens {
		return nil, faults.Errorf(faults.Schema, "daqdata has %d fields, need at least %d", len(tokens), minHeatingTokens)
	}

	raw := types.Raw{types.KeyTimestamp: timebase.Format(now)}
	for i, tok := range tokens {
		name := HeatingFieldName(i)
		if name == "" {
			break
		}
		if v, ok := units.ParseFloat(tok); ok {
			raw[name] = v
		} else {
			raw[name] = tok
		}
	}
	return raw, nil
}
