package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
)

const maxErrorBody = 4 << 10

// Params are query parameters of a catalog request. Nil values are omitted.
type Params map[string]any

// retryableErrnos are the transport failures worth another attempt.
var retryableErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ETIMEDOUT,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
}

// errAttemptTimeout marks an attempt aborted by its own deadline.
var errAttemptTimeout = errors.New("tmdb: request timed out")

// StatusError is an upstream non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: %s responded %d", e.Endpoint, e.StatusCode)
}

// fetchJSON issues a GET against endpoint and decodes the JSON body into T.
// Transient failures are retried with exponential backoff; every failure is
// reported as ErrUnavailable except a missing credential.
func fetchJSON[T any](ctx context.Context, c *Client, endpoint string, params Params) (T, error) {
	var result T

	target, err := c.buildURL(endpoint, params)
	if err != nil {
		return result, err
	}

	attempts := uint(c.maxRetries) + 1
	err = retry.Do(
		func() error {
			value, err := fetchOnce[T](ctx, c, endpoint, target)
			if err != nil {
				return err
			}
			result = value
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		// retry-go numbers the delay from 1; the first wait is the base delay.
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return c.backoff(n - 1)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			if n+1 >= attempts || !isRetryable(err) {
				return
			}
			c.logger.Printf("tmdb: attempt %d failed for %s, retrying in %s: %v", n+1, endpoint, c.backoff(n), err)
		}),
	)
	if err != nil {
		c.logger.Printf("tmdb: request failed permanently for %s: %v", endpoint, err)
		var zero T
		return zero, ErrUnavailable
	}
	return result, nil
}

func fetchOnce[T any](ctx context.Context, c *Client, endpoint, target string) (T, error) {
	var value T

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return value, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return value, classifyTransportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Printf("tmdb: %s responded %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
		return value, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		return value, classifyTransportError(ctx, reqCtx, fmt.Errorf("decode %s: %w", endpoint, err))
	}
	return value, nil
}

// classifyTransportError separates the attempt's own deadline from caller
// cancellation so only the former is retried.
func classifyTransportError(ctx, reqCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errAttemptTimeout, err)
	}
	return err
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errAttemptTimeout) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) backoff(attempt uint) time.Duration {
	return c.retryBaseDelay << attempt
}

func (c *Client) buildURL(endpoint string, params Params) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(endpoint, "/")

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	for key, value := range params {
		if formatted, ok := formatParam(value); ok {
			q.Set(key, formatted)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func formatParam(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	case *int:
		if v == nil {
			return "", false
		}
		return fmt.Sprint(*v), true
	case *int64:
		if v == nil {
			return "", false
		}
		return fmt.Sprint(*v), true
	default:
		return fmt.Sprint(v), true
	}
}
