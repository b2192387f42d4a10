package monitor

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fuomag9/checkpulse/internal/models"
)

const (
	userAgent = "checkpulse/1.0"
	maxDrain  = 64 << 10
)

// Prober performs a single network probe for a check
type Prober interface {
	Probe(ctx context.Context, check *models.Check) Outcome
}

// HTTPProber probes HTTP and HTTPS endpoints
type HTTPProber struct {
	client *http.Client
}

// DialControl inspects the resolved address of every connection before it is made
type DialControl func(network, address string, c syscall.RawConn) error

// ProberOption configures an HTTPProber
type ProberOption func(*net.Dialer)

// WithDialControl refuses connections for which control returns an error
func WithDialControl(control DialControl) ProberOption {
	return func(d *net.Dialer) { d.Control = control }
}

// NewHTTPProber creates a prober with its own transport. Redirects are not
// followed: the first response is the one classified.
func NewHTTPProber(opts ...ProberOption) *HTTPProber {
	dialer := &net.Dialer{
		Timeout:   time.Duration(models.MaxTimeoutSeconds) * time.Second,
		KeepAlive: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(dialer)
	}

	return &HTTPProber{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe issues the check's request and waits for the first of three events:
// a response, a transport error, or the check's timeout. Whichever comes first
// is the outcome; later events are discarded.
func (p *HTTPProber) Probe(ctx context.Context, check *models.Check) Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(check.Method), check.Target(), nil)
	if err != nil {
		return FailureOutcome(transportCause(err))
	}
	req.Header.Set("User-Agent", userAgent)

	results := make(chan Outcome, 1)
	var once sync.Once
	resolve := func(o Outcome) {
		once.Do(func() { results <- o })
	}

	go func() {
		resp, err := p.client.Do(req)
		if err != nil {
			resolve(FailureOutcome(transportCause(err)))
			return
		}
		resolve(ResponseOutcome(resp.StatusCode))
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
		resp.Body.Close()
	}()

	timer := time.NewTimer(time.Duration(check.TimeoutSeconds) * time.Second)
	defer timer.Stop()

	select {
	case o := <-results:
		return o
	case <-timer.C:
		resolve(FailureOutcome(TimeoutCause))
		return <-results
	}
}

// transportCause strips the method and URL that net/http prefixes to errors
func transportCause(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
