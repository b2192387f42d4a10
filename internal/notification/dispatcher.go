package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MaxMessageLength is the longest alert body accepted, one SMS concatenation limit
const MaxMessageLength = 1600

var (
	ErrInvalidRecipient = errors.New("recipient must be a 10 digit phone number")
	ErrInvalidMessage   = errors.New("message must be non-empty and at most 1600 characters")
)

// Dispatcher validates alerts and paces them onto a single provider
type Dispatcher struct {
	provider Provider
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewDispatcher creates a dispatcher sending through provider. A nil limiter
// sends without pacing.
func NewDispatcher(provider Provider, limiter *rate.Limiter) *Dispatcher {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Dispatcher{
		provider: provider,
		limiter:  limiter,
		now:      time.Now,
	}
}

// Send validates and delivers one alert. It blocks while the rate limit is
// exhausted and gives up when ctx is done.
func (d *Dispatcher) Send(ctx context.Context, recipient, message string) error {
	if !validRecipient(recipient) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
	}
	if message == "" || utf8.RuneCountInString(message) > MaxMessageLength {
		return ErrInvalidMessage
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("alert rate limit: %w", err)
	}

	msg := &Message{Recipient: recipient, Body: message, Time: d.now()}
	if err := d.provider.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send alert via %s: %w", d.provider.Name(), err)
	}

	log.WithFields(log.Fields{
		"provider":  d.provider.Name(),
		"recipient": recipient,
	}).Debug("Alert delivered")
	return nil
}

// Close releases provider resources such as broker connections
func (d *Dispatcher) Close() error {
	if c, ok := d.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func validRecipient(phone string) bool {
	if len(phone) != 10 {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
