package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/fuomag9/checkpulse/internal/config"
)

// Provider delivers a validated alert over one transport
type Provider interface {
	// Name returns the unique identifier for this provider
	Name() string

	// Send delivers the message to its recipient
	Send(ctx context.Context, message *Message) error
}

// Message is an alert addressed to a user's phone number
type Message struct {
	Recipient string    `json:"recipient"`
	Body      string    `json:"message"`
	Time      time.Time `json:"time"`
}

// NewProvider builds the provider selected by cfg.Provider
func NewProvider(cfg config.AlertConfig) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch cfg.Provider {
	case "twilio":
		provider, err = asProvider(NewTwilioProvider(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromPhone))
	case "webhook":
		provider, err = asProvider(NewWebhookProvider(cfg.WebhookURL))
	case "kafka":
		provider, err = asProvider(NewKafkaProvider(cfg.KafkaBrokers, cfg.KafkaTopic))
	case "log", "":
		provider = &LogProvider{}
	default:
		err = fmt.Errorf("unknown alert provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// asProvider keeps a failed constructor from yielding a typed nil Provider
func asProvider[P Provider](p P, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
