package notification

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LogProvider writes alerts to the diagnostic log instead of delivering them
type LogProvider struct{}

func (l *LogProvider) Name() string {
	return "log"
}

func (l *LogProvider) Send(_ context.Context, message *Message) error {
	log.WithField("recipient", message.Recipient).Infof("ALERT %s", message.Body)
	return nil
}
