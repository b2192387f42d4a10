package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioProvider sends alerts as SMS through the Twilio messages API
type TwilioProvider struct {
	baseURL    string
	accountSID string
	authToken  string
	fromPhone  string
	client     *http.Client
}

// NewTwilioProvider creates a Twilio provider. baseURL defaults to the public API.
func NewTwilioProvider(baseURL, accountSID, authToken, fromPhone string) (*TwilioProvider, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("twilio account sid and auth token are required")
	}
	if fromPhone == "" {
		return nil, fmt.Errorf("twilio from phone is required")
	}
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}

	return &TwilioProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		fromPhone:  fromPhone,
		client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *TwilioProvider) Name() string {
	return "twilio"
}

func (p *TwilioProvider) Send(ctx context.Context, message *Message) error {
	data := url.Values{}
	data.Set("From", p.fromPhone)
	data.Set("To", "+1"+message.Recipient)
	data.Set("Body", message.Body)

	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, url.PathEscape(p.accountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Twilio message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Twilio API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
