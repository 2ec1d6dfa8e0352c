// README: Twilio SMS channel via the Messages REST endpoint.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type SMSChannel struct {
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
}

func NewSMSChannel(accountSID, authToken, fromNumber string) *SMSChannel {
	return &SMSChannel{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Send(ctx context.Context, phoneNumber string, msg Message) error {
	if c.accountSID == "" {
		return fmt.Errorf("twilio not configured")
	}

	body := msg.Body
	if msg.Title != "" {
		body = msg.Title + ": " + body
	}

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", c.accountSID)
	form := url.Values{}
	form.Set("To", phoneNumber)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twilio responded %d", resp.StatusCode)
	}
	return nil
}
