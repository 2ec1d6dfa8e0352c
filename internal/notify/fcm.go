// README: FCM push channel backed by the Firebase Admin SDK.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
)

type FCMChannel struct {
	client *messaging.Client
}

func NewFCMChannel(client *messaging.Client) *FCMChannel {
	return &FCMChannel{client: client}
}

func (c *FCMChannel) Name() string { return "push" }

func (c *FCMChannel) Send(ctx context.Context, deviceToken string, msg Message) error {
	if deviceToken == "" {
		return fmt.Errorf("empty device token")
	}
	m := &messaging.Message{
		Token: deviceToken,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := c.client.Send(ctx, m); err != nil {
		return fmt.Errorf("sending FCM to token %s: %w", deviceToken, err)
	}
	return nil
}
