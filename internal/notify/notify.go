// README: Best-effort notification dispatch over push and SMS channels.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"tripguard/internal/metrics"
)

// Message is a channel-agnostic notification payload.
type Message struct {
	Title string
	Body  string
	// Data rides along on channels that support structured payloads (FCM).
	Data map[string]string
}

// Contact identifies one delivery target. A contact may be reachable on
// several channels; empty fields mean the channel is unavailable.
type Contact struct {
	Name        string
	DeviceToken string
	PhoneNumber string
}

// Channel delivers a message to a single target identifier.
type Channel interface {
	Name() string
	Send(ctx context.Context, target string, msg Message) error
}

// Dispatcher fans a message out to every reachable channel per contact.
// Delivery is best-effort: failures are logged and counted, never retried
// here and never returned to the caller as fatal.
type Dispatcher struct {
	push Channel
	sms  Channel
	log  *logrus.Entry
}

func NewDispatcher(push, sms Channel) *Dispatcher {
	return &Dispatcher{push: push, sms: sms, log: logrus.WithField("component", "notify")}
}

// Delivery records one attempted delivery for audit.
type Delivery struct {
	Contact string
	Channel string
	OK      bool
	Err     string
}

// Notify sends msg to each contact on every channel it is reachable on and
// returns the per-attempt outcomes.
func (d *Dispatcher) Notify(ctx context.Context, contacts []Contact, msg Message) []Delivery {
	var out []Delivery
	for _, c := range contacts {
		if c.DeviceToken != "" && d.push != nil {
			out = append(out, d.attempt(ctx, d.push, c.Name, c.DeviceToken, msg))
		}
		if c.PhoneNumber != "" && d.sms != nil {
			out = append(out, d.attempt(ctx, d.sms, c.Name, c.PhoneNumber, msg))
		}
	}
	return out
}

func (d *Dispatcher) attempt(ctx context.Context, ch Channel, contact, target string, msg Message) Delivery {
	err := ch.Send(ctx, target, msg)
	if err != nil {
		metrics.NotifyFailures.WithLabelValues(ch.Name()).Inc()
		d.log.WithFields(logrus.Fields{"channel": ch.Name(), "contact": contact}).
			Warnf("delivery failed: %v", err)
		return Delivery{Contact: contact, Channel: ch.Name(), Err: err.Error()}
	}
	return Delivery{Contact: contact, Channel: ch.Name(), OK: true}
}
