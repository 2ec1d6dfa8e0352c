// README: Emergency alert dispatcher: record first, notify best-effort.
package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tripguard/internal/metrics"
	"tripguard/internal/modules/dispute"
	"tripguard/internal/notify"
	"tripguard/internal/types"
)

var (
	ErrInvalidState = errors.New("emergency alert already resolved")
	ErrBadRequest   = errors.New("bad request")
)

// Notifier fans an alert out to a contact list. Delivery failures come back
// as audit records, never as errors.
type Notifier interface {
	Notify(ctx context.Context, contacts []notify.Contact, msg notify.Message) []notify.Delivery
}

// ContactDirectory resolves a user's pre-registered emergency contacts.
type ContactDirectory interface {
	ContactsFor(ctx context.Context, userID types.ID) ([]notify.Contact, error)
}

// DisputeOpener parks trip funds in escrow when an SOS fires mid-settlement.
type DisputeOpener interface {
	OpenAutoHold(ctx context.Context, tripID, riderID, driverID types.ID, amount types.Money, reason string) (*dispute.PaymentDispute, error)
}

type Service struct {
	store    Store
	contacts ContactDirectory
	notifier Notifier
	disputes DisputeOpener
	log      *logrus.Entry
}

func NewService(store Store, contacts ContactDirectory, notifier Notifier, disputes DisputeOpener, log *logrus.Entry) *Service {
	return &Service{store: store, contacts: contacts, notifier: notifier, disputes: disputes, log: log}
}

type RaiseCommand struct {
	TripID   types.ID
	UserID   types.ID
	UserType UserType
	Type     AlertType
	Location types.Point
	Context  Snapshot
	// FundsInFlight, when set, is the trip charge still awaiting settlement;
	// raising the alert holds it in escrow.
	FundsInFlight *types.Money
	At            time.Time
}

// Raise records the alert, then notifies contacts and holds in-flight funds.
// Recording always wins: notification and escrow failures are logged against
// the already persisted alert and never suppress it.
func (s *Service) Raise(ctx context.Context, cmd RaiseCommand) (*EmergencyAlert, error) {
	if cmd.TripID == "" || cmd.UserID == "" || cmd.Type == "" {
		return nil, ErrBadRequest
	}

	alert := &EmergencyAlert{
		ID:        types.ID("alert-" + uuid.NewString()),
		TripID:    cmd.TripID,
		UserID:    cmd.UserID,
		UserType:  cmd.UserType,
		Type:      cmd.Type,
		Timestamp: cmd.At,
		Location:  cmd.Location,
		Context:   cmd.Context,
	}
	if err := s.store.Create(ctx, alert); err != nil {
		return nil, err
	}
	metrics.EmergencyAlerts.WithLabelValues(string(cmd.Type)).Inc()
	s.log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"trip_id":  alert.TripID,
		"type":     alert.Type,
	}).Warn("emergency alert raised")

	alert.ContactsNotified = s.notifyContacts(ctx, alert)
	if len(alert.ContactsNotified) > 0 {
		if err := s.store.SetContactsNotified(ctx, alert.ID, alert.ContactsNotified); err != nil {
			s.log.WithError(err).WithField("alert_id", alert.ID).Error("recording notified contacts failed")
		}
	}

	if cmd.FundsInFlight != nil && s.disputes != nil {
		_, err := s.disputes.OpenAutoHold(ctx, cmd.TripID, cmd.Context.RiderID, cmd.Context.DriverID,
			*cmd.FundsInFlight, fmt.Sprintf("emergency alert %s (%s)", alert.ID, alert.Type))
		if err != nil {
			s.log.WithError(err).WithField("alert_id", alert.ID).Error("auto-hold dispute failed")
		}
	}
	return alert, nil
}

func (s *Service) notifyContacts(ctx context.Context, alert *EmergencyAlert) []string {
	if s.contacts == nil || s.notifier == nil {
		return nil
	}
	contacts, err := s.contacts.ContactsFor(ctx, alert.UserID)
	if err != nil {
		s.log.WithError(err).WithField("alert_id", alert.ID).Error("loading emergency contacts failed")
		return nil
	}
	if len(contacts) == 0 {
		return nil
	}

	msg := notify.Message{
		Title: "Emergency alert",
		Body: fmt.Sprintf("An emergency (%s) was reported on an active trip at %.5f,%.5f.",
			alert.Type, alert.Location.Lat, alert.Location.Lng),
		Data: map[string]string{
			"alert_id": string(alert.ID),
			"trip_id":  string(alert.TripID),
			"type":     string(alert.Type),
		},
	}
	var notified []string
	for _, delivery := range s.notifier.Notify(ctx, contacts, msg) {
		if delivery.OK {
			notified = append(notified, delivery.Contact+"/"+delivery.Channel)
		}
	}
	return notified
}

// MarkAuthoritiesContacted flags that emergency services were engaged.
func (s *Service) MarkAuthoritiesContacted(ctx context.Context, id types.ID) error {
	return s.store.SetAuthoritiesContacted(ctx, id)
}

type ResolveCommand struct {
	ID         types.ID
	Resolution string
	At         time.Time
}

// Resolve is the explicit terminal action; it always records what happened.
func (s *Service) Resolve(ctx context.Context, cmd ResolveCommand) error {
	if cmd.Resolution == "" {
		return ErrBadRequest
	}
	alert, err := s.store.Get(ctx, cmd.ID)
	if err != nil {
		return err
	}
	if alert.Resolved {
		return ErrInvalidState
	}
	return s.store.Resolve(ctx, cmd.ID, cmd.At, cmd.Resolution)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*EmergencyAlert, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListOpen(ctx context.Context) ([]*EmergencyAlert, error) {
	return s.store.ListOpen(ctx)
}

func (s *Service) ListByTrip(ctx context.Context, tripID types.ID) ([]*EmergencyAlert, error) {
	return s.store.ListByTrip(ctx, tripID)
}
