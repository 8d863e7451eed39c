// Package payments glues lesson checkouts to an external hosted payment
// provider and settles them from webhook events.
package payments

import (
	"context"
	"errors"

	"github.com/driveline/platform/internal/app/domain/payment"
	"github.com/driveline/platform/internal/app/storage"
	"github.com/driveline/platform/internal/apperr"
	"github.com/driveline/platform/pkg/logger"
	"github.com/tidwall/gjson"
)

// Service creates checkouts and applies webhook settlements.
type Service struct {
	store   storage.PaymentStore
	gateway CheckoutGateway
	logger  *logger.Logger
}

// New creates the payments service.
func New(store storage.PaymentStore, gateway CheckoutGateway, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Service{store: store, gateway: gateway, logger: log}
}

// CheckoutRequest is one attempted package purchase.
type CheckoutRequest struct {
	StudentID   string `json:"student_id"`
	LessonID    string `json:"lesson_id,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// CreateCheckout records a pending payment and opens a hosted checkout
// session for it. The pending row is written before the gateway call so a
// webhook arriving early still finds its payment.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (payment.Payment, error) {
	if req.StudentID == "" {
		return payment.Payment{}, apperr.Validation("student is required")
	}
	if req.AmountCents <= 0 {
		return payment.Payment{}, apperr.Validation("amount must be positive")
	}
	if req.Currency == "" {
		req.Currency = "EUR"
	}

	p, err := s.store.CreatePayment(ctx, payment.Payment{
		StudentID:   req.StudentID,
		LessonID:    req.LessonID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Status:      payment.StatusPending,
	})
	if err != nil {
		return payment.Payment{}, err
	}

	session, err := s.gateway.CreateSession(ctx, SessionRequest{
		Reference:   p.ID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Description: "driving lesson package",
	})
	if err != nil {
		p.Status = payment.StatusFailed
		if _, uerr := s.store.UpdatePayment(ctx, p); uerr != nil {
			s.logger.WithError(uerr).WithField("payment_id", p.ID).Error("failed to mark payment failed")
		}
		return payment.Payment{}, err
	}

	p.CheckoutID = session.ID
	p.CheckoutURL = session.URL
	updated, err := s.store.UpdatePayment(ctx, p)
	if err != nil {
		return payment.Payment{}, err
	}

	s.logger.WithFields(map[string]interface{}{
		"payment_id":  updated.ID,
		"checkout_id": session.ID,
		"amount":      req.AmountCents,
	}).Info("checkout created")
	return updated, nil
}

// HandleWebhook applies one provider event. Events for unknown checkouts and
// repeated settlements are acknowledged without effect so the provider stops
// retrying.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) error {
	if !gjson.ValidBytes(body) {
		return apperr.Validation("webhook payload is not valid JSON")
	}
	event := gjson.GetBytes(body, "type").String()
	checkoutID := gjson.GetBytes(body, "data.checkout_id").String()
	if event == "" || checkoutID == "" {
		return apperr.Validation("webhook payload missing type or checkout id")
	}

	var status string
	switch event {
	case "checkout.completed":
		status = payment.StatusPaid
	case "checkout.failed", "checkout.expired":
		status = payment.StatusFailed
	default:
		// Unrecognized events are acknowledged and ignored.
		s.logger.WithField("event", event).Debug("ignoring webhook event")
		return nil
	}

	p, err := s.store.GetPaymentByCheckoutID(ctx, checkoutID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.WithField("checkout_id", checkoutID).Warn("webhook for unknown checkout")
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status == status {
		return nil
	}
	if p.Status != payment.StatusPending {
		s.logger.WithFields(map[string]interface{}{
			"payment_id": p.ID,
			"status":     p.Status,
			"event":      event,
		}).Warn("webhook for settled payment ignored")
		return nil
	}

	p.Status = status
	if _, err := s.store.UpdatePayment(ctx, p); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"payment_id": p.ID,
		"status":     status,
	}).Info("payment settled")
	return nil
}

// Payment returns one payment by id.
func (s *Service) Payment(ctx context.Context, id string) (payment.Payment, error) {
	return s.store.GetPayment(ctx, id)
}
