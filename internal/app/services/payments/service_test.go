package payments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/driveline/platform/internal/app/domain/payment"
	"github.com/driveline/platform/internal/app/storage/memory"
	"github.com/driveline/platform/internal/apperr"
	"github.com/driveline/platform/pkg/logger"
)

type fakeGateway struct {
	session Session
	err     error
	calls   int
	lastRef string
}

func (f *fakeGateway) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	f.calls++
	f.lastRef = req.Reference
	if f.err != nil {
		return Session{}, f.err
	}
	return f.session, nil
}

func newTestService(t *testing.T, gw CheckoutGateway) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	log := logger.NewDefault("payments-test")
	log.SetOutput(io.Discard)
	return New(store, gw, log), store
}

func TestCreateCheckoutRecordsPendingPayment(t *testing.T) {
	gw := &fakeGateway{session: Session{ID: "chk_1", URL: "https://pay.example/chk_1"}}
	s, _ := newTestService(t, gw)

	p, err := s.CreateCheckout(context.Background(), CheckoutRequest{
		StudentID: "stu-1", AmountCents: 45000, Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if p.Status != payment.StatusPending || p.CheckoutID != "chk_1" || p.CheckoutURL == "" {
		t.Fatalf("unexpected payment: %#v", p)
	}
	if gw.calls != 1 {
		t.Fatalf("gateway called %d times", gw.calls)
	}
}

func TestCreateCheckoutGatewayFailureMarksFailed(t *testing.T) {
	gw := &fakeGateway{err: apperr.Unavailable("gateway down", errors.New("boom"))}
	s, store := newTestService(t, gw)

	_, err := s.CreateCheckout(context.Background(), CheckoutRequest{
		StudentID: "stu-1", AmountCents: 45000,
	})
	if apperr.KindOf(err) != apperr.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}

	// The pending row must have been flipped to failed, not left dangling.
	// The gateway saw the payment id as the session reference.
	p, perr := store.GetPayment(context.Background(), gw.lastRef)
	if perr != nil {
		t.Fatalf("find payment: %v", perr)
	}
	if p.Status != payment.StatusFailed {
		t.Fatalf("expected failed payment, got %s", p.Status)
	}
}

func TestCreateCheckoutValidation(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{})

	if _, err := s.CreateCheckout(context.Background(), CheckoutRequest{AmountCents: 100}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("missing student must fail validation, got %v", err)
	}
	if _, err := s.CreateCheckout(context.Background(), CheckoutRequest{StudentID: "s", AmountCents: 0}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("zero amount must fail validation, got %v", err)
	}
}

func TestHandleWebhookSettlesPayment(t *testing.T) {
	gw := &fakeGateway{session: Session{ID: "chk_1", URL: "https://pay.example/chk_1"}}
	s, store := newTestService(t, gw)
	ctx := context.Background()

	created, err := s.CreateCheckout(ctx, CheckoutRequest{StudentID: "stu-1", AmountCents: 45000})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}

	body := []byte(`{"type":"checkout.completed","data":{"checkout_id":"chk_1","amount":45000}}`)
	if err := s.HandleWebhook(ctx, body); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	p, err := store.GetPayment(ctx, created.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != payment.StatusPaid {
		t.Fatalf("expected paid, got %s", p.Status)
	}

	// A duplicate delivery is acknowledged without flipping anything.
	if err := s.HandleWebhook(ctx, body); err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}
	p, _ = store.GetPayment(ctx, created.ID)
	if p.Status != payment.StatusPaid {
		t.Fatalf("duplicate webhook changed status to %s", p.Status)
	}
}

func TestHandleWebhookFailureEvent(t *testing.T) {
	gw := &fakeGateway{session: Session{ID: "chk_2", URL: "https://pay.example/chk_2"}}
	s, store := newTestService(t, gw)
	ctx := context.Background()

	created, err := s.CreateCheckout(ctx, CheckoutRequest{StudentID: "stu-1", AmountCents: 45000})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}

	if err := s.HandleWebhook(ctx, []byte(`{"type":"checkout.failed","data":{"checkout_id":"chk_2"}}`)); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	p, _ := store.GetPayment(ctx, created.ID)
	if p.Status != payment.StatusFailed {
		t.Fatalf("expected failed, got %s", p.Status)
	}
}

func TestHandleWebhookBadPayloads(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{})
	ctx := context.Background()

	if err := s.HandleWebhook(ctx, []byte(`{"truncated`)); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("invalid JSON must fail validation, got %v", err)
	}
	if err := s.HandleWebhook(ctx, []byte(`{"type":"checkout.completed"}`)); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("missing checkout id must fail validation, got %v", err)
	}
	// Unknown events and unknown checkouts are acknowledged.
	if err := s.HandleWebhook(ctx, []byte(`{"type":"customer.updated","data":{"checkout_id":"x"}}`)); err != nil {
		t.Fatalf("unknown event must be acknowledged, got %v", err)
	}
	if err := s.HandleWebhook(ctx, []byte(`{"type":"checkout.completed","data":{"checkout_id":"missing"}}`)); err != nil {
		t.Fatalf("unknown checkout must be acknowledged, got %v", err)
	}
}

func TestHTTPGatewayCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("missing bearer token")
		}
		w.Write([]byte(`{"id":"chk_9","url":"https://pay.example/chk_9"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "key-1", srv.Client())
	session, err := gw.CreateSession(context.Background(), SessionRequest{Reference: "p1", AmountCents: 100, Currency: "EUR"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID != "chk_9" {
		t.Fatalf("unexpected session: %#v", session)
	}
}

func TestHTTPGatewayServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "key-1", srv.Client())
	_, err := gw.CreateSession(context.Background(), SessionRequest{Reference: "p1", AmountCents: 100})
	if apperr.KindOf(err) != apperr.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
