package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/driveline/platform/internal/app/domain/booking"
	contentdomain "github.com/driveline/platform/internal/app/domain/content"
	bookingsvc "github.com/driveline/platform/internal/app/services/booking"
	contentsvc "github.com/driveline/platform/internal/app/services/content"
	"github.com/driveline/platform/internal/app/services/payments"
	"github.com/driveline/platform/internal/apperr"
	"github.com/driveline/platform/internal/middleware"
	"github.com/driveline/platform/internal/orchestrator"
)

const maxBodyBytes = 1 << 20

// dispatch reads the body and runs the handler through the orchestrator under
// the named route's policy.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, route string, handler orchestrator.Handler) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, apperr.Validation("unreadable request body"))
		return
	}

	req := orchestrator.Request{
		Method:   r.Method,
		CallerID: middleware.CallerFrom(r.Context()),
		Payload:  body,
	}
	result, err := s.orch.Execute(r.Context(), req, s.policy(route), handler)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Content ---------------------------------------------------------------

func (s *Server) handleContentLoad(w http.ResponseWriter, r *http.Request) {
	items, err := s.content.Load(r.Context(), chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

type contentSaveBody struct {
	Type            string          `json:"type"`
	Value           json.RawMessage `json:"value"`
	ExpectedVersion *int            `json:"expected_version,omitempty"`
}

func (s *Server) handleContentSave(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	key := chi.URLParam(r, "key")

	s.dispatch(w, r, RouteContentSave, func(ctx context.Context, req orchestrator.Request) (interface{}, error) {
		var body contentSaveBody
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			return nil, apperr.Validation("invalid save payload")
		}
		res, err := s.content.Save(ctx, contentsvc.SaveRequest{
			Page:            page,
			Key:             key,
			Type:            contentdomain.Type(body.Type),
			Value:           body.Value,
			EditorID:        req.CallerID,
			ExpectedVersion: body.ExpectedVersion,
		})
		if err != nil {
			return nil, err
		}
		if res.Conflict {
			// Conflict is a terminal answer at 409, never retried.
			return nil, apperr.Conflict("")
		}
		return res, nil
	})
}

// Scheduling ------------------------------------------------------------

func (s *Server) handleHoursGet(w http.ResponseWriter, r *http.Request) {
	hours, err := s.booking.WorkingHours(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hours)
}

func (s *Server) handleHoursSet(w http.ResponseWriter, r *http.Request) {
	instructorID := chi.URLParam(r, "id")

	s.dispatch(w, r, RouteHoursSet, func(ctx context.Context, req orchestrator.Request) (interface{}, error) {
		var hours booking.WorkingHours
		if err := json.Unmarshal(req.Payload, &hours); err != nil {
			return nil, apperr.Validation("invalid working hours payload")
		}
		hours.InstructorID = instructorID
		if req.CallerID != instructorID {
			return nil, apperr.Forbidden("only the instructor may change their hours")
		}
		return s.booking.SetWorkingHours(ctx, hours)
	})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, apperr.Validation("date must be YYYY-MM-DD"))
		return
	}
	slots, err := s.booking.Availability(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"slots": slots})
}

func (s *Server) handleLessonBook(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, RouteLessonBook, func(ctx context.Context, req orchestrator.Request) (interface{}, error) {
		var body bookingsvc.BookRequest
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			return nil, apperr.Validation("invalid booking payload")
		}
		body.StudentID = req.CallerID
		return s.booking.Book(ctx, body)
	})
}

func (s *Server) handleLessonCancel(w http.ResponseWriter, r *http.Request) {
	lessonID := chi.URLParam(r, "id")

	s.dispatch(w, r, RouteLessonCancel, func(ctx context.Context, req orchestrator.Request) (interface{}, error) {
		return s.booking.Cancel(ctx, lessonID, req.CallerID)
	})
}

// Payments ---------------------------------------------------------------

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, RouteCheckout, func(ctx context.Context, req orchestrator.Request) (interface{}, error) {
		var body payments.CheckoutRequest
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			return nil, apperr.Validation("invalid checkout payload")
		}
		body.StudentID = req.CallerID
		return s.payments.CreateCheckout(ctx, body)
	})
}

// handlePaymentWebhook is called by the payment provider, not by clients, so
// it bypasses the caller auth gate; the service validates the event shape.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, apperr.Validation("unreadable webhook body"))
		return
	}
	if err := s.payments.HandleWebhook(r.Context(), body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
}

// Referrals --------------------------------------------------------------

func (s *Server) handleReferralCreate(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, RouteReferralMint, func(ctx context.Context, req orchestrator.Request) (interface{}, error) {
		return s.referral.CreateCode(ctx, req.CallerID)
	})
}

func (s *Server) handleReferralRedeem(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, RouteReferralClaim, func(ctx context.Context, req orchestrator.Request) (interface{}, error) {
		var body struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			return nil, apperr.Validation("invalid redeem payload")
		}
		return s.referral.Redeem(ctx, body.Code, req.CallerID)
	})
}
