// Package storage declares the persistence interfaces consumed by the domain
// services. Implementations live in the memory, postgres and supabase
// subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/driveline/platform/internal/app/domain/booking"
	"github.com/driveline/platform/internal/app/domain/content"
	"github.com/driveline/platform/internal/app/domain/payment"
	"github.com/driveline/platform/internal/app/domain/referral"
)

// Sentinel errors shared by every implementation. Backend transport failures
// are wrapped as apperr.Unavailable at the store boundary instead.
var (
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict reports that a conditional write lost the race: the
	// guarded version (or uniqueness constraint) no longer held at commit time.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyExists reports a uniqueness violation on a non-versioned row.
	ErrAlreadyExists = errors.New("already exists")
)

// ContentStore persists versioned content items. Writes are conditional: the
// backend write commits only if the expected prior state still holds, which
// is what makes application-layer compare-and-swap safe across processes.
type ContentStore interface {
	GetContentItem(ctx context.Context, page, key string) (content.Item, error)
	ListContentItems(ctx context.Context, page string) ([]content.Item, error)

	// InsertContentItem creates the first version of an item. A concurrent
	// insert of the same (page, key) fails with ErrVersionConflict.
	InsertContentItem(ctx context.Context, item content.Item) (content.Item, error)

	// UpdateContentItemVersioned writes item only if the stored version still
	// equals expectedVersion; otherwise ErrVersionConflict.
	UpdateContentItemVersioned(ctx context.Context, item content.Item, expectedVersion int) (content.Item, error)
}

// BookingStore persists instructor schedules and lessons.
type BookingStore interface {
	GetWorkingHours(ctx context.Context, instructorID string) (booking.WorkingHours, error)
	SetWorkingHours(ctx context.Context, hours booking.WorkingHours) (booking.WorkingHours, error)

	CreateLesson(ctx context.Context, lesson booking.Lesson) (booking.Lesson, error)
	GetLesson(ctx context.Context, id string) (booking.Lesson, error)
	UpdateLesson(ctx context.Context, lesson booking.Lesson) (booking.Lesson, error)

	// ListLessons returns an instructor's lessons intersecting [from, to).
	ListLessons(ctx context.Context, instructorID string, from, to time.Time) ([]booking.Lesson, error)

	// ListLessonsBetween returns every booked lesson starting in [from, to),
	// across instructors. Used by the reminder scanner.
	ListLessonsBetween(ctx context.Context, from, to time.Time) ([]booking.Lesson, error)
}

// ReferralStore persists referral codes and redemptions.
type ReferralStore interface {
	CreateReferralCode(ctx context.Context, code referral.Code) (referral.Code, error)
	GetReferralCode(ctx context.Context, code string) (referral.Code, error)

	// CreateRedemption records a redemption; a second redemption by the same
	// referee fails with ErrAlreadyExists.
	CreateRedemption(ctx context.Context, red referral.Redemption) (referral.Redemption, error)
	ListRedemptions(ctx context.Context, codeID string) ([]referral.Redemption, error)
}

// PaymentStore persists checkout records.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error)
	GetPayment(ctx context.Context, id string) (payment.Payment, error)
	GetPaymentByCheckoutID(ctx context.Context, checkoutID string) (payment.Payment, error)
	UpdatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error)
}
