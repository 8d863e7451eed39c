// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development. Conditional writes hold the store lock, so
// the version guard is atomic within one process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/driveline/platform/internal/app/domain/booking"
	"github.com/driveline/platform/internal/app/domain/content"
	"github.com/driveline/platform/internal/app/domain/payment"
	"github.com/driveline/platform/internal/app/domain/referral"
	"github.com/driveline/platform/internal/app/storage"
)

// Store is the in-memory implementation of every storage interface.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	contentItems  map[string]content.Item // keyed page + "\x00" + key
	workingHours  map[string]booking.WorkingHours
	lessons       map[string]booking.Lesson
	referralCodes map[string]referral.Code // keyed by code string
	redemptions   map[string]referral.Redemption
	redeemedBy    map[string]string // refereeID -> redemption id
	payments      map[string]payment.Payment
	byCheckout    map[string]string // checkoutID -> payment id
}

var _ storage.ContentStore = (*Store)(nil)
var _ storage.BookingStore = (*Store)(nil)
var _ storage.ReferralStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		contentItems:  make(map[string]content.Item),
		workingHours:  make(map[string]booking.WorkingHours),
		lessons:       make(map[string]booking.Lesson),
		referralCodes: make(map[string]referral.Code),
		redemptions:   make(map[string]referral.Redemption),
		redeemedBy:    make(map[string]string),
		payments:      make(map[string]payment.Payment),
		byCheckout:    make(map[string]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func contentKey(page, key string) string {
	return page + "\x00" + key
}

// ContentStore implementation ------------------------------------------------

func (s *Store) GetContentItem(_ context.Context, page, key string) (content.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.contentItems[contentKey(page, key)]
	if !ok {
		return content.Item{}, storage.ErrNotFound
	}
	return cloneItem(item), nil
}

func (s *Store) ListContentItems(_ context.Context, page string) ([]content.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []content.Item
	for _, item := range s.contentItems {
		if item.Page == page {
			items = append(items, cloneItem(item))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (s *Store) InsertContentItem(_ context.Context, item content.Item) (content.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := contentKey(item.Page, item.Key)
	if _, exists := s.contentItems[ck]; exists {
		return content.Item{}, storage.ErrVersionConflict
	}

	item.Version = 1
	item.UpdatedAt = time.Now().UTC()
	s.contentItems[ck] = cloneItem(item)
	return cloneItem(item), nil
}

func (s *Store) UpdateContentItemVersioned(_ context.Context, item content.Item, expectedVersion int) (content.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := contentKey(item.Page, item.Key)
	current, ok := s.contentItems[ck]
	if !ok || current.Version != expectedVersion {
		return content.Item{}, storage.ErrVersionConflict
	}

	item.Version = expectedVersion + 1
	item.UpdatedAt = time.Now().UTC()
	s.contentItems[ck] = cloneItem(item)
	return cloneItem(item), nil
}

// BookingStore implementation ------------------------------------------------

func (s *Store) GetWorkingHours(_ context.Context, instructorID string) (booking.WorkingHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hours, ok := s.workingHours[instructorID]
	if !ok {
		return booking.WorkingHours{}, storage.ErrNotFound
	}
	return cloneHours(hours), nil
}

func (s *Store) SetWorkingHours(_ context.Context, hours booking.WorkingHours) (booking.WorkingHours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hours.UpdatedAt = time.Now().UTC()
	s.workingHours[hours.InstructorID] = cloneHours(hours)
	return cloneHours(hours), nil
}

func (s *Store) CreateLesson(_ context.Context, lesson booking.Lesson) (booking.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lesson.ID == "" {
		lesson.ID = s.nextIDLocked()
	} else if _, exists := s.lessons[lesson.ID]; exists {
		return booking.Lesson{}, storage.ErrAlreadyExists
	}

	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	s.lessons[lesson.ID] = lesson
	return lesson, nil
}

func (s *Store) GetLesson(_ context.Context, id string) (booking.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lesson, ok := s.lessons[id]
	if !ok {
		return booking.Lesson{}, storage.ErrNotFound
	}
	return lesson, nil
}

func (s *Store) UpdateLesson(_ context.Context, lesson booking.Lesson) (booking.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.lessons[lesson.ID]
	if !ok {
		return booking.Lesson{}, storage.ErrNotFound
	}
	lesson.CreatedAt = original.CreatedAt
	lesson.UpdatedAt = time.Now().UTC()
	s.lessons[lesson.ID] = lesson
	return lesson, nil
}

func (s *Store) ListLessons(_ context.Context, instructorID string, from, to time.Time) ([]booking.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lessons []booking.Lesson
	for _, lesson := range s.lessons {
		if lesson.InstructorID != instructorID {
			continue
		}
		if lesson.Overlaps(from, to) {
			lessons = append(lessons, lesson)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Start.Before(lessons[j].Start) })
	return lessons, nil
}

func (s *Store) ListLessonsBetween(_ context.Context, from, to time.Time) ([]booking.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lessons []booking.Lesson
	for _, lesson := range s.lessons {
		if lesson.Status != booking.StatusBooked {
			continue
		}
		if !lesson.Start.Before(from) && lesson.Start.Before(to) {
			lessons = append(lessons, lesson)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Start.Before(lessons[j].Start) })
	return lessons, nil
}

// ReferralStore implementation -----------------------------------------------

func (s *Store) CreateReferralCode(_ context.Context, code referral.Code) (referral.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.referralCodes[code.Code]; exists {
		return referral.Code{}, storage.ErrAlreadyExists
	}
	if code.ID == "" {
		code.ID = s.nextIDLocked()
	}
	code.CreatedAt = time.Now().UTC()
	s.referralCodes[code.Code] = code
	return code, nil
}

func (s *Store) GetReferralCode(_ context.Context, code string) (referral.Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.referralCodes[code]
	if !ok {
		return referral.Code{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) CreateRedemption(_ context.Context, red referral.Redemption) (referral.Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, redeemed := s.redeemedBy[red.RefereeID]; redeemed {
		return referral.Redemption{}, storage.ErrAlreadyExists
	}
	if red.ID == "" {
		red.ID = s.nextIDLocked()
	}
	red.CreatedAt = time.Now().UTC()
	s.redemptions[red.ID] = red
	s.redeemedBy[red.RefereeID] = red.ID
	return red, nil
}

func (s *Store) ListRedemptions(_ context.Context, codeID string) ([]referral.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reds []referral.Redemption
	for _, red := range s.redemptions {
		if red.CodeID == codeID {
			reds = append(reds, red)
		}
	}
	sort.Slice(reds, func(i, j int) bool { return reds[i].CreatedAt.Before(reds[j].CreatedAt) })
	return reds, nil
}

// PaymentStore implementation ------------------------------------------------

func (s *Store) CreatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.payments[p.ID]; exists {
		return payment.Payment{}, storage.ErrAlreadyExists
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.payments[p.ID] = p
	if p.CheckoutID != "" {
		s.byCheckout[p.CheckoutID] = p.ID
	}
	return p, nil
}

func (s *Store) GetPayment(_ context.Context, id string) (payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return payment.Payment{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetPaymentByCheckoutID(_ context.Context, checkoutID string) (payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCheckout[checkoutID]
	if !ok {
		return payment.Payment{}, storage.ErrNotFound
	}
	return s.payments[id], nil
}

func (s *Store) UpdatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.payments[p.ID]
	if !ok {
		return payment.Payment{}, storage.ErrNotFound
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.payments[p.ID] = p
	if p.CheckoutID != "" {
		s.byCheckout[p.CheckoutID] = p.ID
	}
	return p, nil
}

// Clone helpers keep stored values isolated from caller mutation.

func cloneItem(item content.Item) content.Item {
	out := item
	if item.Value != nil {
		out.Value = append([]byte(nil), item.Value...)
	}
	return out
}

func cloneHours(hours booking.WorkingHours) booking.WorkingHours {
	out := hours
	if hours.Days != nil {
		out.Days = make(map[time.Weekday]booking.DayWindow, len(hours.Days))
		for day, win := range hours.Days {
			out.Days[day] = win
		}
	}
	return out
}
