// Package postgres implements the storage interfaces backed by PostgreSQL.
// Conditional writes use version-guarded UPDATEs and unique constraints, so
// compare-and-swap holds even when several processes share the database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/driveline/platform/internal/app/domain/booking"
	"github.com/driveline/platform/internal/app/domain/content"
	"github.com/driveline/platform/internal/app/domain/payment"
	"github.com/driveline/platform/internal/app/domain/referral"
	"github.com/driveline/platform/internal/app/storage"
	"github.com/driveline/platform/internal/apperr"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.ContentStore = (*Store)(nil)
var _ storage.BookingStore = (*Store)(nil)
var _ storage.ReferralStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL with the given DSN.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, apperr.Unavailable("connect postgres", err)
	}
	return New(db), nil
}

// DB exposes the handle for migrations.
func (s *Store) DB() *sql.DB { return s.db.DB }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// wrapRead normalizes read-side errors.
func wrapRead(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return apperr.Unavailable(op, err)
}

// --- ContentStore -----------------------------------------------------------

func (s *Store) GetContentItem(ctx context.Context, page, key string) (content.Item, error) {
	var item content.Item
	err := s.db.GetContext(ctx, &item, `
		SELECT page, key, type, value, version, updated_by, updated_at
		FROM content_items WHERE page = $1 AND key = $2
	`, page, key)
	if err != nil {
		return content.Item{}, wrapRead("get content item", err)
	}
	return item, nil
}

func (s *Store) ListContentItems(ctx context.Context, page string) ([]content.Item, error) {
	var items []content.Item
	err := s.db.SelectContext(ctx, &items, `
		SELECT page, key, type, value, version, updated_by, updated_at
		FROM content_items WHERE page = $1 ORDER BY key
	`, page)
	if err != nil {
		return nil, apperr.Unavailable("list content items", err)
	}
	return items, nil
}

func (s *Store) InsertContentItem(ctx context.Context, item content.Item) (content.Item, error) {
	item.Version = 1
	item.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items (page, key, type, value, version, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.Page, item.Key, item.Type, []byte(item.Value), item.Version, item.UpdatedBy, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Someone else created version 1 between our read and this write.
			return content.Item{}, storage.ErrVersionConflict
		}
		return content.Item{}, apperr.Unavailable("insert content item", err)
	}
	return item, nil
}

func (s *Store) UpdateContentItemVersioned(ctx context.Context, item content.Item, expectedVersion int) (content.Item, error) {
	item.Version = expectedVersion + 1
	item.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET type = $1, value = $2, version = $3, updated_by = $4, updated_at = $5
		WHERE page = $6 AND key = $7 AND version = $8
	`, item.Type, []byte(item.Value), item.Version, item.UpdatedBy, item.UpdatedAt,
		item.Page, item.Key, expectedVersion)
	if err != nil {
		return content.Item{}, apperr.Unavailable("update content item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return content.Item{}, apperr.Unavailable("update content item", err)
	}
	if affected == 0 {
		return content.Item{}, storage.ErrVersionConflict
	}
	return item, nil
}

// --- BookingStore -----------------------------------------------------------

func (s *Store) GetWorkingHours(ctx context.Context, instructorID string) (booking.WorkingHours, error) {
	var (
		days      []byte
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT days, updated_at FROM working_hours WHERE instructor_id = $1
	`, instructorID).Scan(&days, &updatedAt)
	if err != nil {
		return booking.WorkingHours{}, wrapRead("get working hours", err)
	}

	hours := booking.WorkingHours{InstructorID: instructorID, UpdatedAt: updatedAt}
	if err := json.Unmarshal(days, &hours.Days); err != nil {
		return booking.WorkingHours{}, apperr.Unavailable("decode working hours", err)
	}
	return hours, nil
}

func (s *Store) SetWorkingHours(ctx context.Context, hours booking.WorkingHours) (booking.WorkingHours, error) {
	hours.UpdatedAt = time.Now().UTC()
	days, err := json.Marshal(hours.Days)
	if err != nil {
		return booking.WorkingHours{}, apperr.Unavailable("encode working hours", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO working_hours (instructor_id, days, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (instructor_id) DO UPDATE SET days = $2, updated_at = $3
	`, hours.InstructorID, days, hours.UpdatedAt)
	if err != nil {
		return booking.WorkingHours{}, apperr.Unavailable("set working hours", err)
	}
	return hours, nil
}

func (s *Store) CreateLesson(ctx context.Context, lesson booking.Lesson) (booking.Lesson, error) {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lessons (id, student_id, instructor_id, start_at, end_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, lesson.ID, lesson.StudentID, lesson.InstructorID, lesson.Start, lesson.End, lesson.Status, lesson.CreatedAt, lesson.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return booking.Lesson{}, storage.ErrAlreadyExists
		}
		return booking.Lesson{}, apperr.Unavailable("insert lesson", err)
	}
	return lesson, nil
}

func (s *Store) GetLesson(ctx context.Context, id string) (booking.Lesson, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, instructor_id, start_at, end_at, status, created_at, updated_at
		FROM lessons WHERE id = $1
	`, id)
	lesson, err := scanLesson(row)
	if err != nil {
		return booking.Lesson{}, wrapRead("get lesson", err)
	}
	return lesson, nil
}

func (s *Store) UpdateLesson(ctx context.Context, lesson booking.Lesson) (booking.Lesson, error) {
	lesson.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE lessons SET student_id = $1, instructor_id = $2, start_at = $3, end_at = $4, status = $5, updated_at = $6
		WHERE id = $7
	`, lesson.StudentID, lesson.InstructorID, lesson.Start, lesson.End, lesson.Status, lesson.UpdatedAt, lesson.ID)
	if err != nil {
		return booking.Lesson{}, apperr.Unavailable("update lesson", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return booking.Lesson{}, storage.ErrNotFound
	}
	return lesson, nil
}

func (s *Store) ListLessons(ctx context.Context, instructorID string, from, to time.Time) ([]booking.Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, instructor_id, start_at, end_at, status, created_at, updated_at
		FROM lessons
		WHERE instructor_id = $1 AND start_at < $3 AND end_at > $2
		ORDER BY start_at
	`, instructorID, from, to)
	if err != nil {
		return nil, apperr.Unavailable("list lessons", err)
	}
	return collectLessons(rows)
}

func (s *Store) ListLessonsBetween(ctx context.Context, from, to time.Time) ([]booking.Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, instructor_id, start_at, end_at, status, created_at, updated_at
		FROM lessons
		WHERE status = $1 AND start_at >= $2 AND start_at < $3
		ORDER BY start_at
	`, booking.StatusBooked, from, to)
	if err != nil {
		return nil, apperr.Unavailable("list lessons between", err)
	}
	return collectLessons(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLesson(row rowScanner) (booking.Lesson, error) {
	var lesson booking.Lesson
	err := row.Scan(&lesson.ID, &lesson.StudentID, &lesson.InstructorID,
		&lesson.Start, &lesson.End, &lesson.Status, &lesson.CreatedAt, &lesson.UpdatedAt)
	return lesson, err
}

func collectLessons(rows *sql.Rows) ([]booking.Lesson, error) {
	defer rows.Close()

	var lessons []booking.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, apperr.Unavailable("scan lesson", err)
		}
		lessons = append(lessons, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("iterate lessons", err)
	}
	return lessons, nil
}

// --- ReferralStore ----------------------------------------------------------

func (s *Store) CreateReferralCode(ctx context.Context, code referral.Code) (referral.Code, error) {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	code.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO referral_codes (id, code, owner_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, code.ID, code.Code, code.OwnerID, code.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return referral.Code{}, storage.ErrAlreadyExists
		}
		return referral.Code{}, apperr.Unavailable("insert referral code", err)
	}
	return code, nil
}

func (s *Store) GetReferralCode(ctx context.Context, code string) (referral.Code, error) {
	var rec referral.Code
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, owner_id, created_at FROM referral_codes WHERE code = $1
	`, code).Scan(&rec.ID, &rec.Code, &rec.OwnerID, &rec.CreatedAt)
	if err != nil {
		return referral.Code{}, wrapRead("get referral code", err)
	}
	return rec, nil
}

func (s *Store) CreateRedemption(ctx context.Context, red referral.Redemption) (referral.Redemption, error) {
	if red.ID == "" {
		red.ID = uuid.NewString()
	}
	red.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO referral_redemptions (id, code_id, referee_id, credit_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, red.ID, red.CodeID, red.RefereeID, red.CreditMinutes, red.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return referral.Redemption{}, storage.ErrAlreadyExists
		}
		return referral.Redemption{}, apperr.Unavailable("insert redemption", err)
	}
	return red, nil
}

func (s *Store) ListRedemptions(ctx context.Context, codeID string) ([]referral.Redemption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code_id, referee_id, credit_minutes, created_at
		FROM referral_redemptions WHERE code_id = $1 ORDER BY created_at
	`, codeID)
	if err != nil {
		return nil, apperr.Unavailable("list redemptions", err)
	}
	defer rows.Close()

	var reds []referral.Redemption
	for rows.Next() {
		var red referral.Redemption
		if err := rows.Scan(&red.ID, &red.CodeID, &red.RefereeID, &red.CreditMinutes, &red.CreatedAt); err != nil {
			return nil, apperr.Unavailable("scan redemption", err)
		}
		reds = append(reds, red)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("iterate redemptions", err)
	}
	return reds, nil
}

// --- PaymentStore -----------------------------------------------------------

func (s *Store) CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, student_id, lesson_id, amount_cents, currency, status, checkout_id, checkout_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.StudentID, nullable(p.LessonID), p.AmountCents, p.Currency, p.Status, p.CheckoutID, p.CheckoutURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.Payment{}, storage.ErrAlreadyExists
		}
		return payment.Payment{}, apperr.Unavailable("insert payment", err)
	}
	return p, nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	return s.getPayment(ctx, "id", id)
}

func (s *Store) GetPaymentByCheckoutID(ctx context.Context, checkoutID string) (payment.Payment, error) {
	return s.getPayment(ctx, "checkout_id", checkoutID)
}

func (s *Store) getPayment(ctx context.Context, column, value string) (payment.Payment, error) {
	var (
		p        payment.Payment
		lessonID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, lesson_id, amount_cents, currency, status, checkout_id, checkout_url, created_at, updated_at
		FROM payments WHERE `+column+` = $1
	`, value).Scan(&p.ID, &p.StudentID, &lessonID, &p.AmountCents, &p.Currency, &p.Status, &p.CheckoutID, &p.CheckoutURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return payment.Payment{}, wrapRead("get payment", err)
	}
	p.LessonID = lessonID.String
	return p, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, checkout_url = $2, updated_at = $3 WHERE id = $4
	`, p.Status, p.CheckoutURL, p.UpdatedAt, p.ID)
	if err != nil {
		return payment.Payment{}, apperr.Unavailable("update payment", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return payment.Payment{}, storage.ErrNotFound
	}
	return p, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
