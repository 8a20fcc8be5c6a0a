package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/meetwindow/meetwindow/libs/db"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/timeslot"
)

// Booking is a confirmed appointment on the owner's calendar. Pending
// requests are never stored; a row exists only once the owner approved.
type Booking struct {
	ID               string
	Name             string
	Email            string
	StartTime        time.Time
	EndTime          time.Time
	TimeZone         string
	Location         string
	CalendarEventURL string
	CreatedAt        time.Time
}

type BookingsRepository struct {
	pool *db.Pool
}

func NewBookingsRepository(pool *db.Pool) *BookingsRepository {
	return &BookingsRepository{pool: pool}
}

func (r *BookingsRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *BookingsRepository) Create(ctx context.Context, tx pgx.Tx, b *Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(name, email, start_time, end_time, time_zone, location, calendar_event_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, b.Name, b.Email, b.StartTime, b.EndTime, b.TimeZone, b.Location, b.CalendarEventURL).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListBookedIntervals returns the spans of confirmed bookings touching the
// window, as a busy-time source for availability resolution.
func (r *BookingsRepository) ListBookedIntervals(ctx context.Context, start, end time.Time) ([]timeslot.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE start_time < $2
			AND end_time > $1
		ORDER BY start_time ASC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intervals := make([]timeslot.Interval, 0)
	for rows.Next() {
		var iv timeslot.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return intervals, nil
}

// IsConflict reports whether err is the exclusion-constraint violation
// raised when two bookings overlap.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
