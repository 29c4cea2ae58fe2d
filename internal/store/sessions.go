package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/db"
	"github.com/example/railbot/internal/rail"
)

// SessionRecord is the stored form of a booking session.
type SessionRecord struct {
	ID                int64
	UserID            int64
	DiscordID         string
	ChannelID         string
	Provider          rail.Provider
	Leg               booking.Leg
	Departure         string
	Arrival           string
	Date              string
	Times             []string
	Passengers        booking.PassengerInfo
	Seat              rail.SeatPolicy
	SelectedTrains    []int
	AutoPay           bool
	Status            booking.Status
	Attempts          int
	ReservationNumber string
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
}

type Sessions struct{ db *db.DB }

func NewSessions(d *db.DB) *Sessions { return &Sessions{db: d} }

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func parseInts(s string) []int {
	var out []int
	for _, p := range splitCSV(s) {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

const sessionColumns = `s.id, s.user_id, u.discord_id, s.channel_id, s.provider, s.leg,
	s.departure, s.arrival, s.travel_date, s.travel_times, s.adults, s.children, s.seniors,
	s.seat_policy, s.selected_trains, s.auto_pay, s.status, s.attempt_count,
	COALESCE(s.reservation_number, ''), s.started_at, s.completed_at, s.created_at`

const sessionFrom = ` FROM booking_sessions s JOIN users u ON u.id = s.user_id`

func scanSession(row db.Row) (SessionRecord, error) {
	var (
		rec                 SessionRecord
		provider, leg, seat string
		status              string
		times, selected     string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.DiscordID, &rec.ChannelID, &provider, &leg,
		&rec.Departure, &rec.Arrival, &rec.Date, &times,
		&rec.Passengers.Adults, &rec.Passengers.Children, &rec.Passengers.Seniors,
		&seat, &selected, &rec.AutoPay, &status, &rec.Attempts,
		&rec.ReservationNumber, &rec.StartedAt, &rec.CompletedAt, &rec.CreatedAt)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.Provider = rail.Provider(provider)
	rec.Leg = booking.Leg(leg)
	rec.Seat = rail.SeatPolicy(seat)
	rec.Status = booking.Status(status)
	rec.Times = splitCSV(times)
	rec.SelectedTrains = parseInts(selected)
	return rec, nil
}

func (r *Sessions) list(ctx context.Context, where string, args ...any) ([]SessionRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sessionColumns+sessionFrom+` WHERE `+where+` ORDER BY s.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Create inserts a new session row in SETUP and returns its id.
func (r *Sessions) Create(ctx context.Context, userID int64, channelID string, p rail.Provider, leg booking.Leg) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO booking_sessions(user_id, channel_id, provider, leg, status)
VALUES ($1,$2,$3,$4,'setup')
RETURNING id`, userID, channelID, string(p), string(leg)).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Sessions) Get(ctx context.Context, id int64) (SessionRecord, error) {
	rec, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+sessionFrom+` WHERE s.id=$1`, id))
	if err != nil {
		return SessionRecord{}, db.WrapNotFound(err)
	}
	return rec, nil
}

const activeStatuses = `('setup','searching','reserved')`

func (r *Sessions) Active(ctx context.Context) ([]SessionRecord, error) {
	return r.list(ctx, `s.status IN `+activeStatuses)
}

func (r *Sessions) ActiveByUser(ctx context.Context, discordID string) ([]SessionRecord, error) {
	return r.list(ctx, `u.discord_id=$1 AND s.status IN `+activeStatuses, discordID)
}

// ByChannel returns the active sessions started from a booking channel.
func (r *Sessions) ByChannel(ctx context.Context, channelID string) ([]SessionRecord, error) {
	return r.list(ctx, `s.channel_id=$1 AND s.status IN `+activeStatuses, channelID)
}

// SetStatus records a status change, stamping started_at when searching
// begins and completed_at on the first terminal status.
func (r *Sessions) SetStatus(ctx context.Context, id int64, st booking.Status) error {
	return r.db.Exec(ctx, `
UPDATE booking_sessions SET
	status=$2,
	started_at = CASE WHEN $3 THEN COALESCE(started_at, now()) ELSE started_at END,
	completed_at = CASE WHEN $4 THEN COALESCE(completed_at, now()) ELSE completed_at END,
	updated_at=now()
WHERE id=$1`, id, string(st), st == booking.StatusSearching, st.Terminal())
}

func (r *Sessions) IncrementAttempt(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `UPDATE booking_sessions SET attempt_count=attempt_count+1, updated_at=now() WHERE id=$1 RETURNING attempt_count`, id).Scan(&n)
	return n, db.WrapNotFound(err)
}

// Update applies a validated partial update. An empty update is a no-op.
func (r *Sessions) Update(ctx context.Context, id int64, u booking.SessionUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	set, args := updateClause(u)
	if set == "" {
		return nil
	}
	n, err := r.db.ExecCount(ctx, `UPDATE booking_sessions SET `+set+`, updated_at=now() WHERE id=$1`, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// updateClause renders the SET list for u. Placeholders start at $2; $1 is
// the session id.
func updateClause(u booking.SessionUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)+1))
	}
	if u.Departure != nil {
		add("departure", *u.Departure)
	}
	if u.Arrival != nil {
		add("arrival", *u.Arrival)
	}
	if u.Date != nil {
		add("travel_date", *u.Date)
	}
	if u.Times != nil {
		add("travel_times", strings.Join(u.Times, ","))
	}
	if u.Passengers != nil {
		add("adults", u.Passengers.Adults)
		add("children", u.Passengers.Children)
		add("seniors", u.Passengers.Seniors)
	}
	if u.Seat != nil {
		add("seat_policy", string(*u.Seat))
	}
	if u.SelectedTrains != nil {
		add("selected_trains", joinInts(u.SelectedTrains))
	}
	if u.AutoPay != nil {
		add("auto_pay", *u.AutoPay)
	}
	if u.ReservationNumber != nil {
		add("reservation_number", *u.ReservationNumber)
	}
	return strings.Join(sets, ", "), args
}

// RecoverOrphans marks sessions left in SETUP or SEARCHING by a previous
// process as ERROR. Nothing can resume them once their conversation is gone.
func (r *Sessions) RecoverOrphans(ctx context.Context) (int64, error) {
	return r.db.ExecCount(ctx, `
UPDATE booking_sessions
SET status='error', completed_at=COALESCE(completed_at, now()), updated_at=now()
WHERE status IN ('setup','searching')`)
}

// CancelByChannel marks the channel's unfinished sessions CANCELLED.
func (r *Sessions) CancelByChannel(ctx context.Context, channelID string) (int64, error) {
	return r.db.ExecCount(ctx, `
UPDATE booking_sessions
SET status='cancelled', completed_at=COALESCE(completed_at, now()), updated_at=now()
WHERE channel_id=$1 AND status IN ('setup','searching')`, channelID)
}
