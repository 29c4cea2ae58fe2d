package store

import (
	"context"
	"fmt"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/db"
)

const MaxFavorites = 6

type Favorite struct {
	ID        int64
	UserID    int64
	Departure string
	Arrival   string
	CreatedAt time.Time
}

func (f Favorite) Label() string { return f.Departure + " → " + f.Arrival }

type Favorites struct{ db *db.DB }

func NewFavorites(d *db.DB) *Favorites { return &Favorites{db: d} }

// Add stores a route. Identical stations, a duplicate route and a full list
// are validation errors.
func (r *Favorites) Add(ctx context.Context, userID int64, dep, arr string) (Favorite, error) {
	if dep == arr {
		return Favorite{}, &booking.ValidationError{Field: "arrival", Msg: "departure and arrival are the same station"}
	}
	var f Favorite
	err := r.db.QueryRow(ctx, `
INSERT INTO favorite_routes(user_id, departure, arrival)
SELECT $1::bigint, $2::text, $3::text
WHERE (SELECT count(*) FROM favorite_routes WHERE user_id=$1) < $4
ON CONFLICT (user_id, departure, arrival) DO NOTHING
RETURNING id, user_id, departure, arrival, created_at`, userID, dep, arr, MaxFavorites).
		Scan(&f.ID, &f.UserID, &f.Departure, &f.Arrival, &f.CreatedAt)
	if err == nil {
		return f, nil
	}
	if !db.IsNotFound(err) {
		return Favorite{}, err
	}

	n, cerr := r.Count(ctx, userID)
	if cerr != nil {
		return Favorite{}, cerr
	}
	if n >= MaxFavorites {
		return Favorite{}, &booking.ValidationError{Field: "favorites", Msg: fmt.Sprintf("you can store at most %d favorite routes", MaxFavorites)}
	}
	return Favorite{}, &booking.ValidationError{Field: "favorites", Msg: fmt.Sprintf("%s → %s is already a favorite", dep, arr)}
}

func (r *Favorites) List(ctx context.Context, userID int64) ([]Favorite, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, user_id, departure, arrival, created_at
FROM favorite_routes
WHERE user_id=$1
ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.Departure, &f.Arrival, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Favorites) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM favorite_routes WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}

// Remove deletes one of the user's routes. It reports false when the id
// does not belong to the user.
func (r *Favorites) Remove(ctx context.Context, userID, id int64) (bool, error) {
	n, err := r.db.ExecCount(ctx, `DELETE FROM favorite_routes WHERE id=$1 AND user_id=$2`, id, userID)
	return n > 0, err
}
