// Package store holds the Postgres repositories. Credential and card fields
// are encrypted per field before they reach the database.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/example/railbot/internal/crypto"
	"github.com/example/railbot/internal/db"
	"github.com/example/railbot/internal/internaltypes"
	"github.com/example/railbot/internal/rail"
)

type User struct {
	ID        int64
	DiscordID string
	HasSRT    bool
	HasKTX    bool
	HasCard   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) HasCredentials(p rail.Provider) bool {
	switch p {
	case rail.SRT:
		return u.HasSRT
	case rail.KTX:
		return u.HasKTX
	}
	return false
}

type Users struct {
	db  *db.DB
	enc *crypto.FieldEncryptor
}

func NewUsers(d *db.DB, enc *crypto.FieldEncryptor) *Users { return &Users{db: d, enc: enc} }

// credentialColumns names the encrypted login columns of a provider. The
// names never come from user input.
func credentialColumns(p rail.Provider) (idCol, pwCol string, err error) {
	switch p {
	case rail.SRT:
		return "srt_id", "srt_pw", nil
	case rail.KTX:
		return "ktx_id", "ktx_pw", nil
	}
	return "", "", fmt.Errorf("%w: %s", rail.ErrUnknownProvider, p)
}

const userColumns = `id, discord_id,
	srt_id_enc IS NOT NULL, ktx_id_enc IS NOT NULL, card_number_enc IS NOT NULL,
	created_at, updated_at`

func scanUser(row db.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.DiscordID, &u.HasSRT, &u.HasKTX, &u.HasCard, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *Users) Get(ctx context.Context, discordID string) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE discord_id=$1`, discordID))
	if err != nil {
		return User{}, db.WrapNotFound(err)
	}
	return u, nil
}

// Ensure returns the user, creating an empty profile on first use.
func (r *Users) Ensure(ctx context.Context, discordID string) (User, error) {
	if err := r.db.Exec(ctx, `INSERT INTO users(discord_id) VALUES ($1) ON CONFLICT (discord_id) DO NOTHING`, discordID); err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return r.Get(ctx, discordID)
}

func (r *Users) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Delete removes the profile together with its sessions and favorites.
func (r *Users) Delete(ctx context.Context, discordID string) (bool, error) {
	n, err := r.db.ExecCount(ctx, `DELETE FROM users WHERE discord_id=$1`, discordID)
	return n > 0, err
}

func (r *Users) SetCredentials(ctx context.Context, discordID string, p rail.Provider, user, pass string) error {
	idCol, pwCol, err := credentialColumns(p)
	if err != nil {
		return err
	}
	if _, err := r.Ensure(ctx, discordID); err != nil {
		return err
	}
	idEnc, idNonce, err := r.enc.Encrypt(user)
	if err != nil {
		return err
	}
	pwEnc, pwNonce, err := r.enc.Encrypt(pass)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE users SET %[1]s_enc=$2, %[1]s_nonce=$3, %[2]s_enc=$4, %[2]s_nonce=$5, updated_at=now() WHERE discord_id=$1`, idCol, pwCol)
	return r.db.Exec(ctx, q, discordID, idEnc, idNonce, pwEnc, pwNonce)
}

// Credentials decrypts the stored provider login. A missing login is
// internaltypes.ErrNoCredentials; a tag mismatch is crypto.ErrAuthentication.
func (r *Users) Credentials(ctx context.Context, discordID string, p rail.Provider) (string, string, error) {
	idCol, pwCol, err := credentialColumns(p)
	if err != nil {
		return "", "", err
	}
	var idEnc, idNonce, pwEnc, pwNonce []byte
	q := fmt.Sprintf(`SELECT %[1]s_enc, %[1]s_nonce, %[2]s_enc, %[2]s_nonce FROM users WHERE discord_id=$1`, idCol, pwCol)
	if err := r.db.QueryRow(ctx, q, discordID).Scan(&idEnc, &idNonce, &pwEnc, &pwNonce); err != nil {
		if db.IsNotFound(err) {
			return "", "", internaltypes.ErrNoCredentials
		}
		return "", "", err
	}
	user, err := r.enc.Decrypt(idEnc, idNonce)
	if err != nil {
		return "", "", fmt.Errorf("decrypt %s id: %w", p, err)
	}
	pass, err := r.enc.Decrypt(pwEnc, pwNonce)
	if err != nil {
		return "", "", fmt.Errorf("decrypt %s password: %w", p, err)
	}
	if user == "" || pass == "" {
		return "", "", internaltypes.ErrNoCredentials
	}
	return user, pass, nil
}

func (r *Users) SetCard(ctx context.Context, discordID string, c rail.Card) error {
	if _, err := r.Ensure(ctx, discordID); err != nil {
		return err
	}
	args := []any{discordID}
	for _, v := range []string{c.Number, c.Password, c.Birthday, c.Expire} {
		blob, nonce, err := r.enc.Encrypt(v)
		if err != nil {
			return err
		}
		args = append(args, blob, nonce)
	}
	return r.db.Exec(ctx, `
UPDATE users SET
	card_number_enc=$2, card_number_nonce=$3,
	card_password_enc=$4, card_password_nonce=$5,
	card_birthday_enc=$6, card_birthday_nonce=$7,
	card_expire_enc=$8, card_expire_nonce=$9,
	updated_at=now()
WHERE discord_id=$1`, args...)
}

// Card returns the stored payment card, or internaltypes.ErrNoCard.
func (r *Users) Card(ctx context.Context, discordID string) (rail.Card, error) {
	var blobs [8][]byte
	err := r.db.QueryRow(ctx, `
SELECT card_number_enc, card_number_nonce, card_password_enc, card_password_nonce,
	card_birthday_enc, card_birthday_nonce, card_expire_enc, card_expire_nonce
FROM users WHERE discord_id=$1`, discordID).
		Scan(&blobs[0], &blobs[1], &blobs[2], &blobs[3], &blobs[4], &blobs[5], &blobs[6], &blobs[7])
	if err != nil {
		if db.IsNotFound(err) {
			return rail.Card{}, internaltypes.ErrNoCard
		}
		return rail.Card{}, err
	}
	var fields [4]string
	for i := range fields {
		v, err := r.enc.Decrypt(blobs[2*i], blobs[2*i+1])
		if err != nil {
			return rail.Card{}, fmt.Errorf("decrypt card: %w", err)
		}
		fields[i] = v
	}
	if fields[0] == "" {
		return rail.Card{}, internaltypes.ErrNoCard
	}
	return rail.Card{Number: fields[0], Password: fields[1], Birthday: fields[2], Expire: fields[3]}, nil
}
