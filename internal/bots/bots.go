// Package bots manages the bot_id <-> token credential mapping. The
// mapping is bijective and immutable after creation: GetOrCreate
// either finds the existing row for a token or inserts exactly one new
// row, and callers never mutate a row afterwards.
package bots

import (
	"context"
	"database/sql"
	"fmt"
)

// Bot is one upstream credential paired with its stable small-integer
// identity.
type Bot struct {
	ID    int16
	Token string
}

// Store is the bots repository.
type Store struct {
	DB *sql.DB
}

// GetOrCreate returns the Bot for token, inserting a new row the first
// time a token is observed. The bot_id is the only identity used
// internally from this point on.
func (s *Store) GetOrCreate(ctx context.Context, token string) (Bot, error) {
	var b Bot
	err := s.DB.QueryRowContext(ctx,
		`SELECT bot_id, bot_token FROM bots WHERE bot_token = ?`, token,
	).Scan(&b.ID, &b.Token)
	if err == nil {
		return b, nil
	}
	if err != sql.ErrNoRows {
		return Bot{}, fmt.Errorf("bots: lookup %q: %w", token, err)
	}

	res, err := s.DB.ExecContext(ctx, `INSERT INTO bots (bot_token) VALUES (?)`, token)
	if err != nil {
		// Another process may have raced us to create the same
		// token; re-read rather than fail.
		var b2 Bot
		if err2 := s.DB.QueryRowContext(ctx,
			`SELECT bot_id, bot_token FROM bots WHERE bot_token = ?`, token,
		).Scan(&b2.ID, &b2.Token); err2 == nil {
			return b2, nil
		}
		return Bot{}, fmt.Errorf("bots: create %q: %w", token, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Bot{}, fmt.Errorf("bots: last insert id: %w", err)
	}
	return Bot{ID: int16(id), Token: token}, nil
}

// Token resolves a bot_id to its credential.
func (s *Store) Token(ctx context.Context, botID int16) (string, error) {
	var token string
	err := s.DB.QueryRowContext(ctx, `SELECT bot_token FROM bots WHERE bot_id = ?`, botID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("bots: no such bot_id %d", botID)
	}
	if err != nil {
		return "", fmt.Errorf("bots: token lookup %d: %w", botID, err)
	}
	return token, nil
}
