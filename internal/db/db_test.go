package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestWrapNotFound(t *testing.T) {
	if WrapNotFound(nil) != nil {
		t.Error("WrapNotFound(nil) != nil")
	}
	if err := WrapNotFound(pgx.ErrNoRows); !errors.Is(err, ErrNotFound) {
		t.Errorf("WrapNotFound(ErrNoRows) = %v", err)
	}
	other := errors.New("connection refused")
	err := WrapNotFound(other)
	if !errors.Is(err, other) || IsNotFound(err) {
		t.Errorf("WrapNotFound(other) = %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	for _, err := range []error{ErrNotFound, pgx.ErrNoRows, fmt.Errorf("get user: %w", pgx.ErrNoRows)} {
		if !IsNotFound(err) {
			t.Errorf("IsNotFound(%v) = false", err)
		}
	}
	if IsNotFound(nil) {
		t.Error("IsNotFound(nil) = true")
	}
}
