package service

import (
	"errors"
	"fmt"

	"github.com/sifan077/MiniLink/internal/app/repository"
)

var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrInvalidAlias      = errors.New("invalid custom alias")
	ErrInvalidExpiration = errors.New("invalid expiration")
	ErrAliasTaken        = errors.New("custom alias already taken")
	ErrCodeConflict      = errors.New("short code already exists")
	ErrEmptyBatch        = errors.New("urls must be a non-empty list")
	ErrBatchTooLarge     = errors.New("too many urls in batch")

	// ErrLinkNotFound and ErrLinkExpired are shared with the store so callers
	// can match either layer with errors.Is.
	ErrLinkNotFound = repository.ErrLinkNotFound
	ErrLinkExpired  = repository.ErrLinkExpired

	// ErrStore marks persistence failures; handlers report them as 500.
	ErrStore = errors.New("store error")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
