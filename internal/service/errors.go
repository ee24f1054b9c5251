package service

import (
	"errors"
	"fmt"

	"skillup/internal/repo"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrBadGateway   = errors.New("bad gateway")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

// storeErr classifies a repo error for callers of the engines.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	case errors.Is(err, repo.ErrUsernameTaken):
		return fmt.Errorf("%w: %s: %w", ErrConflict, op, err)
	case errors.Is(err, repo.ErrContention):
		return fmt.Errorf("%w: %s: %w", ErrConflict, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
