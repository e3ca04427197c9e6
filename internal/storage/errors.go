package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"mobilechat/internal/apperrors"
)

// translateError maps driver errors onto the apperrors kinds. Context
// cancellation passes through untouched.
func translateError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.Wrap(apperrors.ErrNotFound, err, what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.Wrap(apperrors.ErrAlreadyExists, err, what)
	case apperrors.Kind(err) != nil:
		return err
	default:
		return apperrors.Wrap(apperrors.ErrUnavailable, err, what)
	}
}
