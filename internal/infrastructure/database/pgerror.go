package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"threadline/internal/utils/platformerrors"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateSerialization       = "40001"
	sqlStateDeadlock            = "40P01"
)

// SQLState returns the Postgres error code carried by err, if any.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	return SQLState(err) == sqlStateUniqueViolation || errors.Is(err, gorm.ErrDuplicatedKey)
}

// MapError turns a gorm/pgx error into a repository PlatformError. Missing rows become NOT_FOUND,
// unique violations CONFLICT, everything else DATABASE_ERROR with the sqlstate in the context.
func MapError(ctx context.Context, err error, message string) error {
	if err == nil {
		return nil
	}
	if platformerrors.GetPlatformError(err) != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, message)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeTimeout, message, err, "")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, message, err, "")
	}

	state := SQLState(err)
	fields := map[string]any{}
	if state != "" {
		fields["sqlstate"] = state
	}
	errorType := platformerrors.ErrorTypeDatabaseError
	switch {
	case IsUniqueViolation(err), state == sqlStateSerialization, state == sqlStateDeadlock:
		errorType = platformerrors.ErrorTypeConflict
	case state == sqlStateForeignKeyViolation:
		errorType = platformerrors.ErrorTypeNotFound
	}
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerRepository, errorType, message, err, "", fields)
}
