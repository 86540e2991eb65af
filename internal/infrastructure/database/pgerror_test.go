package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"threadline/internal/utils/platformerrors"
)

func TestMapError(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		err   error
		want  platformerrors.ErrorType
		state string
	}{
		{name: "missing row", err: gorm.ErrRecordNotFound, want: platformerrors.ErrorTypeNotFound},
		{name: "unique violation", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: platformerrors.ErrorTypeConflict, state: "23505"},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, want: platformerrors.ErrorTypeNotFound, state: "23503"},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: platformerrors.ErrorTypeConflict, state: "40001"},
		{name: "other sql error", err: &pgconn.PgError{Code: "42P01"}, want: platformerrors.ErrorTypeDatabaseError, state: "42P01"},
		{name: "deadline", err: context.DeadlineExceeded, want: platformerrors.ErrorTypeTimeout},
		{name: "plain", err: errors.New("boom"), want: platformerrors.ErrorTypeDatabaseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapError(ctx, tt.err, "query failed")
			assert.True(t, platformerrors.IsErrorType(err, tt.want))
			if tt.state != "" {
				assert.Equal(t, tt.state, platformerrors.GetPlatformError(err).Context["sqlstate"])
			}
		})
	}

	assert.NoError(t, MapError(ctx, nil, "nothing"))

	typed := platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "taken", nil, "")
	assert.True(t, platformerrors.IsErrorType(MapError(ctx, typed, "wrapped"), platformerrors.ErrorTypeConflict))
}
