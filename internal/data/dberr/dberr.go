package dberr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	pkgerrors "github.com/clinvault/clinvault-backend/internal/pkg/errors"
)

// Classify maps driver-level failures onto the package sentinels so
// callers branch with errors.Is instead of matching message strings.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, errors.Join(pkgerrors.ErrNotFound, err))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", op, errors.Join(pkgerrors.ErrConflict, err))
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", op, errors.Join(pkgerrors.ErrInvalidArgument, err))
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "duplicate key") || strings.Contains(msg, "already exists") {
		return fmt.Errorf("%s: %w", op, errors.Join(pkgerrors.ErrConflict, err))
	}

	return fmt.Errorf("%s: %w", op, err)
}
