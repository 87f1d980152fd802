package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/bazarhub/auth-service/internal/repository"
)

func TestOTPRepository_MarkUsed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewOTPRepository(mock)

	usedAt := time.Now().UTC()
	mock.ExpectExec(`UPDATE auth\.otp_codes SET used = \$1, used_at = \$2 WHERE id = \$3 AND used = \$4`).
		WithArgs(true, usedAt, "otp-1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.MarkUsed(context.Background(), "otp-1", usedAt); err != nil {
		t.Fatalf("MarkUsed returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOTPRepository_MarkUsed_AlreadyRedeemed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewOTPRepository(mock)

	usedAt := time.Now().UTC()
	mock.ExpectExec(`UPDATE auth\.otp_codes SET used = \$1, used_at = \$2 WHERE id = \$3 AND used = \$4`).
		WithArgs(true, usedAt, "otp-1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.MarkUsed(context.Background(), "otp-1", usedAt); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second redemption must not match a row, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
