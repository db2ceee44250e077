package store

import (
	"context"
	stderrors "errors"
	"testing"

	apperrors "kennel-notifications/internal/common/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingCols = []string{
	"id", "tenant_id", "first_name", "last_name", "phone", "email",
	"pet_name", "check_in_date", "check_out_date", "kennel_name",
}

func TestBookingReader_GetBookingContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM bookings b\s+JOIN owners o ON o.id = b.owner_id.+WHERE b.id = \$1`).
		WithArgs("booking-1").
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow("booking-1", "tenant-1", "Dana", "Levi", "050-1234567", "dana@example.com",
				"Rex", "2025-06-01", "2025-06-05", "Happy Paws"))

	bc, err := NewBookingReader(db).GetBookingContext(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.Equal(t, "Dana", bc.OwnerFirstName)
	assert.Equal(t, "Rex", bc.PetName)
	assert.Equal(t, "2025-06-05", bc.CheckOutDate)
	assert.Equal(t, "Happy Paws", bc.KennelName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingReader_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM bookings b`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(bookingCols))

	_, err = NewBookingReader(db).GetBookingContext(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrBookingNotFound))
}
