package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	apperrors "kennel-notifications/internal/common/errors"
	"kennel-notifications/internal/models"
)

// BookingReader reads owner and pet details from the booking subsystem's
// tables. It never writes.
type BookingReader struct {
	db *sql.DB
}

func NewBookingReader(db *sql.DB) *BookingReader {
	return &BookingReader{db: db}
}

func (r *BookingReader) GetBookingContext(ctx context.Context, bookingID string) (*models.BookingContext, error) {
	query := `
		SELECT b.id, b.tenant_id,
			COALESCE(o.first_name, ''), COALESCE(o.last_name, ''),
			COALESCE(o.phone, ''), COALESCE(o.email, ''),
			COALESCE(p.name, ''),
			COALESCE(to_char(b.check_in_date, 'YYYY-MM-DD'), ''),
			COALESCE(to_char(b.check_out_date, 'YYYY-MM-DD'), ''),
			COALESCE(t.name, '')
		FROM bookings b
		JOIN owners o ON o.id = b.owner_id
		LEFT JOIN pets p ON p.id = b.pet_id
		LEFT JOIN tenants t ON t.id = b.tenant_id
		WHERE b.id = $1`

	var bc models.BookingContext
	err := r.db.QueryRowContext(ctx, query, bookingID).Scan(
		&bc.BookingID, &bc.TenantID,
		&bc.OwnerFirstName, &bc.OwnerLastName,
		&bc.OwnerPhone, &bc.OwnerEmail,
		&bc.PetName,
		&bc.CheckInDate, &bc.CheckOutDate,
		&bc.KennelName,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewBookingNotFoundError(bookingID)
	}
	if err != nil {
		return nil, wrapError("get_booking_context", err)
	}
	return &bc, nil
}
