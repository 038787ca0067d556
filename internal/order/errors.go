package order

import (
	"errors"

	"kcd-ticketing/internal/order/db"
)

var (
	// ErrNotFound is returned when an order id does not resolve.
	ErrNotFound = db.ErrOrderNotFound

	// ErrInvalidState is returned when a transition is not legal from the
	// order's current status.
	ErrInvalidState = errors.New("transition not allowed from current order status")

	// ErrNotYetExpired is returned by Expire for live orders whose
	// reservation window has not lapsed.
	ErrNotYetExpired = errors.New("order has not expired yet")

	// ErrUnknownTier is returned when a selected tier slug does not resolve.
	ErrUnknownTier = errors.New("unknown ticket tier")

	// ErrNoTicketsSelected is returned when an order request selects nothing.
	ErrNoTicketsSelected = errors.New("no tickets selected")

	// ErrMissingAttendee is returned when the attendee contact fields are
	// incomplete.
	ErrMissingAttendee = errors.New("attendee name and email are required")
)
