package reschedule

import "errors"

var (
	// ErrClientNotFound means no client record matched the caller's phone.
	ErrClientNotFound = errors.New("no client found with that phone number")

	// ErrServiceNotFound means the requested appointment service could not
	// be located on the caller's book or any linked profile's book.
	ErrServiceNotFound = errors.New("could not find appointment with that ID for this caller")

	// ErrNoUpcomingAppointments means the caller and their linked profiles
	// have nothing on the book to reschedule.
	ErrNoUpcomingAppointments = errors.New("no upcoming appointments found")
)
