package tickets

import "errors"

var (
	ErrNotFound        = errors.New("ticket not found")
	ErrForbidden       = errors.New("ticket belongs to another vendor")
	ErrDuplicateTicket = errors.New("a ticket for this client already exists")
	ErrNoVendor        = errors.New("vendor identity required")
)
