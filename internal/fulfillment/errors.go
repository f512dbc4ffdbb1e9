package fulfillment

import "github.com/pkg/errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrSlipNotFound       = errors.New("slip not found")
	ErrAlreadySent        = errors.New("order already sent to this stage")
	ErrSectionNotRequired = errors.New("section is not required by the order")
	ErrPathConflict       = errors.New("section already sent down another path")
	ErrInvalidStatus      = errors.New("invalid status value")
	ErrNoOrders           = errors.New("no order ids given")
	ErrKeyReused          = errors.New("idempotency key already used for another order")
)
