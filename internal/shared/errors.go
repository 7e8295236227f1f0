package shared

import "errors"

// Error taxonomy shared by the engine services. Every failure raised by a
// service maps onto exactly one of these sentinels so callers can branch
// without inspecting internal state.
var (
	// ErrValidation indicates bad input shape or values.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity is absent or out of company scope.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a movement would drive on-hand negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrShortage indicates a reservation was attempted against a report with shortage.
	ErrShortage = errors.New("raw material shortage")
	// ErrOverAllocation indicates an allocation would exceed a line quantity.
	ErrOverAllocation = errors.New("allocation exceeds line quantity")
	// ErrSameZone indicates a transfer with identical source and destination.
	ErrSameZone = errors.New("source and destination zone must differ")
	// ErrConfiguration indicates a required typed zone is missing for the company.
	ErrConfiguration = errors.New("required zone configuration missing")
)
