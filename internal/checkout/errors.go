package checkout

// ValidationError reports input the checkout cannot proceed with. It maps to
// a client error at the HTTP surface.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var (
	// ErrEmptyOrder is returned when an order without lines is purchased.
	ErrEmptyOrder = &ValidationError{Reason: "order has no items"}
	// ErrDiscountWithoutAmount is returned when a discount has neither
	// percent_off nor amount_off.
	ErrDiscountWithoutAmount = &ValidationError{Reason: "discount has neither percent_off nor amount_off"}
)
