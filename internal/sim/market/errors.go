package market

import "errors"

var (
	// ErrOfferNotFound signals a routine miss: the offer expired or sold
	// between the caller's read and this call.
	ErrOfferNotFound = errors.New("offer not found")
	// ErrUnknownItem is a data-integrity failure: a referenced template id
	// is missing from the catalog. It is terminal for the single operation
	// that hit it, never for the maintenance cycle.
	ErrUnknownItem = errors.New("unknown item template")
	// ErrNoQuote means a sale commit referenced a draft id with no cached
	// tax quote.
	ErrNoQuote = errors.New("no tax quote for draft")
	// ErrStackTooSmall means a stack removal asked for more units than the
	// offer holds.
	ErrStackTooSmall = errors.New("stack smaller than requested amount")
)
