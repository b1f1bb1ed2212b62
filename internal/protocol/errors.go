package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrOfferNotFound = "E_OFFER_NOT_FOUND"
	ErrUnknownItem   = "E_UNKNOWN_ITEM"
	ErrNoQuote       = "E_NO_QUOTE"
	ErrStackTooSmall = "E_STACK_TOO_SMALL"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrOfferNotFound:   {},
	ErrUnknownItem:     {},
	ErrNoQuote:         {},
	ErrStackTooSmall:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
