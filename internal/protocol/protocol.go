package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello       = "HELLO"
	TypeWelcome     = "WELCOME"
	TypeSearch      = "SEARCH"
	TypeGetOffer    = "GET_OFFER"
	TypeGetPrices   = "GET_PRICES"
	TypeQuoteTax    = "QUOTE_TAX"
	TypeCommitSale  = "COMMIT_SALE"
	TypeHideOffer   = "HIDE_OFFER"
	TypeRemoveStack = "REMOVE_STACK"
	TypeResult      = "RESULT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
