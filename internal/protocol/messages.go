package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type               string         `json:"type"`
	ProtocolVersion    string         `json:"protocol_version"`
	SessionID          string         `json:"session_id"`
	RunIntervalSeconds int            `json:"run_interval_seconds"`
	Catalogs           CatalogDigests `json:"catalogs"`
}

// CatalogDigests pins the content universe the session was opened against, so
// clients can detect drift and resync their local caches.
type CatalogDigests struct {
	ItemsDigest    string `json:"items_digest"`
	PresetsDigest  string `json:"presets_digest"`
	HandbookDigest string `json:"handbook_digest"`
	PricesDigest   string `json:"prices_digest"`
	LocalesDigest  string `json:"locales_digest"`
	TradersDigest  string `json:"traders_digest"`
	EventsDigest   string `json:"events_digest"`
}

// FilterPayload mirrors the engine's search filter on the wire.
type FilterPayload struct {
	HandbookCategory string   `json:"handbook_category,omitempty"`
	LinkedSearchTpl  string   `json:"linked_search_tpl,omitempty"`
	NeededSearchTpl  string   `json:"needed_search_tpl,omitempty"`
	BuildItemTpls    []string `json:"build_item_tpls,omitempty"`
	Text             string   `json:"text,omitempty"`
}

type SortPayload struct {
	// One of: id, barter, rating, name, price, expiry.
	Key  string `json:"key,omitempty"`
	Desc bool   `json:"desc,omitempty"`
}

// SEARCH (client -> server)
type SearchMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	ReqID           string        `json:"req_id"`
	Filter          FilterPayload `json:"filter"`
	Sort            SortPayload   `json:"sort"`
	Page            int           `json:"page,omitempty"`
	Limit           int           `json:"limit,omitempty"`
}

// GET_OFFER (client -> server)
type GetOfferMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OfferID         string `json:"offer_id"`
}

// GET_PRICES (client -> server)
type GetPricesMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
}

// QUOTE_TAX (client -> server). Items carries the draft's flat item list in
// the offer-item wire shape; the engine decodes it.
type QuoteTaxMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`

	DraftID            string          `json:"draft_id"`
	Items              json.RawMessage `json:"items"`
	RequirementsValue  float64         `json:"requirements_value"`
	OfferItemCount     int             `json:"offer_item_count"`
	SellInOnePiece     bool            `json:"sell_in_one_piece,omitempty"`
	SellerBonusPercent float64         `json:"seller_bonus_percent,omitempty"`
}

// COMMIT_SALE (client -> server). DraftID references the QUOTE_TAX draft this
// buy was quoted under; the engine spends the quote with the sale.
type CommitSaleMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OfferID         string `json:"offer_id"`
	Amount          int    `json:"amount,omitempty"`
	BuyerID         string `json:"buyer_id,omitempty"`
	DraftID         string `json:"draft_id,omitempty"`
}

// HIDE_OFFER (client -> server)
type HideOfferMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OfferID         string `json:"offer_id"`
}

// REMOVE_STACK (client -> server)
type RemoveStackMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OfferID         string `json:"offer_id"`
	Amount          int    `json:"amount"`
}

// RESULT (server -> client): the uniform answer to every request message.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Data            any    `json:"data,omitempty"`
}

func OK(reqID string, data any) ResultMsg {
	return ResultMsg{
		Type:            TypeResult,
		ProtocolVersion: Version,
		ReqID:           reqID,
		OK:              true,
		Data:            data,
	}
}

func Fail(reqID, code, message string) ResultMsg {
	return ResultMsg{
		Type:            TypeResult,
		ProtocolVersion: Version,
		ReqID:           reqID,
		Code:            code,
		Message:         message,
	}
}
