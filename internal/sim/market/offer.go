package market

// OwnerKind distinguishes fixed traders from synthesized player-style sellers.
type OwnerKind int

const (
	OwnerTrader OwnerKind = iota + 1
	OwnerSynthetic
)

// SellerRef is the tagged owner variant carried by every offer. Trader offers
// carry the trader id; synthetic sellers carry a generated identity and a
// reputation rating.
type SellerRef struct {
	Kind     OwnerKind `json:"kind"`
	ID       string    `json:"id"`
	Nickname string    `json:"nickname,omitempty"`
	Rating   float64   `json:"rating,omitempty"`
}

// Offer is one marketplace listing. items[0] is always the root item; every
// other item's parent chain resolves to it.
type Offer struct {
	ID    string `json:"_id"`
	IntID int64  `json:"intId"`

	User SellerRef `json:"user"`

	// Assortment identity this offer was generated from: a template id, or a
	// preset id when the root is an assembled preset.
	AssortID string `json:"assortId,omitempty"`

	Root  string      `json:"root"`
	Items []OfferItem `json:"items"`

	Requirements []Requirement `json:"requirements"`
	// Total requirement cost in the reference currency, precomputed at
	// generation time.
	RequirementsCost int `json:"requirementsCost"`
	SummaryCost      int `json:"summaryCost"`

	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`

	// The whole stack must be bought in one transaction.
	SellInOnePiece bool `json:"sellInOnePiece"`

	// Hidden from search but not yet purged.
	Locked bool `json:"locked"`

	LoyaltyLevel int `json:"loyaltyLevel,omitempty"`

	// Future partial-sale schedule produced by the sale simulator, consumed
	// as the maintenance cycle advances past each event's timestamp.
	SellResults []SaleEvent `json:"sellResult,omitempty"`
	ItemsSold   int         `json:"itemsSold,omitempty"`
}

// RootItem returns items[0]. Offers are never constructed empty.
func (o *Offer) RootItem() *OfferItem { return &o.Items[0] }

// StackCount is the remaining unit count on the root item.
func (o *Offer) StackCount() int {
	if o.Items[0].Upd == nil {
		return 1
	}
	return o.Items[0].Upd.StackObjectsCount
}

// IsBarter reports whether any requirement is payable in items rather than
// currency.
func (o *Offer) IsBarter() bool {
	for _, r := range o.Requirements {
		if !r.IsCurrency {
			return true
		}
	}
	return false
}

// OfferItem is one item of a listing (root or attached child).
type OfferItem struct {
	ID       string   `json:"_id"`
	Tpl      string   `json:"_tpl"`
	ParentID string   `json:"parentId,omitempty"`
	SlotID   string   `json:"slotId,omitempty"`
	Upd      *ItemUpd `json:"upd,omitempty"`
}

// ItemUpd is the mutable state of an offer item. Special facets are modeled
// as presence-checked members so the tax worth adjustments are applied in a
// fixed, exhaustive order instead of probing loose properties.
type ItemUpd struct {
	StackObjectsCount int `json:"StackObjectsCount"`
	// Pre-merge count kept for display after stack merging.
	OriginalStackObjectsCount int  `json:"OriginalStackObjectsCount,omitempty"`
	UnlimitedCount            bool `json:"UnlimitedCount,omitempty"`

	Dogtag     *DogtagFacet     `json:"Dogtag,omitempty"`
	Key        *KeyFacet        `json:"Key,omitempty"`
	Resource   *ResourceFacet   `json:"Resource,omitempty"`
	SideEffect *SideEffectFacet `json:"SideEffect,omitempty"`
	MedKit     *MedKitFacet     `json:"MedKit,omitempty"`
	FoodDrink  *FoodDrinkFacet  `json:"FoodDrink,omitempty"`
	Repairable *RepairableFacet `json:"Repairable,omitempty"`
}

type DogtagFacet struct {
	Level    int    `json:"Level"`
	Nickname string `json:"Nickname,omitempty"`
	Side     string `json:"Side,omitempty"`
}

type KeyFacet struct {
	NumberOfUsages int `json:"NumberOfUsages"`
}

type ResourceFacet struct {
	Value float64 `json:"Value"`
}

type SideEffectFacet struct {
	Value float64 `json:"Value"`
}

type MedKitFacet struct {
	HpResource float64 `json:"HpResource"`
}

type FoodDrinkFacet struct {
	HpPercent float64 `json:"HpPercent"`
}

type RepairableFacet struct {
	Durability    float64 `json:"Durability"`
	MaxDurability float64 `json:"MaxDurability"`
}

// Requirement is one thing the buyer must pay: a currency amount or a barter
// item count.
type Requirement struct {
	Tpl        string `json:"_tpl"`
	Count      int    `json:"count"`
	IsCurrency bool   `json:"isCurrency"`
}

// SaleEvent schedules a future partial sale of amount units.
type SaleEvent struct {
	Amount   int   `json:"amount"`
	SellTime int64 `json:"sellTime"`
}
