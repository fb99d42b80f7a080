package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Session metadata keys. The intent JSON is chunked because Stripe caps
// metadata values at 500 characters.
const (
	metadataKeyPurpose     = "purpose"
	metadataKeyOrderID     = "order_id"
	metadataKeyIntentParts = "order_intent_parts"
	metadataKeyIntentChunk = "order_intent_%d"

	metadataChunkSize = 480
)

// Session purposes carried in metadata.
const (
	PurposeOrder            = "order"
	PurposeRemainingBalance = "remaining_balance"
)

const intentVersion = 1

// IntentItem is one frozen product line inside a pending order intent.
type IntentItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	UnitPriceCents int       `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
	ImageURL       *string   `json:"image_url,omitempty"`
}

// PendingOrderIntent is the full prospective order serialized into checkout
// session metadata at issuance. Reconciliation rebuilds the order from this
// alone; nothing is written to the database until payment settles.
type PendingOrderIntent struct {
	Version          int               `json:"version"`
	UserID           uuid.UUID         `json:"user_id"`
	CartID           uuid.UUID         `json:"cart_id"`
	BuyerEmail       string            `json:"buyer_email"`
	Plan             enums.PaymentPlan `json:"plan"`
	Items            []IntentItem      `json:"items"`
	SubtotalCents    int               `json:"subtotal_cents"`
	DeliveryFeeCents int               `json:"delivery_fee_cents"`
	TotalCents       int               `json:"total_cents"`
	PayNowCents      int               `json:"pay_now_cents"`
	RemainingCents   int               `json:"remaining_cents"`
	ShippingAddress  types.Address     `json:"shipping_address"`
}

// Validate checks the intent can materialize an order.
func (i *PendingOrderIntent) Validate() error {
	if i.Version != intentVersion {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported intent version %d", i.Version))
	}
	if i.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "intent missing user id")
	}
	if len(i.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "intent has no items")
	}
	if !i.Plan.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "intent has invalid payment plan")
	}
	if i.PayNowCents+i.RemainingCents != i.TotalCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "intent amounts do not balance")
	}
	return nil
}

// EncodeMetadata serializes the intent into a metadata map, chunked to fit
// Stripe's per-value length cap.
func EncodeMetadata(intent *PendingOrderIntent) (map[string]string, error) {
	raw, err := json.Marshal(intent)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode order intent")
	}

	metadata := map[string]string{metadataKeyPurpose: PurposeOrder}
	parts := 0
	for offset := 0; offset < len(raw); offset += metadataChunkSize {
		end := offset + metadataChunkSize
		if end > len(raw) {
			end = len(raw)
		}
		metadata[fmt.Sprintf(metadataKeyIntentChunk, parts)] = string(raw[offset:end])
		parts++
	}
	metadata[metadataKeyIntentParts] = strconv.Itoa(parts)
	return metadata, nil
}

// DecodeMetadata reassembles and validates an intent from session metadata.
func DecodeMetadata(metadata map[string]string) (*PendingOrderIntent, error) {
	countRaw, ok := metadata[metadataKeyIntentParts]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session metadata has no order intent")
	}
	parts, err := strconv.Atoi(countRaw)
	if err != nil || parts <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session metadata has a malformed intent part count")
	}

	var raw []byte
	for i := 0; i < parts; i++ {
		chunk, ok := metadata[fmt.Sprintf(metadataKeyIntentChunk, i)]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("session metadata is missing intent chunk %d", i))
		}
		raw = append(raw, chunk...)
	}

	var intent PendingOrderIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode order intent")
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return &intent, nil
}

// Purpose reads the session purpose from metadata, defaulting to an order
// session for payloads issued before the key existed.
func Purpose(metadata map[string]string) string {
	if purpose, ok := metadata[metadataKeyPurpose]; ok && purpose != "" {
		return purpose
	}
	return PurposeOrder
}

// RemainingBalanceOrderID extracts the order id from a remaining-balance
// session's metadata.
func RemainingBalanceOrderID(metadata map[string]string) (uuid.UUID, error) {
	raw, ok := metadata[metadataKeyOrderID]
	if !ok || raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "remaining-balance session has no order id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse remaining-balance order id")
	}
	return id, nil
}
