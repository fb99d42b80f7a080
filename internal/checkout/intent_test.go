package checkout

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func sampleIntent(items int) *PendingOrderIntent {
	intent := &PendingOrderIntent{
		Version:          intentVersion,
		UserID:           uuid.New(),
		CartID:           uuid.New(),
		BuyerEmail:       "buyer@example.com",
		Plan:             enums.PaymentPlanAdvance,
		SubtotalCents:    1200,
		DeliveryFeeCents: 0,
		TotalCents:       1200,
		PayNowCents:      600,
		RemainingCents:   600,
		ShippingAddress: types.Address{
			Name:       "Sam Buyer",
			Line1:      "12 Main St",
			City:       "Austin",
			State:      "TX",
			PostalCode: "78701",
			Country:    "US",
		},
	}
	for i := 0; i < items; i++ {
		intent.Items = append(intent.Items, IntentItem{
			ProductID:      uuid.New(),
			ProductName:    strings.Repeat("widget-", 4),
			UnitPriceCents: 600,
			Quantity:       2,
		})
	}
	return intent
}

func TestIntentMetadataRoundTrip(t *testing.T) {
	intent := sampleIntent(2)

	metadata, err := EncodeMetadata(intent)
	require.NoError(t, err)
	require.Equal(t, PurposeOrder, Purpose(metadata))

	decoded, err := DecodeMetadata(metadata)
	require.NoError(t, err)
	require.Equal(t, intent.UserID, decoded.UserID)
	require.Equal(t, intent.CartID, decoded.CartID)
	require.Equal(t, intent.Plan, decoded.Plan)
	require.Equal(t, intent.PayNowCents, decoded.PayNowCents)
	require.Len(t, decoded.Items, 2)
	require.Equal(t, intent.ShippingAddress.PostalCode, decoded.ShippingAddress.PostalCode)
}

func TestIntentMetadataChunksLargePayloads(t *testing.T) {
	intent := sampleIntent(25)

	metadata, err := EncodeMetadata(intent)
	require.NoError(t, err)
	require.Greater(t, len(metadata), 3, "large intent should span multiple chunks")
	for key, value := range metadata {
		require.LessOrEqualf(t, len(value), 500, "metadata value %s exceeds provider cap", key)
	}

	decoded, err := DecodeMetadata(metadata)
	require.NoError(t, err)
	require.Len(t, decoded.Items, 25)
}

func TestDecodeMetadataRejectsBrokenPayloads(t *testing.T) {
	_, err := DecodeMetadata(map[string]string{})
	require.Error(t, err)

	_, err = DecodeMetadata(map[string]string{metadataKeyIntentParts: "two"})
	require.Error(t, err)

	_, err = DecodeMetadata(map[string]string{
		metadataKeyIntentParts: "2",
		"order_intent_0":       `{"version":1`,
	})
	require.Error(t, err)

	unbalanced := sampleIntent(1)
	unbalanced.PayNowCents = 700
	metadata, err := EncodeMetadata(unbalanced)
	require.NoError(t, err)
	_, err = DecodeMetadata(metadata)
	require.Error(t, err)
}

func TestRemainingBalanceOrderID(t *testing.T) {
	orderID := uuid.New()
	metadata := map[string]string{
		metadataKeyPurpose: PurposeRemainingBalance,
		metadataKeyOrderID: orderID.String(),
	}
	require.Equal(t, PurposeRemainingBalance, Purpose(metadata))

	parsed, err := RemainingBalanceOrderID(metadata)
	require.NoError(t, err)
	require.Equal(t, orderID, parsed)

	_, err = RemainingBalanceOrderID(map[string]string{metadataKeyPurpose: PurposeRemainingBalance})
	require.Error(t, err)
}
