package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/provider"
)

const testWebhookSecret = "whsec_test"

func newTestProvider(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewStripeProvider(Config{
		SecretKey:         "sk_test_123",
		WebhookSecret:     testWebhookSecret,
		APIURL:            srv.URL,
		MaxNetworkRetries: stripego.Int64(0),
	}, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestCreateCheckoutSession_FeeSplit(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())

		assert.Equal(t, "checkout-pay_1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "20000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "dzd", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "3000", r.PostForm.Get("payment_intent_data[application_fee_amount]"))
		assert.Equal(t, "acct_host", r.PostForm.Get("payment_intent_data[transfer_data][destination]"))
		assert.Equal(t, "booking-1", r.PostForm.Get("metadata[booking_id]"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":             "cs_test_1",
			"object":         "checkout.session",
			"url":            "https://checkout.stripe.com/c/pay/cs_test_1",
			"status":         "open",
			"payment_status": "unpaid",
			"amount_total":   20000,
			"currency":       "dzd",
			"metadata":       map[string]string{"booking_id": "booking-1"},
		})
	})

	fee := int64(3000)
	session, err := p.CreateCheckoutSession(context.Background(), &provider.CheckoutSessionRequest{
		Amount:               20000,
		Currency:             "dzd",
		ProductName:          "Booking fee",
		SuccessURL:           "https://holibayt.test/success",
		CancelURL:            "https://holibayt.test/cancel",
		ClientReferenceID:    "pay_1",
		IdempotencyKey:       "checkout-pay_1",
		ApplicationFeeAmount: &fee,
		DestinationAccount:   "acct_host",
		Metadata:             map[string]string{"booking_id": "booking-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", session.URL)
	assert.False(t, session.IsPaid())
	assert.Equal(t, int64(20000), session.AmountTotal)
}

func TestCreateCheckoutSession_EscrowHasNoTransferData(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Empty(t, r.PostForm.Get("payment_intent_data[application_fee_amount]"))
		assert.Empty(t, r.PostForm.Get("payment_intent_data[transfer_data][destination]"))
		assert.Equal(t, "booking-2", r.PostForm.Get("payment_intent_data[transfer_group]"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":     "cs_test_2",
			"object": "checkout.session",
			"url":    "https://checkout.stripe.com/c/pay/cs_test_2",
		})
	})

	session, err := p.CreateCheckoutSession(context.Background(), &provider.CheckoutSessionRequest{
		Amount:            10000,
		Currency:          "dzd",
		ProductName:       "Stay",
		ClientReferenceID: "pay_2",
		TransferGroup:     "booking-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_2", session.ID)
}

func TestRetrieveCheckoutSession(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/checkout/sessions/cs_paid", r.URL.Path)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":             "cs_paid",
			"object":         "checkout.session",
			"status":         "complete",
			"payment_status": "paid",
			"payment_intent": "pi_123",
			"amount_total":   10000,
			"currency":       "dzd",
		})
	})

	session, err := p.RetrieveCheckoutSession(context.Background(), "cs_paid")
	require.NoError(t, err)
	assert.True(t, session.IsPaid())
	assert.Equal(t, "pi_123", session.PaymentIntentID)
}

func TestRetrieveCheckoutSession_NotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]string{
				"type":    "invalid_request_error",
				"code":    "resource_missing",
				"message": "No such checkout.session: 'cs_missing'",
			},
		})
	})

	_, err := p.RetrieveCheckoutSession(context.Background(), "cs_missing")
	require.Error(t, err)

	var providerErr *provider.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, provider.ErrCodeNotFound, providerErr.Code)
	assert.Equal(t, http.StatusNotFound, providerErr.HTTPStatus)
}

func TestCreateTransfer(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transfers", r.URL.Path)
		require.NoError(t, r.ParseForm())

		assert.Equal(t, "escrow-release-booking-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "8500", r.PostForm.Get("amount"))
		assert.Equal(t, "acct_host", r.PostForm.Get("destination"))
		assert.Equal(t, "booking-1", r.PostForm.Get("transfer_group"))
		assert.Equal(t, "booking-1", r.PostForm.Get("metadata[booking_id]"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":       "tr_123",
			"object":   "transfer",
			"amount":   8500,
			"currency": "dzd",
		})
	})

	transfer, err := p.CreateTransfer(context.Background(), &provider.TransferRequest{
		Amount:             8500,
		Currency:           "dzd",
		DestinationAccount: "acct_host",
		Description:        "Escrow release for booking booking-1",
		TransferGroup:      "booking-1",
		IdempotencyKey:     "escrow-release-booking-1",
		Metadata:           map[string]string{"booking_id": "booking-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_123", transfer.ID)
	assert.Equal(t, int64(8500), transfer.Amount)
}

func TestCreateTransfer_Declined(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]string{
				"type":    "invalid_request_error",
				"code":    "balance_insufficient",
				"message": "Insufficient funds",
			},
		})
	})

	_, err := p.CreateTransfer(context.Background(), &provider.TransferRequest{
		Amount:             8500,
		Currency:           "dzd",
		DestinationAccount: "acct_host",
		IdempotencyKey:     "escrow-release-booking-1",
	})
	require.Error(t, err)

	var providerErr *provider.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, provider.ErrCodeRequestFailed, providerErr.Code)
	assert.Contains(t, providerErr.Details, "balance_insufficient")
}

func TestCreateRefund(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "escrow-refund-booking-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "pi_123", r.PostForm.Get("payment_intent"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":     "re_123",
			"object": "refund",
			"status": "succeeded",
		})
	})

	refund, err := p.CreateRefund(context.Background(), &provider.RefundRequest{
		PaymentIntentID: "pi_123",
		IdempotencyKey:  "escrow-refund-booking-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_123", refund.ID)
	assert.Equal(t, "succeeded", refund.Status)
}

func signedEvent(t *testing.T, event map[string]interface{}, secret string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestConstructWebhookEvent(t *testing.T) {
	p := NewStripeProvider(Config{SecretKey: "sk_test_123", WebhookSecret: testWebhookSecret}, zap.NewNop())

	payload, header := signedEvent(t, map[string]interface{}{
		"id":          "evt_1",
		"object":      "event",
		"type":        provider.EventCheckoutSessionCompleted,
		"api_version": "2020-08-27",
		"created":     time.Now().Unix(),
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             "cs_paid",
				"object":         "checkout.session",
				"payment_status": "paid",
				"payment_intent": "pi_123",
				"amount_total":   10000,
				"currency":       "dzd",
				"metadata":       map[string]string{"booking_id": "booking-1"},
			},
		},
	}, testWebhookSecret)

	event, err := p.ConstructWebhookEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.EventID)
	assert.Equal(t, provider.EventCheckoutSessionCompleted, event.EventType)
	require.NotNil(t, event.Session)
	assert.Equal(t, "cs_paid", event.Session.ID)
	assert.Equal(t, "pi_123", event.Session.PaymentIntentID)
	assert.True(t, event.Session.IsPaid())
	assert.Equal(t, "booking-1", event.Session.Metadata["booking_id"])
}

func TestConstructWebhookEvent_BadSignature(t *testing.T) {
	p := NewStripeProvider(Config{SecretKey: "sk_test_123", WebhookSecret: testWebhookSecret}, zap.NewNop())

	payload, header := signedEvent(t, map[string]interface{}{
		"id":     "evt_1",
		"object": "event",
		"type":   provider.EventCheckoutSessionCompleted,
	}, "whsec_other")

	_, err := p.ConstructWebhookEvent(payload, header)
	require.Error(t, err)

	var providerErr *provider.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, provider.ErrCodeInvalidSignature, providerErr.Code)
}

func TestConstructWebhookEvent_OtherEventTypeHasNoSession(t *testing.T) {
	p := NewStripeProvider(Config{SecretKey: "sk_test_123", WebhookSecret: testWebhookSecret}, zap.NewNop())

	payload, header := signedEvent(t, map[string]interface{}{
		"id":      "evt_2",
		"object":  "event",
		"type":    "charge.refunded",
		"created": time.Now().Unix(),
		"data":    map[string]interface{}{"object": map[string]interface{}{"id": "ch_1", "object": "charge"}},
	}, testWebhookSecret)

	event, err := p.ConstructWebhookEvent(payload, header)
	require.NoError(t, err)
	assert.Nil(t, event.Session)
	assert.Equal(t, "charge.refunded", event.EventType)
}
