package usecase_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/usecase"
)

type harness struct {
	store       *store
	bookings    *fakeBookingRepo
	payments    *fakePaymentRepo
	properties  *fakePropertyRepo
	commissions *fakeCommissionRepo
	webhooks    *fakeWebhookRepo
	provider    *MockPaymentProvider
	notifier    *usecase.Notifier
	settings    usecase.Settings
	clock       fixedClock
}

func testSettings(t *testing.T) usecase.Settings {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Algiers")
	require.NoError(t, err)

	return usecase.Settings{
		DefaultRate:        decimal.RequireFromString("0.15"),
		CheckoutCutoffHour: 11,
		Location:           loc,
		AutoReleaseDelay:   24 * time.Hour,
		MinChargeAmount:    50,
		DefaultCurrency:    "dzd",
		ClientURL:          "https://holibayt.test",
		SweepBatchSize:     100,
		SweepConcurrency:   4,
	}
}

// newHarness wires fakes with the store clock at now.
func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	s := newStore()
	h := &harness{
		store:       s,
		bookings:    &fakeBookingRepo{s: s},
		payments:    &fakePaymentRepo{s: s},
		properties:  &fakePropertyRepo{s: s},
		commissions: &fakeCommissionRepo{s: s},
		webhooks:    &fakeWebhookRepo{s: s},
		provider:    new(MockPaymentProvider),
		settings:    testSettings(t),
		clock:       fixedClock{now: now},
	}
	h.notifier = usecase.NewNotifier(&fakeNotificationRepo{s: s}, nil, zap.NewNop())
	return h
}

func (h *harness) escrowService() *usecase.EscrowService {
	return usecase.NewEscrowService(h.bookings, h.payments, h.properties, h.commissions,
		h.provider, h.clock, h.notifier, h.settings, zap.NewNop())
}

func (h *harness) scheduler() *usecase.ReleaseScheduler {
	return usecase.NewReleaseScheduler(h.bookings, h.escrowService(), h.clock, h.settings, zap.NewNop())
}

func (h *harness) checkoutService() *usecase.CheckoutService {
	return usecase.NewCheckoutService(h.bookings, h.payments, h.properties, h.commissions,
		h.provider, h.settings, zap.NewNop())
}

func (h *harness) confirmationService() *usecase.ConfirmationService {
	return usecase.NewConfirmationService(h.bookings, h.payments, h.properties, h.commissions,
		h.provider, h.clock, h.notifier, h.settings, zap.NewNop())
}

func (h *harness) reconciler() *usecase.Reconciler {
	return usecase.NewReconciler(h.bookings, h.payments, h.properties, h.commissions, h.settings, zap.NewNop())
}

func (h *harness) webhookService() *usecase.WebhookService {
	return usecase.NewWebhookService(h.provider, h.webhooks, h.confirmationService(), zap.NewNop())
}

// afterCheckout is well past the 11:00 Algiers cutoff of the default seed's check-out date.
var afterCheckout = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
