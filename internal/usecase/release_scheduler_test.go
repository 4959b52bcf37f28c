package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	escrowErr "github.com/EdulogyIT/holibayt-backend/internal/domain/errors"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/provider"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
	"github.com/EdulogyIT/holibayt-backend/internal/usecase"
)

func eligibleSeed() seed {
	sd := defaultSeed()
	eligible := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	sd.eligibleAt = &eligible
	return sd
}

func TestSweep_ReleasesEligibleBookings(t *testing.T) {
	h := newHarness(t, afterCheckout)
	first := h.store.seed(eligibleSeed())
	second := h.store.seed(eligibleSeed())

	notYet := eligibleSeed()
	later := afterCheckout.Add(time.Hour)
	notYet.eligibleAt = &later
	waiting := h.store.seed(notYet)

	expectTransfer(h, "tr_auto")

	summary, err := h.scheduler().Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, summary.Results, 2)

	for _, ids := range []seeded{first, second} {
		payment := h.store.payment(ids.paymentID)
		assert.Equal(t, model.EscrowStatusReleased, payment.EscrowStatus)
		require.NotNil(t, payment.EscrowReleaseReason)
		assert.Equal(t, model.ReleaseReasonAutoRelease, *payment.EscrowReleaseReason)
		assert.Equal(t, model.BookingStatusCompleted, h.store.booking(ids.bookingID).Status)
	}
	assert.Equal(t, model.EscrowStatusEscrowed, h.store.payment(waiting.paymentID).EscrowStatus)
}

func TestSweep_ConcurrentRunsTransferOncePerBooking(t *testing.T) {
	h := newHarness(t, afterCheckout)
	const bookings = 10
	for i := 0; i < bookings; i++ {
		h.store.seed(eligibleSeed())
	}
	expectTransfer(h, "tr_auto")

	const runs = 5
	summaries := make([]*usecase.SweepSummary, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := h.scheduler().Sweep(context.Background())
			assert.NoError(t, err)
			summaries[i] = summary
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, s := range summaries {
		require.NotNil(t, s)
		succeeded += s.Succeeded
	}
	assert.Equal(t, bookings, succeeded)
	h.provider.AssertNumberOfCalls(t, "CreateTransfer", bookings)
}

func TestSweep_SkipsAlreadyClaimedBooking(t *testing.T) {
	h := newHarness(t, afterCheckout)
	ids := h.store.seed(eligibleSeed())

	// The candidate query ran before another worker set the latch.
	claimed, err := h.bookings.ClaimAutoRelease(context.Background(), ids.bookingID)
	require.NoError(t, err)
	require.True(t, claimed)

	scheduler := usecase.NewReleaseScheduler(&staleCandidates{fakeBookingRepo: h.bookings, ids: []string{ids.bookingID}},
		h.escrowService(), h.clock, h.settings, zap.NewNop())

	summary, err := scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, usecase.SweepOutcomeSkipped, summary.Results[0].Outcome)
	h.provider.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
}

func TestSweep_TransferFailureResetsLatch(t *testing.T) {
	h := newHarness(t, afterCheckout)
	ids := h.store.seed(eligibleSeed())
	h.provider.On("CreateTransfer", mock.Anything, mock.Anything).
		Return(nil, &provider.ProviderError{Code: provider.ErrCodeRequestFailed, Message: "processor unavailable"}).Once()

	summary, err := h.scheduler().Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, string(escrowErr.KindTransferFailed), summary.Results[0].ErrorKind)

	booking := h.store.booking(ids.bookingID)
	assert.False(t, booking.AutoReleaseScheduled)
	assert.Equal(t, model.BookingStatusPaymentEscrowed, booking.Status)

	// The next run picks it up again.
	expectTransfer(h, "tr_retry")
	summary, err = h.scheduler().Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, model.EscrowStatusReleased, h.store.payment(ids.paymentID).EscrowStatus)
}

func TestSweep_PartialFailureKeepsLatch(t *testing.T) {
	h := newHarness(t, afterCheckout)
	ids := h.store.seed(eligibleSeed())
	expectTransfer(h, "tr_auto")
	h.payments.failUpdate = func(fields domainRepo.Fields) error {
		return errors.New("connection reset")
	}

	summary, err := h.scheduler().Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, h.store.booking(ids.bookingID).AutoReleaseScheduled)

	summary, err = h.scheduler().Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	h.provider.AssertNumberOfCalls(t, "CreateTransfer", 1)
}

// staleCandidates returns fixed candidates regardless of the latch.
type staleCandidates struct {
	*fakeBookingRepo
	ids []string
}

func (r *staleCandidates) FindEligibleForAutoRelease(ctx context.Context, _ time.Time, _ int) ([]*model.Booking, error) {
	var out []*model.Booking
	for _, id := range r.ids {
		b, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// failingClaims cannot take the latch.
type failingClaims struct {
	*fakeBookingRepo
}

func (r *failingClaims) ClaimAutoRelease(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestSweep_ClaimErrorCountsAsFailure(t *testing.T) {
	h := newHarness(t, afterCheckout)
	h.store.seed(eligibleSeed())

	scheduler := usecase.NewReleaseScheduler(&failingClaims{fakeBookingRepo: h.bookings},
		h.escrowService(), h.clock, h.settings, zap.NewNop())

	summary, err := scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, usecase.SweepOutcomeFailed, summary.Results[0].Outcome)
	assert.Equal(t, string(escrowErr.KindUnknown), summary.Results[0].ErrorKind)
	h.provider.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
}
