package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	escrowErr "github.com/EdulogyIT/holibayt-backend/internal/domain/errors"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

// Per-booking outcomes of a sweep.
const (
	SweepOutcomeReleased = "released"
	SweepOutcomeFailed   = "failed"
	SweepOutcomeSkipped  = "skipped"
)

// SweepResult is the outcome for one candidate booking.
type SweepResult struct {
	BookingID         string  `json:"booking_id"`
	Outcome           string  `json:"outcome"`
	ErrorKind         string  `json:"error_kind,omitempty"`
	Error             string  `json:"error,omitempty"`
	TransferReference *string `json:"transfer_reference,omitempty"`
	HostPayoutAmount  int64   `json:"host_payout_amount,omitempty"`
}

// SweepSummary reports one run of the release scheduler. Processed counts the
// bookings this run claimed; Skipped counts candidates another run claimed first.
type SweepSummary struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Results   []SweepResult `json:"per_booking_results"`
}

// ReleaseScheduler releases escrow for bookings whose automatic release time has
// passed. Runs may overlap: each booking is claimed with a conditional update on
// its auto_release_scheduled latch before release, so only one run handles it.
type ReleaseScheduler struct {
	bookingRepo domainRepo.BookingRepository
	releaser    Releaser
	clock       domainRepo.Clock
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

func NewReleaseScheduler(
	bookingRepo domainRepo.BookingRepository,
	releaser Releaser,
	clock domainRepo.Clock,
	settings Settings,
	logger *zap.Logger,
) *ReleaseScheduler {
	concurrency := settings.SweepConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReleaseScheduler{
		bookingRepo: bookingRepo,
		releaser:    releaser,
		clock:       clock,
		batchSize:   settings.SweepBatchSize,
		concurrency: concurrency,
		logger:      logger.Named("release_scheduler"),
	}
}

// Sweep runs one pass. A failing booking never stops the others; an error is
// returned only when the candidate list itself could not be read.
func (s *ReleaseScheduler) Sweep(ctx context.Context) (*SweepSummary, error) {
	now, err := s.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store clock: %w", err)
	}

	candidates, err := s.bookingRepo.FindEligibleForAutoRelease(ctx, now, s.batchSize)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Auto-release sweep started",
		zap.Time("now", now),
		zap.Int("candidates", len(candidates)))

	results := make([]SweepResult, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, booking := range candidates {
		i, booking := i, booking
		g.Go(func() error {
			results[i] = s.processBooking(ctx, booking)
			return nil
		})
	}
	_ = g.Wait()

	summary := &SweepSummary{Results: results}
	for _, r := range results {
		switch r.Outcome {
		case SweepOutcomeReleased:
			summary.Processed++
			summary.Succeeded++
		case SweepOutcomeFailed:
			summary.Processed++
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	s.logger.Info("Auto-release sweep finished",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))

	return summary, nil
}

func (s *ReleaseScheduler) processBooking(ctx context.Context, booking *model.Booking) SweepResult {
	logger := s.logger.With(zap.String("booking_id", booking.ID))
	result := SweepResult{BookingID: booking.ID}

	claimed, err := s.bookingRepo.ClaimAutoRelease(ctx, booking.ID)
	if err != nil {
		logger.Error("Failed to claim booking for auto release", zap.Error(err))
		result.Outcome = SweepOutcomeFailed
		result.ErrorKind = string(escrowErr.KindUnknown)
		result.Error = err.Error()
		return result
	}
	if !claimed {
		logger.Debug("Booking claimed by another run")
		result.Outcome = SweepOutcomeSkipped
		return result
	}

	released, err := s.releaser.Release(ctx, ReleaseRequest{
		BookingID: booking.ID,
		Reason:    model.ReleaseReasonAutoRelease,
		Caller:    SystemCaller(),
		claimHeld: true,
	})
	if err == nil {
		result.Outcome = SweepOutcomeReleased
		result.TransferReference = released.TransferReference
		result.HostPayoutAmount = released.HostPayoutAmount
		return result
	}

	result.Outcome = SweepOutcomeFailed
	result.ErrorKind = string(escrowErr.KindOf(err))
	result.Error = err.Error()

	if escrowErr.IsPartial(err) {
		// Money moved; keep the latch so no run retries it before reconciliation.
		logger.Error("Auto release partially applied",
			zap.Bool("reconciliation_required", true),
			zap.Error(err))
		return result
	}

	if _, resetErr := s.bookingRepo.ResetAutoReleaseClaim(ctx, booking.ID); resetErr != nil {
		logger.Error("Failed to reset auto release latch", zap.Error(resetErr))
	}
	logger.Warn("Auto release failed",
		zap.String("error_kind", result.ErrorKind),
		zap.Error(err))

	return result
}
