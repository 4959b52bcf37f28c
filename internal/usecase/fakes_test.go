package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/provider"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

// store is an in-memory stand-in for the database. Every conditional update runs
// under one mutex, which gives the same single-row atomicity as the SQL UPDATE.
type store struct {
	mu            sync.Mutex
	bookings      map[string]*model.Booking
	payments      map[string]*model.Payment
	properties    map[string]*model.Property
	commissions   map[string]*model.CommissionTransaction
	notifications []*model.Notification
	webhooks      map[string]*model.StripeWebhookEvent
}

func newStore() *store {
	return &store{
		bookings:    map[string]*model.Booking{},
		payments:    map[string]*model.Payment{},
		properties:  map[string]*model.Property{},
		commissions: map[string]*model.CommissionTransaction{},
		webhooks:    map[string]*model.StripeWebhookEvent{},
	}
}

func (s *store) booking(id string) model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.bookings[id]
}

func (s *store) payment(id string) model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.payments[id]
}

func (s *store) commission(paymentID string) *model.CommissionTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.commissions[paymentID]; ok {
		c := *tx
		return &c
	}
	return nil
}

func (s *store) notificationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

// matches compares a column value with an expected value; slices mean "any of".
func matches(actual, expected interface{}) bool {
	if list, ok := expected.([]interface{}); ok {
		for _, e := range list {
			if matches(actual, e) {
				return true
			}
		}
		return false
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func str(v interface{}) string {
	switch t := v.(type) {
	case *string:
		if t == nil {
			return ""
		}
		return *t
	default:
		return fmt.Sprint(v)
	}
}

func optStr(v interface{}) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case *string:
		return t
	default:
		s := fmt.Sprint(v)
		return &s
	}
}

func optTime(v interface{}) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	return nil
}

func bookingColumn(b *model.Booking, column string) interface{} {
	switch column {
	case "status":
		return b.Status
	case "auto_release_scheduled":
		return b.AutoReleaseScheduled
	}
	panic("unsupported booking column " + column)
}

func applyBooking(b *model.Booking, fields domainRepo.Fields) {
	for column, v := range fields {
		switch column {
		case "status":
			b.Status = model.BookingStatus(str(v))
		case "auto_release_scheduled":
			b.AutoReleaseScheduled = v.(bool)
		case "guest_confirmed_completion":
			b.GuestConfirmedCompletion = v.(bool)
		case "completed_at":
			b.CompletedAt = optTime(v)
		case "escrow_release_eligible_at":
			b.EscrowReleaseEligibleAt = optTime(v)
		case "payment_id":
			b.PaymentID = optStr(v)
		default:
			panic("unsupported booking field " + column)
		}
	}
}

func paymentColumn(p *model.Payment, column string) interface{} {
	switch column {
	case "status":
		return p.Status
	case "escrow_status":
		return p.EscrowStatus
	}
	panic("unsupported payment column " + column)
}

func applyPayment(p *model.Payment, fields domainRepo.Fields) {
	for column, v := range fields {
		switch column {
		case "status":
			p.Status = model.PaymentStatus(str(v))
		case "escrow_status":
			p.EscrowStatus = model.EscrowStatus(str(v))
		case "escrow_released_at":
			p.EscrowReleasedAt = optTime(v)
		case "escrow_release_reason":
			p.EscrowReleaseReason = optStr(v)
		case "provider_session_id":
			p.ProviderSessionID = optStr(v)
		case "provider_payment_intent_id":
			p.ProviderPaymentIntentID = optStr(v)
		case "provider_transfer_id":
			p.ProviderTransferID = optStr(v)
		case "provider_refund_id":
			p.ProviderRefundID = optStr(v)
		default:
			panic("unsupported payment field " + column)
		}
	}
	p.UpdatedAt = time.Now()
}

func applyCommission(c *model.CommissionTransaction, fields domainRepo.Fields) {
	for column, v := range fields {
		switch column {
		case "status":
			c.Status = model.CommissionStatus(str(v))
		case "transfer_reference":
			c.TransferReference = optStr(v)
		case "released_at":
			c.ReleasedAt = optTime(v)
		case "commission_amount":
			c.CommissionAmount = v.(int64)
		case "host_payout_amount":
			c.HostPayoutAmount = v.(int64)
		default:
			panic("unsupported commission field " + column)
		}
	}
}

type fakeBookingRepo struct {
	s *store
	// failUpdate, when set, is consulted before every conditional update.
	failUpdate func(fields domainRepo.Fields) error
}

func (r *fakeBookingRepo) GetByID(_ context.Context, id string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (r *fakeBookingRepo) UpdateWhere(_ context.Context, id string, expected, fields domainRepo.Fields) (bool, error) {
	if r.failUpdate != nil {
		if err := r.failUpdate(fields); err != nil {
			return false, err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return false, nil
	}
	for column, want := range expected {
		if !matches(bookingColumn(b, column), want) {
			return false, nil
		}
	}
	applyBooking(b, fields)
	return true, nil
}

func (r *fakeBookingRepo) ClaimAutoRelease(ctx context.Context, id string) (bool, error) {
	return r.UpdateWhere(ctx, id,
		domainRepo.Fields{"auto_release_scheduled": false, "status": model.BookingStatusPaymentEscrowed},
		domainRepo.Fields{"auto_release_scheduled": true})
}

func (r *fakeBookingRepo) ResetAutoReleaseClaim(ctx context.Context, id string) (bool, error) {
	return r.UpdateWhere(ctx, id,
		domainRepo.Fields{"auto_release_scheduled": true},
		domainRepo.Fields{"auto_release_scheduled": false})
}

func (r *fakeBookingRepo) FindEligibleForAutoRelease(_ context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Booking
	for _, b := range r.s.bookings {
		if b.Status != model.BookingStatusPaymentEscrowed || b.AutoReleaseScheduled {
			continue
		}
		if b.EscrowReleaseEligibleAt == nil || b.EscrowReleaseEligibleAt.After(now) {
			continue
		}
		c := *b
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakePaymentRepo struct {
	s          *store
	failUpdate func(fields domainRepo.Fields) error
}

func (r *fakePaymentRepo) Create(_ context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	c := *p
	r.s.payments[p.ID] = &c
	return nil
}

func (r *fakePaymentRepo) GetByID(_ context.Context, id string) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *fakePaymentRepo) GetBySessionID(_ context.Context, sessionID string) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.ProviderSessionID != nil && *p.ProviderSessionID == sessionID {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) UpdateWhere(_ context.Context, id string, expected, fields domainRepo.Fields) (bool, error) {
	if r.failUpdate != nil {
		if err := r.failUpdate(fields); err != nil {
			return false, err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return false, nil
	}
	for column, want := range expected {
		if !matches(paymentColumn(p, column), want) {
			return false, nil
		}
	}
	applyPayment(p, fields)
	return true, nil
}

func (r *fakePaymentRepo) FindReleasedNeedingRepair(_ context.Context, limit int) ([]*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.s.payments {
		if p.EscrowStatus != model.EscrowStatusReleased {
			continue
		}
		b := r.s.bookings[p.BookingID]
		tx := r.s.commissions[p.ID]
		if (b != nil && b.Status != model.BookingStatusCompleted) ||
			tx == nil || tx.Status != model.CommissionStatusCompleted {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

type fakePropertyRepo struct{ s *store }

func (r *fakePropertyRepo) GetByID(_ context.Context, id string) (*model.Property, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.properties[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

type fakeCommissionRepo struct {
	s          *store
	failUpdate func(fields domainRepo.Fields) error
}

func (r *fakeCommissionRepo) Create(_ context.Context, tx *model.CommissionTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.commissions[tx.PaymentID]; exists {
		return fmt.Errorf("duplicate commission transaction for payment %s", tx.PaymentID)
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	c := *tx
	r.s.commissions[tx.PaymentID] = &c
	return nil
}

func (r *fakeCommissionRepo) GetByPaymentID(_ context.Context, paymentID string) (*model.CommissionTransaction, error) {
	return r.s.commission(paymentID), nil
}

func (r *fakeCommissionRepo) UpdateByPaymentWhere(_ context.Context, paymentID string, expected, fields domainRepo.Fields) (bool, error) {
	if r.failUpdate != nil {
		if err := r.failUpdate(fields); err != nil {
			return false, err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.commissions[paymentID]
	if !ok {
		return false, nil
	}
	for column, want := range expected {
		if column != "status" {
			panic("unsupported commission column " + column)
		}
		if !matches(tx.Status, want) {
			return false, nil
		}
	}
	applyCommission(tx, fields)
	return true, nil
}

type fakeNotificationRepo struct{ s *store }

func (r *fakeNotificationRepo) Insert(_ context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	r.s.notifications = append(r.s.notifications, n)
	return nil
}

type fakeWebhookRepo struct{ s *store }

func (r *fakeWebhookRepo) SaveEvent(_ context.Context, eventID, eventType string, _ json.RawMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.webhooks[eventID]; !ok {
		r.s.webhooks[eventID] = &model.StripeWebhookEvent{
			StripeEventID: eventID,
			EventType:     eventType,
			Status:        model.WebhookStatusPending,
		}
	}
	return nil
}

func (r *fakeWebhookRepo) GetEvent(_ context.Context, eventID string) (*model.StripeWebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.webhooks[eventID]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

func (r *fakeWebhookRepo) setStatus(eventID string, status model.WebhookStatus, cause error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.webhooks[eventID]
	if !ok {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}
	e.Status = status
	if status == model.WebhookStatusProcessing {
		e.ProcessingAttempts++
	}
	if cause != nil {
		msg := cause.Error()
		e.LastError = &msg
	}
	return nil
}

func (r *fakeWebhookRepo) MarkProcessing(_ context.Context, eventID string) error {
	return r.setStatus(eventID, model.WebhookStatusProcessing, nil)
}

func (r *fakeWebhookRepo) MarkProcessed(_ context.Context, eventID string) error {
	return r.setStatus(eventID, model.WebhookStatusCompleted, nil)
}

func (r *fakeWebhookRepo) MarkFailed(_ context.Context, eventID string, cause error) error {
	return r.setStatus(eventID, model.WebhookStatusFailed, cause)
}

func (r *fakeWebhookRepo) GetPendingEvents(_ context.Context, _ int) ([]*model.StripeWebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.StripeWebhookEvent
	for _, e := range r.s.webhooks {
		if e.Status == model.WebhookStatusPending || e.Status == model.WebhookStatusFailed {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now(context.Context) (time.Time, error) { return c.now, nil }

// MockPaymentProvider is a mock implementation of provider.PaymentProvider
type MockPaymentProvider struct {
	mock.Mock
}

func (m *MockPaymentProvider) CreateCheckoutSession(ctx context.Context, req *provider.CheckoutSessionRequest) (*provider.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CheckoutSession), args.Error(1)
}

func (m *MockPaymentProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*provider.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CheckoutSession), args.Error(1)
}

func (m *MockPaymentProvider) CreateTransfer(ctx context.Context, req *provider.TransferRequest) (*provider.Transfer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Transfer), args.Error(1)
}

func (m *MockPaymentProvider) CreateRefund(ctx context.Context, req *provider.RefundRequest) (*provider.Refund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Refund), args.Error(1)
}

func (m *MockPaymentProvider) ConstructWebhookEvent(payload []byte, signature string) (*provider.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.WebhookEvent), args.Error(1)
}

func (m *MockPaymentProvider) GetProviderName() string {
	return string(provider.ProviderTypeStripe)
}

// seed describes one booking/payment/property triple.
type seed struct {
	category      model.PropertyCategory
	bookingStatus model.BookingStatus
	escrowStatus  model.EscrowStatus
	paymentStatus model.PaymentStatus
	kind          model.PaymentKind
	amount        int64
	rate          string
	account       string
	checkOut      time.Time
	eligibleAt    *time.Time
}

type seeded struct {
	bookingID  string
	paymentID  string
	propertyID string
	guestID    string
	hostID     string
}

func defaultSeed() seed {
	return seed{
		category:      model.PropertyCategoryShortStay,
		bookingStatus: model.BookingStatusPaymentEscrowed,
		escrowStatus:  model.EscrowStatusEscrowed,
		paymentStatus: model.PaymentStatusCompleted,
		kind:          model.PaymentKindRent,
		amount:        10000,
		rate:          "0.15",
		account:       "acct_host",
		checkOut:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func (s *store) seed(sd seed) seeded {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := seeded{
		bookingID:  uuid.NewString(),
		paymentID:  uuid.NewString(),
		propertyID: uuid.NewString(),
		guestID:    uuid.NewString(),
		hostID:     uuid.NewString(),
	}

	property := &model.Property{
		ID:       out.propertyID,
		HostID:   out.hostID,
		Title:    "Villa Tipaza",
		Category: sd.category,
	}
	if sd.rate != "" {
		property.CommissionRate = decimal.NewNullDecimal(decimal.RequireFromString(sd.rate))
	}
	if sd.account != "" {
		account := sd.account
		property.HostPayoutAccount = &account
	}
	s.properties[property.ID] = property

	paymentID := out.paymentID
	s.bookings[out.bookingID] = &model.Booking{
		ID:                      out.bookingID,
		PropertyID:              out.propertyID,
		GuestID:                 out.guestID,
		PaymentID:               &paymentID,
		CheckInDate:             datatypes.Date(sd.checkOut.AddDate(0, 0, -3)),
		CheckOutDate:            datatypes.Date(sd.checkOut),
		Status:                  sd.bookingStatus,
		EscrowReleaseEligibleAt: sd.eligibleAt,
	}

	intent := "pi_" + out.paymentID
	session := "cs_" + out.paymentID
	s.payments[out.paymentID] = &model.Payment{
		ID:                      out.paymentID,
		BookingID:               out.bookingID,
		PropertyID:              out.propertyID,
		PayerID:                 out.guestID,
		Amount:                  sd.amount,
		Currency:                "dzd",
		Kind:                    sd.kind,
		Status:                  sd.paymentStatus,
		EscrowStatus:            sd.escrowStatus,
		ProviderSessionID:       &session,
		ProviderPaymentIntentID: &intent,
	}

	s.commissions[out.paymentID] = &model.CommissionTransaction{
		ID:          uuid.NewString(),
		PaymentID:   out.paymentID,
		BookingID:   out.bookingID,
		GrossAmount: sd.amount,
		Status:      model.CommissionStatusPending,
	}

	return out
}

func nullRate(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
