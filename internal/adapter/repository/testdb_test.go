package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Property{},
		&model.Booking{},
		&model.Payment{},
		&model.CommissionTransaction{},
		&model.Notification{},
		&model.StripeWebhookEvent{},
	))
	return db
}

type fixture struct {
	property *model.Property
	booking  *model.Booking
	payment  *model.Payment
}

func seedEscrowed(t *testing.T, db *gorm.DB, eligibleAt time.Time) fixture {
	t.Helper()

	account := "acct_host"
	property := &model.Property{
		ID:                uuid.NewString(),
		HostID:            uuid.NewString(),
		Category:          model.PropertyCategoryShortStay,
		CommissionRate:    decimal.NewNullDecimal(decimal.RequireFromString("0.15")),
		HostPayoutAccount: &account,
	}
	require.NoError(t, db.Create(property).Error)

	paymentID := uuid.NewString()
	booking := &model.Booking{
		PropertyID:              property.ID,
		GuestID:                 uuid.NewString(),
		PaymentID:               &paymentID,
		CheckInDate:             datatypes.Date(eligibleAt.AddDate(0, 0, -4)),
		CheckOutDate:            datatypes.Date(eligibleAt.AddDate(0, 0, -1)),
		Status:                  model.BookingStatusPaymentEscrowed,
		EscrowReleaseEligibleAt: &eligibleAt,
	}
	require.NoError(t, db.Create(booking).Error)

	payment := &model.Payment{
		ID:           paymentID,
		BookingID:    booking.ID,
		PropertyID:   property.ID,
		PayerID:      booking.GuestID,
		Amount:       10000,
		Currency:     "dzd",
		Kind:         model.PaymentKindRent,
		Status:       model.PaymentStatusCompleted,
		EscrowStatus: model.EscrowStatusEscrowed,

		DestinationAccount: &account,
		CommissionRate:     decimal.NewNullDecimal(decimal.RequireFromString("0.15")),
	}
	require.NoError(t, db.Create(payment).Error)

	require.NoError(t, db.Create(&model.CommissionTransaction{
		PaymentID:        payment.ID,
		BookingID:        booking.ID,
		GrossAmount:      10000,
		CommissionAmount: 1500,
		HostPayoutAmount: 8500,
		CommissionRate:   decimal.RequireFromString("0.15"),
		Status:           model.CommissionStatusPending,
	}).Error)

	return fixture{property: property, booking: booking, payment: payment}
}
