package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/EdulogyIT/holibayt-backend/internal/adapter/repository"
	"github.com/EdulogyIT/holibayt-backend/internal/config"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Booking      domainRepo.BookingRepository
	Payment      domainRepo.PaymentRepository
	Property     domainRepo.PropertyRepository
	Commission   domainRepo.CommissionTransactionRepository
	Notification domainRepo.NotificationRepository
	Webhook      domainRepo.WebhookRepository
	Role         domainRepo.RoleRepository
	Clock        domainRepo.Clock
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, supabase config.SupabaseConfig, logger *zap.Logger) *Repositories {
	return &Repositories{
		Booking:      repository.NewBookingRepository(db, logger),
		Payment:      repository.NewPaymentRepository(db, logger),
		Property:     repository.NewPropertyRepository(db),
		Commission:   repository.NewCommissionTransactionRepository(db, logger),
		Notification: repository.NewNotificationRepository(db),
		Webhook:      repository.NewWebhookRepository(db, logger),
		Role:         repository.NewSupabaseRoleRepository(supabase.ProjectURL, supabase.APIKey, logger),
		Clock:        repository.NewDBClock(db),
	}
}
