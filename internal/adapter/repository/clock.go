package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

type dbClock struct {
	db *gorm.DB
}

// NewDBClock returns a clock reading the database server time.
func NewDBClock(db *gorm.DB) domainRepo.Clock {
	return &dbClock{db: db}
}

func (c *dbClock) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := c.db.WithContext(ctx).Raw("SELECT NOW()").Row().Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database time: %w", err)
	}
	return now.UTC(), nil
}
