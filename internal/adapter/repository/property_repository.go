package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

type propertyRepository struct {
	db *gorm.DB
}

func NewPropertyRepository(db *gorm.DB) domainRepo.PropertyRepository {
	return &propertyRepository{db: db}
}

func (r *propertyRepository) GetByID(ctx context.Context, id string) (*model.Property, error) {
	var property model.Property

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&property).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get property %s: %w", id, err)
	}

	return &property, nil
}
