package repository

import (
	"context"

	"gorm.io/gorm"

	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

// updateWhere is a single-statement compare-and-set:
//
//	UPDATE <table> SET <fields> WHERE <key> = ? AND <expected...>
//
// It reports whether a row matched. Slice values in expected become IN lists.
func updateWhere(ctx context.Context, db *gorm.DB, row interface{}, key, value string, expected, fields domainRepo.Fields) (bool, error) {
	query := db.WithContext(ctx).Model(row).Where(key+" = ?", value)
	if len(expected) > 0 {
		query = query.Where(map[string]interface{}(expected))
	}

	result := query.Updates(map[string]interface{}(fields))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
