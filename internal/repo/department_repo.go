// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides lookups over the department directory.
package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/citizenlink/citizenlink-api/internal/domain"
)

// GetDepartmentByCode fetches a department by its stable short code
// (case-insensitive), or ErrNotFound.
func GetDepartmentByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Department, error) {
	var d domain.Department
	err := db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListActiveDepartments returns every active department ordered by code.
func ListActiveDepartments(ctx context.Context, db *gorm.DB) ([]domain.Department, error) {
	var out []domain.Department
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("code asc").
		Find(&out).Error
	return out, err
}

// ListDepartmentsByCodes returns the departments whose codes appear in the
// given list. Missing codes simply do not appear in the result; callers
// validate coverage.
func ListDepartmentsByCodes(ctx context.Context, db *gorm.DB, codes []string) ([]domain.Department, error) {
	if len(codes) == 0 {
		return []domain.Department{}, nil
	}
	upper := make([]string, 0, len(codes))
	for _, c := range codes {
		upper = append(upper, strings.ToUpper(strings.TrimSpace(c)))
	}
	var out []domain.Department
	err := db.WithContext(ctx).
		Where("code IN ?", upper).
		Find(&out).Error
	return out, err
}
