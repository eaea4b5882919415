package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mytaskpro/internal/model"
)

// CategoryRepository manages user-defined categories.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// GetOrCreate returns the user's category called name, creating it with color if missing.
// An existing category keeps its color unless color is non-empty.
func (r *CategoryRepository) GetOrCreate(ctx context.Context, userID uint, name, color string) (*model.CustomCategory, error) {
	if name == "" {
		return nil, nil
	}

	var category model.CustomCategory
	db := r.db.WithContext(ctx)
	err := db.Where(map[string]interface{}{"user_id": userID, "name": name}).
		Attrs(model.CustomCategory{Color: color}).
		FirstOrCreate(&category).Error
	if err != nil {
		return nil, fmt.Errorf("get or create category: %w", err)
	}
	if color != "" && color != category.Color {
		if err := db.Model(&category).Update("color", color).Error; err != nil {
			return nil, fmt.Errorf("update category: %w", err)
		}
		category.Color = color
	}
	return &category, nil
}

func (r *CategoryRepository) ListByUser(ctx context.Context, userID uint) ([]model.CustomCategory, error) {
	var categories []model.CustomCategory
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}
