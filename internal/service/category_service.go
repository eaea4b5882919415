package service

import (
	"context"
	"strings"

	"mytaskpro/internal/model"
	"mytaskpro/internal/repository"
)

// CategoryService resolves category names to builtin tags or custom categories.
type CategoryService struct {
	repo *repository.CategoryRepository
}

func NewCategoryService(repo *repository.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

// Resolve maps name to a builtin tag when it is one, otherwise to the user's
// custom category of that name (created on first use). Empty names are "other".
func (s *CategoryService) Resolve(ctx context.Context, userID uint, name, color string) (model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.BuiltinCategory(model.TagOther), nil
	}
	if model.IsBuiltinTag(name) {
		return model.BuiltinCategory(strings.ToLower(name)), nil
	}

	custom, err := s.repo.GetOrCreate(ctx, userID, name, color)
	if err != nil {
		return model.Category{}, err
	}
	return model.CustomCategoryValue(custom.Name, custom.Color), nil
}

// List returns the builtin tags followed by the user's custom category names.
func (s *CategoryService) List(ctx context.Context, userID uint) ([]string, error) {
	custom, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := model.BuiltinTags()
	for _, c := range custom {
		names = append(names, c.Name)
	}
	return names, nil
}
