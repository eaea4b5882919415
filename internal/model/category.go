package model

import (
	"strings"
	"time"
)

// CategoryKind tags the Category union.
type CategoryKind string

const (
	CategoryBuiltin CategoryKind = "builtin"
	CategoryCustom  CategoryKind = "custom"
)

// Builtin category tags.
const (
	TagWork     = "work"
	TagPersonal = "personal"
	TagShopping = "shopping"
	TagHealth   = "health"
	TagOther    = "other"
)

var builtinTags = []string{TagWork, TagPersonal, TagShopping, TagHealth, TagOther}

// Category is either a builtin tag or a user-defined name with a color.
type Category struct {
	Kind  CategoryKind `gorm:"size:16"`
	Tag   string       `gorm:"size:32"`
	Name  string
	Color string `gorm:"size:16"`
}

func BuiltinCategory(tag string) Category {
	return Category{Kind: CategoryBuiltin, Tag: tag}
}

func CustomCategoryValue(name, color string) Category {
	return Category{Kind: CategoryCustom, Name: name, Color: color}
}

// BuiltinTags lists the tags shipped with the app.
func BuiltinTags() []string {
	return append([]string(nil), builtinTags...)
}

// IsBuiltinTag reports whether tag names a builtin category (case-insensitive).
func IsBuiltinTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range builtinTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Label is the human-readable name of the category.
func (c Category) Label() string {
	switch c.Kind {
	case CategoryBuiltin:
		return c.Tag
	case CategoryCustom:
		return c.Name
	default:
		return ""
	}
}

// CustomCategory is a user-defined category persisted so it can be reused.
type CustomCategory struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index:idx_user_category_name,unique"`
	Name      string `gorm:"index:idx_user_category_name,unique"`
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
