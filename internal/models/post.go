// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is the optional topic tag on a post. The set is fixed; the
// empty value means the post carries no category.
type Category string

const (
	CategoryNone      Category = ""
	CategoryGeneral   Category = "genel"
	CategoryVegetable Category = "sebze"
	CategoryFruit     Category = "meyve"
	CategoryFlower    Category = "cicek"
	CategoryTip       Category = "ipucu"
	CategoryQuestion  Category = "soru"
	CategoryHarvest   Category = "hasat"
)

// Categories lists every valid non-empty category in display order.
var Categories = []Category{
	CategoryGeneral, CategoryVegetable, CategoryFruit, CategoryFlower,
	CategoryTip, CategoryQuestion, CategoryHarvest,
}

// Valid reports whether c is the empty category or one of Categories.
func (c Category) Valid() bool {
	if c == CategoryNone {
		return true
	}
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Post is a gardener's feed entry. The counters mirror the database row;
// IsLiked is computed per viewer and never persisted on the post itself.
type Post struct {
	ID            uuid.UUID `json:"id"`
	AuthorID      uuid.UUID `json:"author_id"`
	Author        Author    `json:"author"`
	Content       string    `json:"content"`
	Category      Category  `json:"category,omitempty"`
	ImageURL      *string   `json:"image_url,omitempty"`
	Hashtags      []string  `json:"hashtags"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	SharesCount   int       `json:"shares_count"`
	IsLiked       bool      `json:"is_liked"`
	CreatedAt     time.Time `json:"created_at"`
}
