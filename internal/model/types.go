package model

import (
	"fmt"
	"strings"
)

// Tag is a descriptive tag with its relevance rank (0-100).
type Tag struct {
	Name string `json:"name" validate:"required"`
	Rank int    `json:"rank" validate:"min=0,max=100"`
}

// Studio is a main studio credited on a media entry.
type Studio struct {
	Name              string `json:"name" validate:"required"`
	IsAnimationStudio bool   `json:"isAnimationStudio"`
}

// StaffEdge links a staff member to a media entry by role.
type StaffEdge struct {
	ID   int    `json:"id" validate:"required"`
	Role string `json:"role"`
}

// Media represents the subset of AniList media fields used by the tool.
type Media struct {
	Title        string      `json:"title" validate:"required"`
	Genres       []string    `json:"genres" validate:"dive,required"`
	Tags         []Tag       `json:"tags" validate:"dive"`
	Studios      []Studio    `json:"studios" validate:"dive"`
	Staff        []StaffEdge `json:"staff" validate:"dive"`
	AverageScore float64     `json:"averageScore" validate:"min=0,max=100"`
	CoverImage   string      `json:"coverImage"`
	SiteURL      string      `json:"siteUrl"`
}

// RatedItem is an entry of one of the user's lists. Score is the user's
// personal score on the 0-100 scale; 0 means unrated.
type RatedItem struct {
	Media Media   `json:"media"`
	Score float64 `json:"score" validate:"min=0,max=100"`
}

// CatalogItem is an unrated media entry from a seasonal browse.
type CatalogItem struct {
	Media Media `json:"media"`
}

// Item is the capability shared by list entries and catalog entries.
// Target is the value stored in the last feature column.
type Item interface {
	Details() Media
	Target() float64
}

func (r RatedItem) Details() Media  { return r.Media }
func (r RatedItem) Target() float64 { return r.Score }

func (c CatalogItem) Details() Media  { return c.Media }
func (c CatalogItem) Target() float64 { return 0 }

// RatedItems converts list entries into the Item capability.
func RatedItems(in []RatedItem) []Item {
	out := make([]Item, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}

// CatalogItems converts catalog entries into the Item capability.
func CatalogItems(in []CatalogItem) []Item {
	out := make([]Item, len(in))
	for i, c := range in {
		out[i] = c
	}
	return out
}

// MediaList is a named list of a user's collection, e.g. "Completed".
type MediaList struct {
	Name    string      `json:"name"`
	Entries []RatedItem `json:"entries"`
}

// Season is the AniList MediaSeason enum.
type Season string

const (
	Winter Season = "WINTER"
	Spring Season = "SPRING"
	Summer Season = "SUMMER"
	Fall   Season = "FALL"
)

// ParseSeason accepts a season name in any case.
func ParseSeason(s string) (Season, error) {
	switch Season(strings.ToUpper(strings.TrimSpace(s))) {
	case Winter:
		return Winter, nil
	case Spring:
		return Spring, nil
	case Summer:
		return Summer, nil
	case Fall:
		return Fall, nil
	}
	return "", fmt.Errorf("unknown season %q", s)
}
