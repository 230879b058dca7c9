package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a list entry at the fetch boundary.
func Validate(r RatedItem) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid entry %q: %w", r.Media.Title, err)
	}
	return nil
}

// ValidateAll validates every entry and reports the first failure.
func ValidateAll(items []RatedItem) error {
	for i := range items {
		if err := Validate(items[i]); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// ValidateCatalog validates catalog entries.
func ValidateCatalog(items []CatalogItem) error {
	for i := range items {
		if err := validate.Struct(items[i]); err != nil {
			return fmt.Errorf("catalog entry %d (%q): %w", i, items[i].Media.Title, err)
		}
	}
	return nil
}
