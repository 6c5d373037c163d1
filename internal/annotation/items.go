// Package annotation reads and writes the canonical per-page JSON format and
// manages the presentation-only item identifiers.
//
// The canonical file is an array of box objects. Identifiers are assigned when
// a page is handed to a client and removed again before anything is written to
// a page file or an export.
package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

// Decode parses and validates a canonical page document.
// Numbers are kept as json.Number so opaque fields round-trip exactly.
func Decode(data []byte) ([]models.Item, error) {
	if err := validateDocument(gojsonschema.NewBytesLoader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidInput, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []models.Item
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: parse page: %v", utils.ErrInvalidInput, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after page array", utils.ErrInvalidInput)
	}
	if items == nil {
		items = []models.Item{}
	}
	return items, nil
}

// Validate checks items received from a client against the page schema.
func Validate(items []models.Item) error {
	if items == nil {
		return fmt.Errorf("%w: items are required", utils.ErrInvalidInput)
	}
	if err := validateDocument(gojsonschema.NewGoLoader(items)); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrInvalidInput, err)
	}
	return nil
}

// AssignIdentifiers returns copies of items where every box has an id and a
// reading order. Missing ids get a fresh UUID; a missing reading order becomes
// the box's position in the array.
func AssignIdentifiers(items []models.Item) []models.Item {
	out := make([]models.Item, len(items))
	for i, item := range items {
		c := item.Clone()
		if c.ID() == "" {
			c[models.ItemIDKey] = uuid.NewString()
		}
		if _, ok := c[models.ItemReadingOrderKey]; !ok {
			c[models.ItemReadingOrderKey] = i
		}
		out[i] = c
	}
	return out
}

// StripIdentifiers returns copies of items without the id key.
func StripIdentifiers(items []models.Item) []models.Item {
	out := make([]models.Item, len(items))
	for i, item := range items {
		c := item.Clone()
		delete(c, models.ItemIDKey)
		out[i] = c
	}
	return out
}

// EncodeCanonical renders items in the canonical file form: ids removed,
// two-space indentation.
func EncodeCanonical(items []models.Item) ([]byte, error) {
	clean := StripIdentifiers(items)
	data, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return data, nil
}

// UnmarshalItems decodes a stored items document, keeping numbers exact.
func UnmarshalItems(data []byte) ([]models.Item, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []models.Item
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if items == nil {
		items = []models.Item{}
	}
	return items, nil
}
