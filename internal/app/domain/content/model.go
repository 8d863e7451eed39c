// Package content defines versioned page content items.
package content

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Type enumerates the supported content payload shapes.
type Type string

const (
	TypeText       Type = "text"
	TypeRichText   Type = "rich_text"
	TypeImageRef   Type = "image_ref"
	TypeStructured Type = "structured_json"
)

// Item is one addressable piece of page content. Version starts at 1 and
// increments by exactly one on every committed write; it never resets.
type Item struct {
	Page      string          `json:"page" db:"page"`
	Key       string          `json:"key" db:"key"`
	Type      Type            `json:"type" db:"type"`
	Value     json.RawMessage `json:"value" db:"value"`
	Version   int             `json:"version" db:"version"`
	UpdatedBy string          `json:"updated_by,omitempty" db:"updated_by"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// ValidateType reports whether t is a known content type.
func ValidateType(t Type) error {
	switch t {
	case TypeText, TypeRichText, TypeImageRef, TypeStructured:
		return nil
	}
	return fmt.Errorf("unknown content type %q", t)
}

// ValidateValue checks that value is well-formed JSON of the shape the type
// requires. text and rich_text carry a JSON string, image_ref a non-empty
// string, structured_json an object or array.
func ValidateValue(t Type, value json.RawMessage) error {
	if len(value) == 0 {
		return fmt.Errorf("value is required")
	}
	if !gjson.ValidBytes(value) {
		return fmt.Errorf("value is not valid JSON")
	}
	parsed := gjson.ParseBytes(value)
	switch t {
	case TypeText, TypeRichText:
		if parsed.Type != gjson.String {
			return fmt.Errorf("%s value must be a JSON string", t)
		}
	case TypeImageRef:
		if parsed.Type != gjson.String || parsed.String() == "" {
			return fmt.Errorf("image_ref value must be a non-empty string")
		}
	case TypeStructured:
		if !parsed.IsObject() && !parsed.IsArray() {
			return fmt.Errorf("structured_json value must be an object or array")
		}
	default:
		return ValidateType(t)
	}
	return nil
}
