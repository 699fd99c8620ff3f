// Package normalize canonicalises user-supplied strings before they are
// stored or compared.
package normalize

import (
	"strings"

	"github.com/dalemusser/boardhub/internal/domain/models"
)

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name. Case is preserved.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Role trims and lowercases a role name.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Status trims and lowercases a user status.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// QueryParam trims a query string value. Case is preserved.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}

// Filter trims a list filter value; "all" (any case) means no filter and
// yields "".
func Filter(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return ""
	}
	return s
}

// ItemType trims and lowercases an item type from a URL or request body.
// Plural forms ("resolutions") are accepted.
func ItemType(s string) models.ItemType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "resolutions" {
		s = string(models.ItemResolution)
	}
	return models.ItemType(s)
}
