// Package htmlsanitize strips markup from user-supplied text before it is
// stored or placed in outgoing email.
package htmlsanitize

import (
	"errors"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/microcosm-cc/bluemonday"
)

// ErrCommentTooLong is returned by Comment when the cleaned comment exceeds
// models.MaxCommentLength characters.
var ErrCommentTooLong = errors.New("comment must be 1000 characters or fewer")

// strict removes every element; only text content survives.
var strict = bluemonday.StrictPolicy()

// PlainText removes all HTML from s and returns unescaped plain text.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return html.UnescapeString(strict.Sanitize(s))
}

// IsPlainText reports whether s contains no markup.
func IsPlainText(s string) bool {
	return !strings.ContainsAny(s, "<>")
}

// Comment cleans a ballot comment: markup is stripped, surrounding whitespace
// trimmed, and the result checked against models.MaxCommentLength.
func Comment(s string) (string, error) {
	c := strings.TrimSpace(PlainText(s))
	if utf8.RuneCountInString(c) > models.MaxCommentLength {
		return "", ErrCommentTooLong
	}
	return c, nil
}
