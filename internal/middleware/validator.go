package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

var appraisalIDPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

// ValidateAppraisalID validates appraisal ID format (UUID)
func ValidateAppraisalID(id string) error {
	if id == "" {
		return fmt.Errorf("appraisal ID cannot be empty")
	}
	if !appraisalIDPattern.MatchString(strings.ToLower(id)) {
		return fmt.Errorf("invalid appraisal ID format")
	}
	return nil
}

// ValidateCategory validates the optional free-text category hint
func ValidateCategory(category string) error {
	if category == "" {
		return nil // Optional field
	}
	if len(category) > 128 {
		return fmt.Errorf("category too long (max 128 chars)")
	}
	dangerous := []string{"\x00", "\n", "\r"}
	for _, d := range dangerous {
		if strings.Contains(category, d) {
			return fmt.Errorf("invalid characters in category")
		}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
