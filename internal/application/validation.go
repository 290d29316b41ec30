package application

import (
	"fmt"
	"strings"

	"paperflow/internal/domain"
)

// ValidationError represents a validation failure with details
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateRequired checks if a string field is non-empty (after trimming whitespace).
// Returns a ValidationError if the field is empty.
func ValidateRequired(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		displayName := formatFieldName(fieldName)
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("%s is required", displayName),
		}
	}
	return nil
}

// formatFieldName converts camelCase field names to space-separated words
// for more readable error messages (e.g., "documentID" -> "document ID")
func formatFieldName(fieldName string) string {
	replacements := map[string]string{
		"documentID": "document ID",
		"claim":      "claim",
		"query":      "query",
		"section":    "section",
		"topK":       "result count",
	}

	if formatted, ok := replacements[fieldName]; ok {
		return formatted
	}
	return fieldName
}

// ValidateDocumentID checks that an ID is already in normalized form.
func ValidateDocumentID(fieldName, id string) error {
	if err := ValidateRequired(fieldName, id); err != nil {
		return err
	}
	if domain.NormalizeID(id+".pdf") != id {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("expected a normalized %s, got: %s", formatFieldName(fieldName), id),
		}
	}
	return nil
}
