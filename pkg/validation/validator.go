package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// Custom validator instance
	validate = validator.New()

	// Regex patterns for validation
	tickerPattern  = regexp.MustCompile(`^[A-Z0-9.]{1,10}$`)
	countryPattern = regexp.MustCompile(`^[a-zA-Z ]{2,56}$`)
)

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Register custom validators
func init() {
	validate.RegisterValidation("ticker", validateTicker)
	validate.RegisterValidation("country", validateCountry)
	validate.RegisterValidation("price", validatePrice)
	validate.RegisterValidation("volume", validateVolume)
}

// validateTicker validates ticker symbol format
func validateTicker(fl validator.FieldLevel) bool {
	ticker, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return tickerPattern.MatchString(ticker)
}

// validateCountry validates country name format
func validateCountry(fl validator.FieldLevel) bool {
	country, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return countryPattern.MatchString(country)
}

// validatePrice validates price is positive and reasonable
func validatePrice(fl validator.FieldLevel) bool {
	price, ok := fl.Field().Interface().(float64)
	if !ok {
		return false
	}
	// Price must be positive and less than 1 million
	return price > 0 && price < 1000000
}

// validateVolume validates trading volume is non-negative
func validateVolume(fl validator.FieldLevel) bool {
	volume, ok := fl.Field().Interface().(int64)
	if !ok {
		return false
	}
	return volume >= 0
}

// ValidateStruct validates a struct using tags
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var errors ValidationErrors
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		tag := err.Tag()
		value := err.Value()

		message := getErrorMessage(field, tag, value)
		errors = append(errors, ValidationError{
			Field:   field,
			Message: message,
			Value:   value,
		})
	}

	return errors
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(field, tag string, value interface{}) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "ticker":
		return fmt.Sprintf("%s must be a valid ticker symbol (1-10 uppercase letters/numbers)", field)
	case "country":
		return fmt.Sprintf("%s must be a valid country name", field)
	case "price":
		return fmt.Sprintf("%s must be a positive price less than 1,000,000", field)
	case "volume":
		return fmt.Sprintf("%s must be a non-negative trading volume", field)
	case "min":
		return fmt.Sprintf("%s must be at least %v", field, value)
	case "max":
		return fmt.Sprintf("%s must be at most %v", field, value)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

// IsValidTicker reports whether s is acceptable as a symbol before any
// network call is made on its behalf.
func IsValidTicker(s string) bool {
	return tickerPattern.MatchString(s)
}

// NormalizeTicker uppercases and trims a user-supplied symbol. The
// upstream provider matches case-insensitively, so normalization happens
// once at the edge.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SanitizeString removes potentially dangerous characters
func SanitizeString(s string) string {
	// Remove null bytes and control characters
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, newline, carriage return
			return -1
		}
		return r
	}, s)

	// Trim whitespace
	return strings.TrimSpace(s)
}
