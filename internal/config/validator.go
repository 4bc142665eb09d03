package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"watchpost/internal/models"
)

// ValidationError represents a single validation error with a user-friendly message.
type ValidationError struct {
	Field   string // Field path (e.g., "alerts.rules[0].threshold")
	Tag     string // Validation tag that failed
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
	}
	return sb.String()
}

var validate = validator.New()

// Validate validates the configuration and returns user-friendly error messages.
func Validate(cfg *Config) error {
	var validationErrors ValidationErrors

	if err := validate.Struct(cfg); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrors {
				validationErrors = append(validationErrors, &ValidationError{
					Field:   formatFieldName(fe.Namespace()),
					Tag:     fe.Tag(),
					Value:   fe.Value(),
					Message: translateError(fe),
				})
			}
		}
	}

	validationErrors = append(validationErrors, ValidateRules(cfg.Alerts.Rules)...)

	if cfg.Server.Auth.Enabled && len(cfg.Server.Auth.Secret) < 32 {
		validationErrors = append(validationErrors, &ValidationError{
			Field:   "server.auth.secret",
			Tag:     "min_secret",
			Message: "secret must be at least 32 bytes when auth is enabled",
		})
	}

	if len(validationErrors) > 0 {
		return validationErrors
	}
	return nil
}

// ValidateRules checks every alert rule and rejects duplicate keys, since
// two rules sharing a key would share one state machine.
func ValidateRules(rules []models.AlertRule) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]int, len(rules))

	for i, r := range rules {
		field := fmt.Sprintf("alerts.rules[%d]", i)
		switch {
		case !r.Kind.Valid():
			errs = append(errs, &ValidationError{
				Field: field + ".kind", Tag: "oneof", Value: r.Kind,
				Message: fmt.Sprintf("unknown rule kind %q", r.Kind),
			})
			continue
		case r.Kind.Numeric():
			if r.Threshold <= 0 || r.Threshold > 100 {
				errs = append(errs, &ValidationError{
					Field: field + ".threshold", Tag: "range", Value: r.Threshold,
					Message: fmt.Sprintf("threshold must be in (0, 100], got %v", r.Threshold),
				})
			}
			if r.DurationSeconds < 0 {
				errs = append(errs, &ValidationError{
					Field: field + ".duration_seconds", Tag: "gte", Value: r.DurationSeconds,
					Message: "duration_seconds must not be negative",
				})
			}
		default:
			if strings.TrimSpace(r.Target) == "" {
				errs = append(errs, &ValidationError{
					Field: field + ".target", Tag: "required",
					Message: fmt.Sprintf("target is required for %s rules", r.Kind),
				})
			}
		}

		key := r.Key()
		if prev, dup := seen[key]; dup {
			errs = append(errs, &ValidationError{
				Field: field, Tag: "unique", Value: key,
				Message: fmt.Sprintf("rule key %q duplicates alerts.rules[%d]", key, prev),
			})
			continue
		}
		seen[key] = i
	}
	return errs
}

// formatFieldName converts the validator field namespace to a user-friendly format.
// Example: "Config.Server.RateLimit.RPS" -> "server.ratelimit.rps"
func formatFieldName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = strings.ToLower(part)
	}
	return strings.Join(parts, ".")
}

// translateError converts a validator.FieldError to a user-friendly message.
func translateError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "url":
		return fmt.Sprintf("invalid URL format: %v", fe.Value())
	case "gt":
		return fmt.Sprintf("value must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("value must be greater than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("value must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("validation failed on '%s' tag for field '%s'", fe.Tag(), formatFieldName(fe.Namespace()))
	}
}
