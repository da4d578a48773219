// Package i18n holds the user-facing strings for validation codes and error kinds.
package i18n

import "strings"

// Default is the language used when the request does not name a supported one.
const Default = "en"

var catalogs = map[string]map[string]string{
	"en": {
		// validation codes
		"required":             "Required",
		"invalid_email":        "Enter a valid email address",
		"invalid_number":       "Enter a valid number",
		"invalid_date":         "Enter a date as YYYY-MM-DD",
		"invalid_choice":       "Select a valid option",
		"must_be_positive":     "Must be greater than zero",
		"must_be_non_negative": "Cannot be negative",
		"out_of_range":         "Out of range",
		"min":                  "Must be at least one day",
		"items_required":       "Add at least one line item",
		"phone_missing":        "Client does not have a phone number on file.",
		"phone_country_code":   "Client phone number must include the country code, e.g. +18761234567.",
		"make_required":        "Make is required for proforma invoices.",
		"model_required":       "Model is required for proforma invoices.",
		"price_required":       "Price is required for proforma invoices.",
		"email_taken":          "Email already exists",
		"invalid_credentials":  "Invalid email or password",
		"password_too_short":   "Use at least 8 characters",
		// error kinds
		"configuration": "This feature is not configured yet.",
		"validation":    "Please correct the errors below.",
		"transport":     "The provider could not complete the request. Try again later.",
		"rendering":     "The document could not be generated.",
		"not_found":     "Not found",
		"forbidden":     "You are not allowed to do that.",
		"internal":      "Something went wrong.",
	},
}

// DetectLanguage picks the first supported language of an Accept-Language header.
func DetectLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		base, _, _ := strings.Cut(strings.ToLower(tag), "-")
		if _, ok := catalogs[base]; ok {
			return base
		}
	}
	return Default
}

// T translates code. Unknown languages use Default; unknown codes are returned as-is.
func T(lang, code string) string {
	if c, ok := catalogs[lang]; ok {
		if s, ok := c[code]; ok {
			return s
		}
	}
	if s, ok := catalogs[Default][code]; ok {
		return s
	}
	return code
}

// Fields translates every code of a violations-style map.
func Fields(lang string, codes map[string]string) map[string]string {
	if len(codes) == 0 {
		return nil
	}
	out := make(map[string]string, len(codes))
	for field, code := range codes {
		out[field] = T(lang, code)
	}
	return out
}
