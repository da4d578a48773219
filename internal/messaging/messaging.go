// Package messaging sends WhatsApp messages through Twilio.
package messaging

import (
	"regexp"
	"strings"

	"github.com/motorworks/invoicegen/internal/apperr"
)

// Message is one outbound WhatsApp message. Variables fill the content template
// when one is configured; otherwise Body is sent as free-form text.
type Message struct {
	To        string
	Body      string
	Variables map[string]string
}

// Receipt is the provider's answer to a send.
type Receipt struct {
	SID    string
	Status string
}

const whatsappPrefix = "whatsapp:"

var (
	prefixRE   = regexp.MustCompile(`(?i)^whatsapp:`)
	nonDigitRE = regexp.MustCompile(`[^0-9+]`)
)

// NormalizeWhatsApp turns a stored phone number into a "whatsapp:+<digits>" address.
// The number must carry its country code.
func NormalizeWhatsApp(phone string) (string, error) {
	const op = "messaging.NormalizeWhatsApp"
	number := strings.TrimSpace(phone)
	if number == "" {
		return "", apperr.Invalid(op, "Client does not have a phone number on file.", map[string]string{"phone": "phone_missing"})
	}
	number = prefixRE.ReplaceAllString(number, "")
	number = nonDigitRE.ReplaceAllString(number, "")
	if !strings.HasPrefix(number, "+") || len(number) < 2 {
		return "", apperr.Invalid(op, "Client phone number must include the country code, e.g. +18761234567.", map[string]string{"phone": "phone_country_code"})
	}
	return whatsappPrefix + number, nil
}

// senderAddress prefixes the configured sender with "whatsapp:" when needed.
func senderAddress(from string) string {
	from = strings.TrimSpace(from)
	if strings.HasPrefix(strings.ToLower(from), whatsappPrefix) {
		return from
	}
	return whatsappPrefix + from
}
