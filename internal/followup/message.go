package followup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/models"
)

// Template fields available to the message body and the content variables.
const (
	FieldClientName      = "client_name"
	FieldBusinessName    = "business_name"
	FieldDaysSince       = "days_since_service"
	FieldLastServiceDate = "last_service_date"
)

// ServiceDateLayout formats the last service date in messages.
const ServiceDateLayout = "January 02, 2006"

// VariableMap assigns template fields to numbered content-template slots.
type VariableMap map[string]string

// DefaultVariables is the four-slot layout of the approved WhatsApp template.
func DefaultVariables() VariableMap {
	return VariableMap{
		"1": FieldClientName,
		"2": FieldBusinessName,
		"3": FieldDaysSince,
		"4": FieldLastServiceDate,
	}
}

// ParseVariableMap reads "1=client_name,2=last_service_date". Empty input yields
// the default layout.
func ParseVariableMap(raw string) (VariableMap, error) {
	const op = "followup.ParseVariableMap"
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultVariables(), nil
	}
	m := VariableMap{}
	for _, pair := range strings.Split(raw, ",") {
		slot, field, ok := strings.Cut(strings.TrimSpace(pair), "=")
		slot, field = strings.TrimSpace(slot), strings.TrimSpace(field)
		if !ok || slot == "" {
			return nil, apperr.Config(op, fmt.Sprintf("invalid TWILIO_CONTENT_VARIABLES entry %q", pair))
		}
		if _, err := strconv.Atoi(slot); err != nil {
			return nil, apperr.Config(op, fmt.Sprintf("content variable slot %q must be a number", slot))
		}
		switch field {
		case FieldClientName, FieldBusinessName, FieldDaysSince, FieldLastServiceDate:
		default:
			return nil, apperr.Config(op, fmt.Sprintf("unknown content variable field %q", field))
		}
		m[slot] = field
	}
	return m, nil
}

// String renders the map back in its configuration form, slots in numeric order.
func (m VariableMap) String() string {
	slots := make([]string, 0, len(m))
	for k := range m {
		slots = append(slots, k)
	}
	sort.Slice(slots, func(i, j int) bool {
		a, _ := strconv.Atoi(slots[i])
		b, _ := strconv.Atoi(slots[j])
		return a < b
	})
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, s+"="+m[s])
	}
	return strings.Join(parts, ",")
}

// Fields are the resolved template values for one follow-up.
type Fields map[string]string

// FieldsFor resolves the template values of f on today.
func FieldsFor(f *models.FollowUp, clientName string, s *models.FollowUpSettings, today time.Time) Fields {
	fl := Fields{
		FieldClientName:      clientName,
		FieldBusinessName:    s.BusinessName,
		FieldDaysSince:       "",
		FieldLastServiceDate: "",
	}
	if f.LastServiceDate != nil {
		fl[FieldDaysSince] = strconv.Itoa(DaysSince(f, today))
		fl[FieldLastServiceDate] = f.LastServiceDate.Format(ServiceDateLayout)
	}
	return fl
}

// BuildMessage fills {placeholders} in tmpl. Unknown placeholders are left as-is.
func BuildMessage(tmpl string, fl Fields) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = models.DefaultMessageTemplate
	}
	pairs := make([]string, 0, len(fl)*2)
	for k, v := range fl {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Variables maps each configured slot to its field value.
func (m VariableMap) Variables(fl Fields) map[string]string {
	out := make(map[string]string, len(m))
	for slot, field := range m {
		out[slot] = fl[field]
	}
	return out
}
