package scoredomain

import "strings"

// Status classifies how far a judge has scored an entry. It is always derived,
// never stored.
type Status string

const (
	StatusNotStarted     Status = "not_started"
	StatusIncomplete     Status = "incomplete"
	StatusComplete       Status = "complete"
	StatusNoShow         Status = "no_show"
	StatusNoOrganization Status = "no_organization"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{
	StatusNoOrganization,
	StatusNotStarted,
	StatusIncomplete,
	StatusComplete,
	StatusNoShow,
}

func (s Status) String() string { return string(s) }

// Category is a scoring dimension configured for an event.
type Category struct {
	ID            string `json:"id"`
	EventID       string `json:"eventId"`
	Name          string `json:"name"`
	DisplayOrder  int    `json:"displayOrder"`
	Required      bool   `json:"required"`
	HasNoneOption bool   `json:"hasNoneOption"`
}

// DeriveStatus classifies an entry's scoring progress for one judge. The
// first matching rule wins:
//
//  1. blank organization, or the literal "null" -> no_organization
//  2. every category unanswered                 -> not_started
//  3. every required category explicitly zero   -> no_show
//  4. every required category answered          -> complete
//  5. otherwise                                 -> incomplete
//
// Rule 3 needs at least one required category.
func DeriveStatus(organization string, categories []Category, values Values) Status {
	if !HasOrganization(organization) {
		return StatusNoOrganization
	}

	answered := false
	for _, c := range categories {
		if !values.Get(c.Name).IsNull() {
			answered = true
			break
		}
	}
	if !answered {
		return StatusNotStarted
	}

	required := 0
	allAnswered := true
	allZero := true
	for _, c := range categories {
		if !c.Required {
			continue
		}
		required++
		n, ok := values.Get(c.Name).Int()
		if !ok {
			allAnswered = false
			allZero = false
			continue
		}
		if n != 0 {
			allZero = false
		}
	}

	switch {
	case required > 0 && allAnswered && allZero:
		return StatusNoShow
	case allAnswered:
		return StatusComplete
	default:
		return StatusIncomplete
	}
}

// HasOrganization reports whether an organization name is a real value.
// Imported rows carry the literal string "null" for missing names.
func HasOrganization(organization string) bool {
	org := strings.TrimSpace(organization)
	return org != "" && !strings.EqualFold(org, "null")
}

// Summary counts entries per status.
type Summary map[Status]int

// Add counts one status.
func (s Summary) Add(status Status) { s[status]++ }
