package rules

import "time"

// Rule spec names used by the request layer.
const (
	SpecRegistration  = "registration"
	SpecLogin         = "login"
	SpecEventCreation = "event_creation"
	SpecEventUpdate   = "event_update"
	SpecReview        = "review"
	SpecReport        = "report"
)

const PredicateFutureDateTime = "future_datetime"

const (
	emailPattern    = `[^\s@]+@[^\s@]+\.[^\s@]+`
	passwordPattern = `(?=.*[a-z])(?=.*[A-Z])(?=.*\d).*`
	objectIDPattern = `[A-Za-z0-9_-]{1,64}`
)

var (
	Roles = []string{"attendee", "organizer", "admin"}

	EventCategories = []string{
		"Music & Concerts",
		"Sports & Fitness",
		"Social & Cultural Events",
		"Business & Networking",
		"Education & Workshops",
		"Arts & Theatre",
		"Food & Drink",
		"Technology",
		"Charity & Causes",
		"Other",
	}

	RecurrencePatterns = []string{"none", "daily", "weekly", "monthly", "yearly"}

	ReportReasons = []string{"spam", "inappropriate", "fraud", "misleading", "harassment", "other"}
)

// DefaultPredicates are the named custom predicates available to rule documents.
func DefaultPredicates() map[string]Predicate {
	return map[string]Predicate{
		PredicateFutureDateTime: FutureDateTime,
	}
}

// FutureDateTime holds when value parses as a date-time strictly after now.
func FutureDateTime(value any, now time.Time) bool {
	t, err := parseDateTime(stringValue(value))
	if err != nil {
		return false
	}
	return t.After(now)
}

// DefaultSpecs returns the rule specs for every operation the platform exposes.
func DefaultSpecs() []RuleSpec {
	futureTime := Custom(PredicateFutureDateTime, FutureDateTime, "must be in the future")
	return []RuleSpec{
		{
			Name: SpecRegistration,
			Fields: []FieldRule{
				Field("name", Required(), Length(3, 50)),
				Field("email", Required(), Pattern(emailPattern, "must be a valid email address")),
				Field("password", Required(), Length(8, 128),
					Pattern(passwordPattern, "must contain a lowercase letter, an uppercase letter and a digit")),
				OptionalField("role", Enum(Roles...)),
			},
		},
		{
			Name: SpecLogin,
			Fields: []FieldRule{
				Field("email", Required(), Pattern(emailPattern, "must be a valid email address")),
				Field("password", Required()),
			},
		},
		{
			Name: SpecEventCreation,
			Fields: []FieldRule{
				Field("eventName", Required(), Length(3, 100)),
				OptionalField("description", MaxLength(2000)),
				Field("time", Required(), ISODate(), futureTime),
				Field("category", Required(), Enum(EventCategories...)),
				OptionalField("pattern", Enum(RecurrencePatterns...)),
				Field("longitude", Required(), Range(-180, 180)),
				Field("latitude", Required(), Range(-90, 90)),
				OptionalField("price", Range(0, 1_000_000)),
				OptionalField("capacity", Range(1, 1_000_000)),
			},
		},
		{
			Name: SpecEventUpdate,
			Fields: []FieldRule{
				OptionalField("eventName", Length(3, 100)),
				OptionalField("description", MaxLength(2000)),
				OptionalField("time", ISODate(), futureTime),
				OptionalField("category", Enum(EventCategories...)),
				OptionalField("pattern", Enum(RecurrencePatterns...)),
				OptionalField("longitude", Range(-180, 180)),
				OptionalField("latitude", Range(-90, 90)),
				OptionalField("price", Range(0, 1_000_000)),
				OptionalField("capacity", Range(1, 1_000_000)),
			},
		},
		{
			Name: SpecReview,
			Fields: []FieldRule{
				Field("eventId", Required(), Pattern(objectIDPattern, "must be a valid id")),
				Field("rating", Required(), Range(1, 5)),
				OptionalField("comment", MaxLength(500)),
			},
		},
		{
			Name: SpecReport,
			Fields: []FieldRule{
				Field("eventId", Required(), Pattern(objectIDPattern, "must be a valid id")),
				Field("reason", Required(), Enum(ReportReasons...)),
				OptionalField("details", MaxLength(1000)),
			},
		},
	}
}
