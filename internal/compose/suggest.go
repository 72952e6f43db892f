package compose

import "time"

// Suggestion is a one-click start time offered next to the start-time field.
type Suggestion struct {
	Label string    `json:"label"`
	At    time.Time `json:"at"`
}

var suggestedHours = []struct {
	label string
	hour  int
}{
	{"Tomorrow", 9},
	{"Tomorrow, 10:00 AM", 10},
	{"Tomorrow, 11:00 AM", 11},
	{"Tomorrow, 3:00 PM", 15},
}

// Suggestions returns tomorrow's preset start times in loc.
func Suggestions(now time.Time, loc *time.Location) []Suggestion {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, m, d := local.Date()
	result := make([]Suggestion, 0, len(suggestedHours))
	for _, s := range suggestedHours {
		result = append(result, Suggestion{
			Label: s.label,
			At:    time.Date(y, m, d+1, s.hour, 0, 0, 0, loc),
		})
	}
	return result
}
