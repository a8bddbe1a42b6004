package grading

import "strings"

// Track labels.
const (
	TrackAcademic = "Academic"
	TrackTVL      = "TVL/Arts & Design/Sports"
)

// Percentages is the component weighting of a subject. The three values
// always sum to 100.
type Percentages struct {
	Written     int `json:"written" bson:"written"`
	Performance int `json:"performance" bson:"performance"`
	Quarterly   int `json:"quarterly" bson:"quarterly"`
}

// Total returns the sum of the three weights.
func (p Percentages) Total() int {
	return p.Written + p.Performance + p.Quarterly
}

// TrackProfile is the weighting policy resolved from a subject name.
type TrackProfile struct {
	Track       string      `json:"track" bson:"track"`
	Special     bool        `json:"special" bson:"special"`
	Percentages Percentages `json:"percentages" bson:"percentages"`
}

// Label is the human-readable name of the profile, e.g. "Academic (Special)".
func (p TrackProfile) Label() string {
	if p.Special {
		return p.Track + " (Special)"
	}
	return p.Track + " (Regular)"
}

var (
	tvlKeywords = []string{
		"tvl", "arts", "design", "sports", "culinary",
		"automotive", "electronics", "welding", "drafting",
	}
	specialKeywords = []string{
		"research", "work immersion", "performance", "exhibit", "practicum",
	}

	academicRegular = Percentages{Written: 25, Performance: 50, Quarterly: 25}
	academicSpecial = Percentages{Written: 25, Performance: 45, Quarterly: 30}
	tvlRegular      = Percentages{Written: 35, Performance: 40, Quarterly: 25}
	tvlSpecial      = Percentages{Written: 20, Performance: 60, Quarterly: 20}
)

// ResolveTrackProfile derives the weighting policy from a subject or class
// display name. It depends on nothing but the name.
func ResolveTrackProfile(subject string) TrackProfile {
	name := strings.Join(strings.Fields(strings.ToLower(subject)), " ")

	tvl := containsAny(name, tvlKeywords)
	special := containsAny(name, specialKeywords)

	switch {
	case tvl && special:
		return TrackProfile{Track: TrackTVL, Special: true, Percentages: tvlSpecial}
	case tvl:
		return TrackProfile{Track: TrackTVL, Percentages: tvlRegular}
	case special:
		return TrackProfile{Track: TrackAcademic, Special: true, Percentages: academicSpecial}
	default:
		return TrackProfile{Track: TrackAcademic, Percentages: academicRegular}
	}
}

func containsAny(name string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
