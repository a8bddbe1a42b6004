package grading

import "math"

// Transmutation bounds.
const (
	MinTransmutedGrade = 60
	MaxTransmutedGrade = 99
)

type band struct {
	min   float64
	grade int
}

// transmutationTable lists the lower bound of every band, highest first.
// The boundaries are the official grading policy and must not be smoothed
// or re-derived.
var transmutationTable = []band{
	{98.40, 99},
	{96.84, 98},
	{95.28, 97},
	{93.72, 96},
	{92.16, 95},
	{90.61, 94},
	{89.05, 93},
	{87.49, 92},
	{85.93, 91},
	{84.37, 90},
	{82.81, 89},
	{81.25, 88},
	{79.69, 87},
	{78.13, 86},
	{76.57, 85},
	{75.02, 84},
	{73.46, 83},
	{71.90, 82},
	{70.34, 81},
	{68.78, 80},
	{67.22, 79},
	{65.66, 78},
	{64.10, 77},
	{62.54, 76},
	{60.98, 75},
	{59.43, 74},
	{57.87, 73},
	{56.31, 72},
	{54.75, 71},
	{53.19, 70},
	{51.63, 69},
	{50.07, 68},
	{48.51, 67},
	{46.95, 66},
	{45.39, 65},
	{43.84, 64},
	{42.28, 63},
	{40.72, 62},
	{39.16, 61},
}

// Transmute maps a raw final-grade percentage to the reported grade.
// The result is always within [60, 99]; a raw 100 reports as 99.
func Transmute(raw float64) int {
	if math.IsNaN(raw) {
		return MinTransmutedGrade
	}
	g := Round2(raw)
	for _, b := range transmutationTable {
		if g >= b.min {
			return b.grade
		}
	}
	return MinTransmutedGrade
}

// RawFinalGrade combines the initial grade with the quarterly exam weighted
// by the profile's quarterly percentage.
func RawFinalGrade(initialGrade, quarterlyExam float64, quarterlyWeight int) float64 {
	return Round2(initialGrade + quarterlyExam*float64(quarterlyWeight)/100)
}

// FinalGrade returns the raw and transmuted final grade. A nil exam means no
// quarterly exam has been entered yet; both values are then 0.
func FinalGrade(initialGrade float64, quarterlyExam *float64, quarterlyWeight int) (float64, int) {
	if quarterlyExam == nil {
		return 0, 0
	}
	raw := RawFinalGrade(initialGrade, *quarterlyExam, quarterlyWeight)
	return raw, Transmute(raw)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
