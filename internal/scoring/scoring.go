// Package scoring computes prioritization scores for requests.
//
// All functions here are pure: they take their configuration as an
// explicit value and touch no storage. Organization-level defaults
// are resolved by the caller before the call, falling back to
// DefaultConfig when nothing is configured.
package scoring

import "math"

// Framework tags which prioritization formula an organization uses.
type Framework string

const (
	FrameworkRICE   Framework = "RICE"
	FrameworkWSJF   Framework = "WSJF"
	FrameworkCustom Framework = "CUSTOM"
)

// Weights are the composite-score weights. They conceptually sum to
// 1.0; the sum is not enforced, so a config that doesn't add up simply
// produces a scaled composite.
type Weights struct {
	Business  float64 `json:"business"`
	Technical float64 `json:"technical"`
	Risk      float64 `json:"risk"`
}

// Thresholds are the inclusive lower bounds of the High and Medium
// priority bands.
type Thresholds struct {
	HighPriority   float64 `json:"highPriority"`
	MediumPriority float64 `json:"mediumPriority"`
}

// Config is an organization's scoring configuration.
type Config struct {
	Framework  Framework  `json:"framework"`
	Weights    Weights    `json:"weights"`
	Thresholds Thresholds `json:"thresholds"`
}

// DefaultConfig returns the hard-coded fallback configuration:
// business 0.4 / technical 0.3 / risk 0.3, thresholds 75/50.
func DefaultConfig() Config {
	return Config{
		Framework: FrameworkRICE,
		Weights: Weights{
			Business:  0.4,
			Technical: 0.3,
			Risk:      0.3,
		},
		Thresholds: Thresholds{
			HighPriority:   75,
			MediumPriority: 50,
		},
	}
}

// Resolve returns the caller-supplied config when present, else the
// hard-coded default.
func Resolve(cfg *Config) Config {
	if cfg != nil {
		return *cfg
	}
	return DefaultConfig()
}

// RICE computes the Reach/Impact/Confidence/Effort score:
// round(reach * impact * (confidence/100) / effort * 10).
// A zero reach, impact, or confidence yields 0; a non-positive effort
// yields 0 rather than dividing by zero.
func RICE(reach, impact, confidence, effort float64) int {
	if effort <= 0 {
		return 0
	}
	return roundHalfUp(reach * impact * (confidence / 100) / effort * 10)
}

// WSJF computes the Weighted Shortest Job First score:
// round((businessValue + timeCriticality + riskReduction) / jobSize * 10).
// A non-positive job size yields 0.
func WSJF(businessValue, timeCriticality, riskReduction, jobSize float64) int {
	if jobSize <= 0 {
		return 0
	}
	return roundHalfUp((businessValue + timeCriticality + riskReduction) / jobSize * 10)
}

// Composite computes the weighted composite of the three assessment
// scores (each 0-100). Risk is inverted first: a lower risk score
// raises the composite.
func Composite(business, technical, risk float64, cfg Config) int {
	invertedRisk := 100 - risk
	return roundHalfUp(
		business*cfg.Weights.Business +
			technical*cfg.Weights.Technical +
			invertedRisk*cfg.Weights.Risk,
	)
}

// PriorityLabel maps a score into the High/Medium/Low bands. Both
// thresholds are inclusive on the lower bound of their band.
func PriorityLabel(score float64, cfg Config) string {
	switch {
	case score >= cfg.Thresholds.HighPriority:
		return "High"
	case score >= cfg.Thresholds.MediumPriority:
		return "Medium"
	default:
		return "Low"
	}
}

// roundHalfUp rounds to the nearest integer, halves away from zero.
func roundHalfUp(v float64) int {
	return int(math.Round(v))
}
