package review

import (
	"context"
	"errors"
	"math"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/store"
)

// RecordOutcome sets the realized outcome on a decision. Calling it
// again overwrites the previous judgment; outcome is a single-valued
// field, not a log.
func (e *Engine) RecordOutcome(ctx context.Context, decisionID string, outcome lifecycle.Outcome, notes string) (store.Decision, error) {
	if err := lifecycle.ValidateOutcome(outcome); err != nil {
		return store.Decision{}, err
	}
	return e.store.SetDecisionOutcome(ctx, decisionID, outcome, notes)
}

// RecordActualComplexityParams carries the realized-complexity facts
// captured when work on a request finishes.
type RecordActualComplexityParams struct {
	RequestID        string
	OrgID            string
	ActualComplexity lifecycle.Complexity
	EffortDays       *float64
	LessonsLearned   string
}

// RecordActualComplexity sets the realized complexity, effort, and
// lessons on a request. Overwrites on re-invocation.
func (e *Engine) RecordActualComplexity(ctx context.Context, p RecordActualComplexityParams) (store.Request, error) {
	if err := lifecycle.ValidateComplexity(p.ActualComplexity); err != nil {
		return store.Request{}, err
	}
	if p.EffortDays != nil && *p.EffortDays < 0 {
		return store.Request{}, errors.New("effort days must not be negative")
	}

	r, err := e.store.GetOrgRequest(ctx, p.RequestID, p.OrgID)
	if err != nil {
		return store.Request{}, err
	}

	r.ActualComplexity = &p.ActualComplexity
	if p.EffortDays != nil {
		r.ActualEffortDays = p.EffortDays
	}
	if p.LessonsLearned != "" {
		r.LessonsLearned = &p.LessonsLearned
	}
	return e.store.UpdateRequest(ctx, r)
}

// BucketAccuracy is the calibration result for one predicted
// complexity bucket.
type BucketAccuracy struct {
	Complexity      lifecycle.Complexity `json:"complexity"`
	Predicted       int                  `json:"predicted"`
	Matched         int                  `json:"matched"`
	AccuracyPercent int                  `json:"accuracy_percent"`
}

// CalibrationReport aggregates prediction accuracy per complexity
// bucket and overall. A match is strict equality between predicted and
// actual complexity.
type CalibrationReport struct {
	Buckets         []BucketAccuracy `json:"buckets"`
	Predicted       int              `json:"predicted"`
	Matched         int              `json:"matched"`
	AccuracyPercent int              `json:"accuracy_percent"`
}

// Calibration computes the accuracy report over every request in the
// organization with both a predicted and a realized complexity.
func (e *Engine) Calibration(ctx context.Context, orgID string) (CalibrationReport, error) {
	pairs, err := e.store.ListCalibrationPairs(ctx, orgID)
	if err != nil {
		return CalibrationReport{}, err
	}

	type tally struct{ predicted, matched int }
	byBucket := make(map[lifecycle.Complexity]*tally)
	var report CalibrationReport
	for _, p := range pairs {
		if p.Complexity == nil || p.ActualComplexity == nil {
			continue
		}
		t := byBucket[*p.Complexity]
		if t == nil {
			t = &tally{}
			byBucket[*p.Complexity] = t
		}
		t.predicted++
		report.Predicted++
		if *p.Complexity == *p.ActualComplexity {
			t.matched++
			report.Matched++
		}
	}

	// Stable bucket order, smallest size first.
	for _, c := range []lifecycle.Complexity{
		lifecycle.ComplexityXS, lifecycle.ComplexityS, lifecycle.ComplexityM,
		lifecycle.ComplexityL, lifecycle.ComplexityXL, lifecycle.ComplexityUnknown,
	} {
		t, ok := byBucket[c]
		if !ok {
			continue
		}
		report.Buckets = append(report.Buckets, BucketAccuracy{
			Complexity:      c,
			Predicted:       t.predicted,
			Matched:         t.matched,
			AccuracyPercent: accuracyPercent(t.matched, t.predicted),
		})
	}
	report.AccuracyPercent = accuracyPercent(report.Matched, report.Predicted)
	return report, nil
}

func accuracyPercent(matched, predicted int) int {
	if predicted == 0 {
		return 0
	}
	return int(math.Round(float64(matched) / float64(predicted) * 100))
}
