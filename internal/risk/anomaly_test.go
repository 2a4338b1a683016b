package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

func TestAnomalyDetector_CleanPattern(t *testing.T) {
	now := time.Now()
	detector := NewAnomalyDetector(20, 3.0)

	for i := 0; i < 5; i++ {
		detector.Record(types.SideLong, 0.1, now.Add(time.Duration(i)*time.Minute))
	}

	assessment := detector.Assess(types.SideLong, 0.1, now.Add(6*time.Minute))
	assert.Zero(t, assessment.Severity)
	assert.Empty(t, assessment.Flags)
}

func TestAnomalyDetector_RapidReversal(t *testing.T) {
	now := time.Now()
	detector := NewAnomalyDetector(20, 3.0)

	detector.Record(types.SideLong, 0.1, now.Add(-4*time.Minute))
	detector.Record(types.SideShort, 0.1, now.Add(-2*time.Minute))
	detector.Record(types.SideLong, 0.1, now.Add(-1*time.Minute))

	assessment := detector.Assess(types.SideShort, 0.1, now)
	assert.Contains(t, assessment.Flags, "rapid_reversal")
	assert.Greater(t, assessment.Severity, 0.0)
}

func TestAnomalyDetector_OldFlipsIgnored(t *testing.T) {
	now := time.Now()
	detector := NewAnomalyDetector(20, 3.0)

	// Same flip-flop shape, but spread over hours.
	detector.Record(types.SideLong, 0.1, now.Add(-3*time.Hour))
	detector.Record(types.SideShort, 0.1, now.Add(-2*time.Hour))
	detector.Record(types.SideLong, 0.1, now.Add(-time.Hour))

	assessment := detector.Assess(types.SideShort, 0.1, now)
	assert.NotContains(t, assessment.Flags, "rapid_reversal")
}

func TestAnomalyDetector_OutlierSize(t *testing.T) {
	now := time.Now()
	detector := NewAnomalyDetector(20, 3.0)

	for i := 0; i < 10; i++ {
		detector.Record(types.SideLong, 0.1+float64(i%3)*0.01, now)
	}

	assessment := detector.Assess(types.SideLong, 5.0, now)
	assert.Contains(t, assessment.Flags, "outlier_size")

	assessment = detector.Assess(types.SideLong, 0.11, now)
	assert.NotContains(t, assessment.Flags, "outlier_size")
}

func TestAnomalyDetector_WindowEviction(t *testing.T) {
	now := time.Now()
	detector := NewAnomalyDetector(3, 3.0)

	detector.Record(types.SideLong, 100.0, now)
	for i := 0; i < 3; i++ {
		detector.Record(types.SideLong, 0.1, now)
	}

	// The 100.0 sample was evicted, so a 0.1 entry is not an outlier.
	assessment := detector.Assess(types.SideLong, 0.1, now)
	assert.NotContains(t, assessment.Flags, "outlier_size")
}
