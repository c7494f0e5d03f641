package detector

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsEmptySnapshot(t *testing.T) {
	stats := NewStats()

	snapshot := stats.Snapshot()
	assert.Equal(t, int64(0), snapshot["total_analyzed"])
	assert.Equal(t, "insufficient_data", snapshot["accuracy_metrics"])
}

func TestStatsOutcomeBuckets(t *testing.T) {
	stats := NewStats()
	d := New(newTestLogger(), DefaultConfig(), stats)

	// Voicemail
	d.AnalyzeCall(AnalysisInput{CallSID: "CA1", AnsweredBy: "machine_end_beep"})

	// Uncertain, no signals at all
	d.AnalyzeCall(AnalysisInput{CallSID: "CA2"})

	// Human, explicit verdict with confidence 0 counts as uncertain
	d.AnalyzeCall(AnalysisInput{CallSID: "CA3", AnsweredBy: "human"})

	snapshot := stats.Snapshot()
	require.Equal(t, int64(3), snapshot["total_analyzed"])
	assert.Equal(t, int64(1), snapshot["voicemail_detected"])
	assert.Equal(t, int64(2), snapshot["uncertain"])
	assert.Equal(t, int64(0), snapshot["human_detected"])

	// Buckets always partition the analyzed total
	sum := snapshot["voicemail_detected"].(int64) +
		snapshot["human_detected"].(int64) +
		snapshot["uncertain"].(int64)
	assert.Equal(t, snapshot["total_analyzed"], sum)

	assert.InDelta(t, 1.0/3.0, snapshot["voicemail_rate"].(float64), 1e-9)
	assert.InDelta(t, 2.0/3.0, snapshot["uncertain_rate"].(float64), 1e-9)

	methods := snapshot["methods_used"].(map[string]int64)
	assert.Equal(t, int64(1), methods["amd"])
	assert.Equal(t, int64(0), methods["keyword"])
	assert.Equal(t, "amd", snapshot["primary_method"])
}

func TestStatsReset(t *testing.T) {
	stats := NewStats()
	d := New(newTestLogger(), DefaultConfig(), stats)

	d.AnalyzeCall(AnalysisInput{CallSID: "CA1", AnsweredBy: "machine_end_beep"})
	require.Equal(t, int64(1), stats.Snapshot()["total_analyzed"])

	stats.Reset()

	snapshot := stats.Snapshot()
	assert.Equal(t, int64(0), snapshot["total_analyzed"])
	assert.Equal(t, "insufficient_data", snapshot["accuracy_metrics"])
}

func TestStatsConcurrentRecording(t *testing.T) {
	stats := NewStats()
	d := New(newTestLogger(), DefaultConfig(), stats)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.AnalyzeCall(AnalysisInput{CallSID: "CA1", AnsweredBy: "machine_end_beep"})
		}()
	}
	wg.Wait()

	snapshot := stats.Snapshot()
	assert.Equal(t, int64(50), snapshot["total_analyzed"])
	assert.Equal(t, int64(50), snapshot["voicemail_detected"])
}
