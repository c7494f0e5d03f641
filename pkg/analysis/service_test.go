package analysis

import (
	"io"
	"sync"
	"testing"

	"atlas-server/pkg/database"
	"atlas-server/pkg/detector"
	"atlas-server/pkg/messaging"
	"atlas-server/pkg/metrics"
	"atlas-server/pkg/transcript"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu          sync.Mutex
	detections  []*database.Detection
	transcripts []*database.Transcript
}

func (f *fakeStore) SaveDetection(d *database.Detection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detections = append(f.detections, d)
	return nil
}

func (f *fakeStore) SaveTranscript(t *database.Transcript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, t)
	return nil
}

func (f *fakeStore) ListTranscripts(callSID string) ([]*database.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*database.Transcript
	for _, t := range f.transcripts {
		if t.CallSID == callSID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu          sync.Mutex
	connected   bool
	detections  []messaging.DetectionEvent
	transcripts []messaging.TranscriptEvent
}

func (f *fakePublisher) PublishDetection(event messaging.DetectionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detections = append(f.detections, event)
	return nil
}

func (f *fakePublisher) PublishTranscript(event messaging.TranscriptEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, event)
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	return f.connected
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newAnalysisFixture(t *testing.T, store *fakeStore, publisher *fakePublisher) (*Service, *transcript.Service) {
	t.Helper()
	logger := newTestLogger()
	metrics.Init(logger)

	det := detector.New(logger, detector.DefaultConfig(), nil)
	transcripts := transcript.NewService(logger)

	var detStore DetectionStore
	if store != nil {
		detStore = store
	}
	var pub EventPublisher
	if publisher != nil {
		pub = publisher
	}
	return NewService(logger, det, transcripts, detStore, pub), transcripts
}

func TestAnalyzeCallPersistsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{connected: true}
	service, transcripts := newAnalysisFixture(t, store, publisher)

	transcripts.Publish("CA100", detector.Utterance{
		Text:        "Please leave a message after the tone",
		Speaker:     "callee",
		StartOffset: 1.0,
		Confidence:  0.95,
	}, true)

	result := service.AnalyzeCall("CA100", "machine_end_beep", 25, nil, nil)
	require.NotNil(t, result)
	assert.True(t, result.IsVoicemail)

	require.Len(t, store.detections, 1)
	saved := store.detections[0]
	assert.Equal(t, "CA100", saved.CallSID)
	assert.True(t, saved.IsVoicemail)
	assert.Equal(t, len(result.Signals), saved.SignalCount)
	assert.Contains(t, saved.Signals, "amd")

	require.Len(t, publisher.detections, 1)
	event := publisher.detections[0]
	assert.Equal(t, "CA100", event.CallSID)
	assert.Equal(t, result.Confidence, event.Confidence)
	assert.Equal(t, result.DetectionMethod, event.DetectionMethod)

	cached, ok := service.Result("CA100")
	require.True(t, ok)
	assert.Equal(t, result, cached)

	_, ok = service.Result("CA999")
	assert.False(t, ok)
}

func TestAnalyzeCallWithoutStoreOrPublisher(t *testing.T) {
	service, _ := newAnalysisFixture(t, nil, nil)

	result := service.AnalyzeCall("CA200", "human", 40, nil, nil)
	require.NotNil(t, result)
	assert.False(t, result.IsVoicemail)
}

func TestAnalyzeCallSkipsDisconnectedPublisher(t *testing.T) {
	publisher := &fakePublisher{connected: false}
	service, _ := newAnalysisFixture(t, nil, publisher)

	service.AnalyzeCall("CA300", "machine_start", 10, nil, nil)
	assert.Empty(t, publisher.detections)
}

func TestAnalyzeCallLoadsStoredTranscripts(t *testing.T) {
	store := &fakeStore{
		transcripts: []*database.Transcript{
			{
				CallSID:     "CA500",
				Speaker:     "callee",
				Text:        "Please leave a message after the beep",
				Confidence:  0.96,
				StartOffset: 1.2,
				IsFinal:     true,
			},
			{
				CallSID:     "CA500",
				Speaker:     "callee",
				Text:        "interim fragment",
				Confidence:  0.4,
				StartOffset: 0.3,
				IsFinal:     false,
			},
		},
	}

	service, _ := newAnalysisFixture(t, store, nil)
	service.SetTranscriptLoader(store)

	// Nothing in the in-memory accumulator, so the stored finals are used
	result := service.AnalyzeCall("CA500", "", 22, nil, nil)
	require.NotNil(t, result)
	assert.True(t, result.IsVoicemail)
	assert.Equal(t, "keyword", result.DetectionMethod)
}

func TestTranscriptBridgePersistsFinalUtterances(t *testing.T) {
	logger := newTestLogger()
	metrics.Init(logger)
	store := &fakeStore{}
	publisher := &fakePublisher{connected: true}

	bridge := NewTranscriptBridge(logger, store, publisher)
	transcripts := transcript.NewService(logger)
	transcripts.AddListener(bridge)

	transcripts.Publish("CA400", detector.Utterance{
		Text:        "hello there",
		Speaker:     "callee",
		StartOffset: 0.5,
		Confidence:  0.9,
	}, true)
	transcripts.Publish("CA400", detector.Utterance{
		Text:        "partial",
		Speaker:     "callee",
		StartOffset: 1.5,
		Confidence:  0.5,
	}, false)

	require.Len(t, store.transcripts, 1)
	assert.Equal(t, "hello there", store.transcripts[0].Text)
	assert.True(t, store.transcripts[0].IsFinal)

	require.Len(t, publisher.transcripts, 1)
	assert.Equal(t, "CA400", publisher.transcripts[0].CallSID)
	assert.Equal(t, 0.5, publisher.transcripts[0].StartOffset)
}
