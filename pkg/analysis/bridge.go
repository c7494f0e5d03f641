package analysis

import (
	"time"

	"atlas-server/pkg/database"
	"atlas-server/pkg/detector"
	"atlas-server/pkg/messaging"

	"github.com/sirupsen/logrus"
)

// TranscriptStore persists individual utterances
type TranscriptStore interface {
	SaveTranscript(t *database.Transcript) error
}

// TranscriptPublisher publishes utterance events to downstream consumers
type TranscriptPublisher interface {
	PublishTranscript(event messaging.TranscriptEvent) error
	IsConnected() bool
}

// TranscriptBridge forwards utterances from the transcript service to
// storage and messaging. It implements transcript.Listener.
type TranscriptBridge struct {
	logger    *logrus.Logger
	store     TranscriptStore
	publisher TranscriptPublisher
}

func NewTranscriptBridge(logger *logrus.Logger, store TranscriptStore, publisher TranscriptPublisher) *TranscriptBridge {
	return &TranscriptBridge{
		logger:    logger,
		store:     store,
		publisher: publisher,
	}
}

// OnUtterance persists final utterances and publishes them as events
func (b *TranscriptBridge) OnUtterance(callSID string, utterance detector.Utterance, isFinal bool) {
	if !isFinal {
		return
	}

	if b.store != nil {
		record := &database.Transcript{
			CallSID:     callSID,
			Speaker:     utterance.Speaker,
			Text:        utterance.Text,
			Confidence:  utterance.Confidence,
			StartOffset: utterance.StartOffset,
			IsFinal:     true,
		}
		if err := b.store.SaveTranscript(record); err != nil {
			b.logger.WithError(err).WithField("call_sid", callSID).Error("Failed to persist transcript utterance")
		}
	}

	if b.publisher != nil && b.publisher.IsConnected() {
		event := messaging.TranscriptEvent{
			CallSID:     callSID,
			Speaker:     utterance.Speaker,
			Text:        utterance.Text,
			Confidence:  utterance.Confidence,
			StartOffset: utterance.StartOffset,
			Timestamp:   time.Now().UTC(),
		}
		if err := b.publisher.PublishTranscript(event); err != nil {
			b.logger.WithError(err).WithField("call_sid", callSID).Warn("Failed to publish transcript event")
		}
	}
}
