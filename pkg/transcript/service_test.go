package transcript

import (
	"sync"
	"testing"

	"atlas-server/pkg/detector"
	"atlas-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type recordingListener struct {
	mu         sync.Mutex
	utterances []detector.Utterance
	finals     int
}

func (l *recordingListener) OnUtterance(callSID string, u detector.Utterance, isFinal bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.utterances = append(l.utterances, u)
	if isFinal {
		l.finals++
	}
}

func TestPublishNotifiesListeners(t *testing.T) {
	metrics.Init(newTestLogger())
	svc := NewService(newTestLogger())

	listener := &recordingListener{}
	svc.AddListener(listener)

	svc.Publish("CA1", detector.Utterance{Text: "hello", Speaker: "A", StartOffset: 1.0}, false)
	svc.Publish("CA1", detector.Utterance{Text: "leave a message", Speaker: "A", StartOffset: 2.0}, true)

	if len(listener.utterances) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(listener.utterances))
	}
	if listener.finals != 1 {
		t.Errorf("expected 1 final notification, got %d", listener.finals)
	}
}

func TestPublishIgnoresEmptyText(t *testing.T) {
	metrics.Init(newTestLogger())
	svc := NewService(newTestLogger())

	listener := &recordingListener{}
	svc.AddListener(listener)

	svc.Publish("CA1", detector.Utterance{Text: "", StartOffset: 1.0}, true)

	if len(listener.utterances) != 0 {
		t.Error("empty utterances should not be published")
	}
}

func TestCollectReturnsOnlyFinalInOrder(t *testing.T) {
	metrics.Init(newTestLogger())
	svc := NewService(newTestLogger())

	svc.Publish("CA1", detector.Utterance{Text: "interim", StartOffset: 0.5}, false)
	svc.Publish("CA1", detector.Utterance{Text: "second", StartOffset: 5.0}, true)
	svc.Publish("CA1", detector.Utterance{Text: "first", StartOffset: 1.0}, true)
	svc.Publish("CA2", detector.Utterance{Text: "other call", StartOffset: 2.0}, true)

	utterances := svc.Collect("CA1")
	if len(utterances) != 2 {
		t.Fatalf("expected 2 final utterances, got %d", len(utterances))
	}
	if utterances[0].Text != "first" || utterances[1].Text != "second" {
		t.Errorf("utterances not in chronological order: %v", utterances)
	}
}

func TestForgetDropsCall(t *testing.T) {
	metrics.Init(newTestLogger())
	svc := NewService(newTestLogger())

	svc.Publish("CA1", detector.Utterance{Text: "hello", StartOffset: 1.0}, true)
	svc.Forget("CA1")

	if got := svc.Collect("CA1"); len(got) != 0 {
		t.Errorf("expected no utterances after Forget, got %d", len(got))
	}
}

func TestRemoveListener(t *testing.T) {
	metrics.Init(newTestLogger())
	svc := NewService(newTestLogger())

	listener := &recordingListener{}
	svc.AddListener(listener)
	svc.RemoveListener(listener)

	svc.Publish("CA1", detector.Utterance{Text: "hello", StartOffset: 1.0}, true)

	if len(listener.utterances) != 0 {
		t.Error("removed listener should not be notified")
	}
}
