package grade

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"shs_lms/backend/internal/shared"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier(t *testing.T) {
	rec := shared.PostedGradeRecord{
		ID:         "snap-1",
		PostingKey: "2026-2027|Q1|CLS-1|STEM-11A|FAC-001",
		Sequence:   2,
		ClassID:    "CLS-1",
		Section:    "STEM-11A",
		StudentIDs: []string{"2024-001", "2024-002"},
		PostedAt:   time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}

	t.Run("Publishes keyed event", func(t *testing.T) {
		w := &fakeWriter{}
		n := newKafkaNotifierWithWriter(w, "grades.posted", 0)

		if err := n.NotifyPosted(context.Background(), NewPostedEvent(rec)); err != nil {
			t.Fatalf("NotifyPosted failed: %v", err)
		}
		if len(w.msgs) != 1 {
			t.Fatalf("Expected 1 message, got %d", len(w.msgs))
		}

		msg := w.msgs[0]
		if string(msg.Key) != rec.PostingKey {
			t.Errorf("Expected key %s, got %s", rec.PostingKey, msg.Key)
		}
		var event PostedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			t.Fatalf("Invalid payload: %v", err)
		}
		if !event.Repost || event.SnapshotID != "snap-1" || len(event.StudentIDs) != 2 {
			t.Errorf("Unexpected event: %+v", event)
		}

		if err := n.Close(); err != nil || !w.closed {
			t.Error("Expected the writer to be closed")
		}
	})

	t.Run("Write failure", func(t *testing.T) {
		n := newKafkaNotifierWithWriter(&fakeWriter{err: errors.New("no leader")}, "grades.posted", time.Second)
		if err := n.NotifyPosted(context.Background(), NewPostedEvent(rec)); err == nil {
			t.Error("Expected an error")
		}
	})

	t.Run("Requires brokers", func(t *testing.T) {
		if _, err := NewKafkaNotifier(shared.KafkaConfig{PostedGradeTopic: "grades.posted"}); err == nil {
			t.Error("Expected an error without brokers")
		}
	})
}
