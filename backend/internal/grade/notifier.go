package grade

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"shs_lms/backend/internal/shared"
)

// PostedEvent announces a new posted grade snapshot to students
type PostedEvent struct {
	SnapshotID   string    `json:"snapshot_id"`
	PostingKey   string    `json:"posting_key"`
	Sequence     int       `json:"sequence"`
	Repost       bool      `json:"repost"`
	AcademicYear string    `json:"academic_year"`
	Term         string    `json:"term"`
	Quarter      string    `json:"quarter"`
	ClassID      string    `json:"class_id"`
	ClassCode    string    `json:"class_code"`
	Section      string    `json:"section"`
	FacultyID    string    `json:"faculty_id"`
	StudentIDs   []string  `json:"student_ids"`
	PostedAt     time.Time `json:"posted_at"`
}

// NewPostedEvent builds the event for a stored snapshot
func NewPostedEvent(rec shared.PostedGradeRecord) PostedEvent {
	return PostedEvent{
		SnapshotID:   rec.ID,
		PostingKey:   rec.PostingKey,
		Sequence:     rec.Sequence,
		Repost:       rec.Sequence > 1,
		AcademicYear: rec.AcademicYear,
		Term:         string(rec.Term),
		Quarter:      string(rec.Quarter),
		ClassID:      rec.ClassID,
		ClassCode:    rec.ClassCode,
		Section:      rec.Section,
		FacultyID:    rec.FacultyID,
		StudentIDs:   rec.StudentIDs,
		PostedAt:     rec.PostedAt,
	}
}

// Notifier delivers posted grade events. Delivery failures never undo a
// posting.
type Notifier interface {
	NotifyPosted(ctx context.Context, event PostedEvent) error
	Close() error
}

// ============================================================================
// Kafka Notifier
// ============================================================================

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes posted grade events keyed by posting key, so the
// events of one class section stay ordered on a partition
type KafkaNotifier struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaNotifier creates a notifier writing to cfg.PostedGradeTopic
func NewKafkaNotifier(cfg shared.KafkaConfig) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.PostedGradeTopic == "" {
		return nil, fmt.Errorf("posted grade topic must not be empty")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.PostedGradeTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           cfg.WriteTimeout,
	}
	return newKafkaNotifierWithWriter(w, cfg.PostedGradeTopic, cfg.WriteTimeout), nil
}

func newKafkaNotifierWithWriter(w messageWriter, topic string, timeout time.Duration) *KafkaNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaNotifier{writer: w, topic: topic, timeout: timeout}
}

func (n *KafkaNotifier) NotifyPosted(ctx context.Context, event PostedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode posted event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.PostingKey),
		Value: payload,
		Time:  event.PostedAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("grades.posted")},
		},
	}
	if err := n.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.topic, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// ============================================================================
// Log Notifier
// ============================================================================

// LogNotifier only logs events; used when no brokers are configured
type LogNotifier struct{}

func (LogNotifier) NotifyPosted(ctx context.Context, event PostedEvent) error {
	log.Printf("INFO: Posted grades %s (class %s section %s %s, sequence %d, %d students)",
		event.SnapshotID, event.ClassID, event.Section, event.Quarter, event.Sequence, len(event.StudentIDs))
	return nil
}

func (LogNotifier) Close() error { return nil }
