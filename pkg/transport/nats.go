// Package transport bridges pipelines to NATS. Publisher is a leaf
// processor that mirrors downstream text frames onto a subject;
// Subscriber feeds messages from a subject into a task's frame queue.
// The pipeline core itself performs no I/O; these bridges are the
// collaborators that connect a chain to the outside world.
package transport

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	cerrors "github.com/cascade-stream/cascade/pkg/errors"
	"github.com/cascade-stream/cascade/pkg/frames"
	"github.com/cascade-stream/cascade/pkg/processors"
	"github.com/cascade-stream/cascade/pkg/task"
)

// Publisher is a leaf processor publishing the text of every downstream
// text frame to a NATS subject. All frames, text frames included, are
// pushed onward so the chain behind the publisher sees the full stream.
type Publisher struct {
	processors.BaseProcessor

	conn    *nats.Conn
	subject string
}

// NewPublisher creates a publisher for the given connection and subject.
func NewPublisher(name string, conn *nats.Conn, subject string) (*Publisher, error) {
	if conn == nil {
		return nil, cerrors.ErrNotConnected
	}
	if err := validateSubject(subject); err != nil {
		return nil, err
	}
	return &Publisher{
		BaseProcessor: processors.NewBaseProcessor(name),
		conn:          conn,
		subject:       subject,
	}, nil
}

// ProcessFrame implements processors.FrameProcessor.
func (p *Publisher) ProcessFrame(ctx context.Context, frame frames.Frame, direction processors.Direction) error {
	if err := p.BaseProcessor.ProcessFrame(ctx, frame, direction); err != nil {
		return err
	}

	if text, ok := frame.(*frames.TextFrame); ok && direction == processors.Downstream {
		if err := p.conn.Publish(p.subject, []byte(text.Text)); err != nil {
			return cerrors.NewError("PUBLISH_FAILED", "failed to publish frame", err)
		}
	}

	return p.PushFrame(ctx, frame, direction)
}

// Cleanup flushes any buffered publishes.
func (p *Publisher) Cleanup(ctx context.Context) error {
	if !p.conn.IsConnected() {
		return nil
	}
	return p.conn.Flush()
}

// Subscriber feeds NATS messages into a task as text frames. It is not a
// chain element; it sits in front of the task that owns the pipeline.
type Subscriber struct {
	conn    *nats.Conn
	subject string
	t       *task.Task
	logger  *zap.Logger
	sub     *nats.Subscription
}

// NewSubscriber creates a subscriber queueing one text frame per message
// received on the subject.
func NewSubscriber(conn *nats.Conn, subject string, t *task.Task, logger *zap.Logger) (*Subscriber, error) {
	if conn == nil {
		return nil, cerrors.ErrNotConnected
	}
	if err := validateSubject(subject); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, cerrors.ErrNilProcessor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		conn:    conn,
		subject: subject,
		t:       t,
		logger:  logger,
	}, nil
}

// Start subscribes to the subject. Messages arriving before Stop are
// queued on the task in arrival order.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		if err := s.t.Queue(ctx, frames.NewTextFrame(string(msg.Data))); err != nil {
			s.logger.Warn("failed to queue frame from NATS message",
				zap.String("subject", s.subject),
				zap.Error(err))
		}
	})
	if err != nil {
		return cerrors.NewError("SUBSCRIBE_FAILED", "failed to subscribe", err)
	}
	s.sub = sub
	s.logger.Info("subscribed", zap.String("subject", s.subject))
	return nil
}

// Stop unsubscribes from the subject.
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

func validateSubject(subject string) error {
	if subject == "" || strings.ContainsAny(subject, " \t\n") {
		return cerrors.ErrInvalidSubject
	}
	return nil
}
