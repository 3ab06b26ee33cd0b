package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gatekeeper-bot/internal/config"
	"gatekeeper-bot/pkg/logger"

	"github.com/nats-io/nats.go"
)

const (
	UpdateSubject = "gatekeeper.updates.raw"
	ConsumerGroup = "gatekeeper-archiver"

	fetchBatch = 10
	fetchWait  = 500 * time.Millisecond
)

type NATS struct {
	conn      *nats.Conn
	jetstream nats.JetStreamContext
	cfg       config.NATSConfig
}

func New(cfg config.NATSConfig) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("gatekeeper-bot"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream: %w", err)
	}

	n := &NATS{
		conn:      conn,
		jetstream: js,
		cfg:       cfg,
	}

	if err := n.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}

	return n, nil
}

func (n *NATS) ensureStream() error {
	_, err := n.jetstream.StreamInfo(n.cfg.StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", n.cfg.StreamName, err)
	}

	_, err = n.jetstream.AddStream(&nats.StreamConfig{
		Name:     n.cfg.StreamName,
		Subjects: []string{UpdateSubject},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", n.cfg.StreamName, err)
	}

	logger.Info("NATS stream created", logger.String("stream", n.cfg.StreamName))
	return nil
}

func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// UpdateMessage carries one raw webhook body. Payload is the JSON text as
// received so it survives the round trip byte for byte.
type UpdateMessage struct {
	UpdateID   int64     `json:"update_id"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

func (n *NATS) PublishUpdate(ctx context.Context, msg *UpdateMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	_, err = n.jetstream.Publish(UpdateSubject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish update: %w", err)
	}

	logger.Debug("Update published to queue", logger.Int64("update_id", msg.UpdateID))

	return nil
}

// Archive publishes a raw webhook body for the archiver consumer.
func (n *NATS) Archive(ctx context.Context, updateID int64, payload []byte) error {
	return n.PublishUpdate(ctx, &UpdateMessage{
		UpdateID:   updateID,
		Payload:    string(payload),
		ReceivedAt: time.Now().UTC(),
	})
}

func (n *NATS) ConsumeUpdates(ctx context.Context, handler func(*UpdateMessage) error) error {
	sub, err := n.jetstream.PullSubscribe(
		UpdateSubject,
		ConsumerGroup,
		nats.BindStream(n.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to updates: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				return fmt.Errorf("failed to fetch messages: %w", err)
			}

			for _, msg := range msgs {
				handleMessage(msg, handler)
			}
		}
	}
}

func handleMessage(msg *nats.Msg, handler func(*UpdateMessage) error) {
	update, err := decodeUpdate(msg.Data)
	if err != nil {
		// Redelivery cannot fix a malformed body.
		logger.Error("Failed to unmarshal update message", logger.Err(err))
		msg.Term()
		return
	}

	if err := handler(update); err != nil {
		logger.Error("Failed to archive update",
			logger.Int64("update_id", update.UpdateID),
			logger.Err(err),
		)
		msg.Nak()
		return
	}

	msg.Ack()
}

func decodeUpdate(data []byte) (*UpdateMessage, error) {
	var update UpdateMessage
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, err
	}
	if update.Payload == "" {
		return nil, errors.New("empty payload")
	}
	return &update, nil
}
