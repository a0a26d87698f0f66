// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kafka forwards event bus events to a Kafka topic
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/herdledger/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

const DefaultWriteTimeout = 10 * time.Second

// Keyed is implemented by event payloads that choose their partition key
type Keyed interface {
	EventKey() string
}

// MessageWriter is the subset of *kafka.Writer used by the publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the JSON envelope written to the topic
type Message struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      any             `json:"data"`
	Type      event.EventType `json:"type"`
}

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Publisher is an event.Subscriber writing each delivered event to Kafka.
// Write failures are logged and counted but never detach the publisher from
// the bus
type Publisher struct {
	writer    MessageWriter
	logger    *slog.Logger
	metrics   *publisherMetrics
	timeout   time.Duration
	closeOnce sync.Once
}

type publisherMetrics struct {
	messages *prometheus.CounterVec
}

// New creates a publisher writing to cfg.Topic on cfg.Brokers
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: no topic configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewWithWriter(w, cfg), nil
}

// NewWithWriter creates a publisher on top of an existing writer
func NewWithWriter(w MessageWriter, cfg Config) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	p := &Publisher{
		writer:  w,
		logger:  logger.With("component", "kafka"),
		timeout: cfg.WriteTimeout,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultWriteTimeout
	}
	if cfg.PromRegistry != nil {
		p.metrics = &publisherMetrics{
			messages: promauto.With(cfg.PromRegistry).NewCounterVec(
				prometheus.CounterOpts{
					Name: "herdledger_kafka_messages_total",
					Help: "kafka messages written, by result",
				},
				[]string{"result"},
			),
		}
	}
	return p
}

// Encode builds the Kafka message for an event
func Encode(evt event.Event) (kafka.Message, error) {
	value, err := json.Marshal(Message{
		Type:      evt.Type,
		Timestamp: evt.Timestamp.UTC(),
		Data:      evt.Data,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Value: value,
		Time:  evt.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
		},
	}
	if keyed, ok := evt.Data.(Keyed); ok {
		msg.Key = []byte(keyed.EventKey())
	}
	return msg, nil
}

// Deliver implements event.Subscriber
func (p *Publisher) Deliver(evt event.Event) error {
	msg, err := Encode(evt)
	if err != nil {
		p.logger.Error("failed to encode event", "type", evt.Type, "error", err)
		p.count("encode_error")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(
			"failed to publish event",
			"type", evt.Type,
			"key", string(msg.Key),
			"error", err,
		)
		p.count("write_error")
		return nil
	}
	p.count("ok")
	return nil
}

func (p *Publisher) count(result string) {
	if p.metrics != nil {
		p.metrics.messages.WithLabelValues(result).Inc()
	}
}

// Close implements event.Subscriber
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if err := p.writer.Close(); err != nil {
			p.logger.Warn("failed to close kafka writer", "error", err)
		}
	})
}
