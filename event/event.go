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

package event

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventQueueSize      = 64
	AsyncQueueSize      = 1000
	AsyncWorkerPoolSize = 4
)

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// Subscriber receives events from the bus. Deliver errors unregister the
// subscriber. Close must be idempotent
type Subscriber interface {
	Deliver(Event) error
	Close()
}

// EventBus fans events out to subscribers. Publish delivers in the caller's
// goroutine, PublishAsync hands the event to a small worker pool
type EventBus struct {
	logger      *slog.Logger
	metrics     *eventMetrics
	subscribers map[EventType]map[EventSubscriberId]Subscriber
	asyncQueue  chan Event
	stopCh      chan struct{}
	workerWg    sync.WaitGroup
	handlerWg   sync.WaitGroup
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
	stopOnce    sync.Once
	stopped     bool
}

// NewEventBus creates a new EventBus and starts its async workers
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		logger:      logger.With("component", "event"),
		subscribers: make(map[EventType]map[EventSubscriberId]Subscriber),
		asyncQueue:  make(chan Event, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		e.metrics = newEventMetrics(promRegistry)
	}
	for range AsyncWorkerPoolSize {
		e.workerWg.Add(1)
		go e.asyncWorker()
	}
	return e
}

func (e *EventBus) asyncWorker() {
	defer e.workerWg.Done()
	for {
		select {
		case <-e.stopCh:
			// Flush whatever was queued before Stop
			for {
				select {
				case evt := <-e.asyncQueue:
					e.Publish(evt.Type, evt)
				default:
					return
				}
			}
		case evt := <-e.asyncQueue:
			e.Publish(evt.Type, evt)
		}
	}
}

// channelSubscriber delivers into a buffered channel. Deliver blocks while
// the buffer is full
type channelSubscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func newChannelSubscriber(buffer int) *channelSubscriber {
	return &channelSubscriber{
		ch: make(chan Event, buffer),
	}
}

func (c *channelSubscriber) Deliver(evt Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	c.ch <- evt
	return nil
}

func (c *channelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

func (e *EventBus) addSubscriber(
	eventType EventType,
	sub Subscriber,
	kind string,
) EventSubscriberId {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		sub.Close()
		return 0
	}
	e.lastSubId++
	subId := e.lastSubId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]Subscriber)
	}
	e.subscribers[eventType][subId] = sub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType), kind).Inc()
	}
	return subId
}

// Subscribe returns a channel receiving events of the given type. The
// channel is closed by Unsubscribe or Stop. A zero ID means the bus is
// stopped
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	chSub := newChannelSubscriber(EventQueueSize)
	return e.addSubscriber(eventType, chSub, kindInMemory), chSub.ch
}

// SubscribeFunc runs handlerFunc on a dedicated goroutine for each event of
// the given type. Stop waits for in-flight handlers to return
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	chSub := newChannelSubscriber(EventQueueSize)
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return 0
	}
	e.handlerWg.Add(1)
	e.mu.Unlock()
	subId := e.addSubscriber(eventType, chSub, kindInMemory)
	go func() {
		defer e.handlerWg.Done()
		for evt := range chSub.ch {
			e.runHandler(eventType, handlerFunc, evt)
		}
	}()
	return subId
}

func (e *EventBus) runHandler(
	eventType EventType,
	handlerFunc EventHandlerFunc,
	evt Event,
) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(
				"event handler panic",
				"type", eventType,
				"panic", fmt.Sprint(r),
			)
			if e.metrics != nil {
				e.metrics.deliveryErrors.WithLabelValues(string(eventType), "handler-panic").
					Inc()
			}
		}
	}()
	handlerFunc(evt)
}

// RegisterSubscriber adds an external Subscriber implementation, such as a
// message broker publisher
func (e *EventBus) RegisterSubscriber(
	eventType EventType,
	sub Subscriber,
) EventSubscriberId {
	return e.addSubscriber(eventType, sub, kindRemote)
}

// Unsubscribe stops delivery for an existing subscriber and closes it
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	sub, ok := e.subscribers[eventType][subId]
	if ok {
		delete(e.subscribers[eventType], subId)
		if len(e.subscribers[eventType]) == 0 {
			delete(e.subscribers, eventType)
		}
		if e.metrics != nil {
			e.metrics.subscribers.WithLabelValues(string(eventType), subscriberKind(sub)).
				Dec()
		}
	}
	e.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// Publish delivers evt to every subscriber of eventType before returning
func (e *EventBus) Publish(eventType EventType, evt Event) {
	e.mu.RLock()
	subs := make(map[EventSubscriberId]Subscriber, len(e.subscribers[eventType]))
	for id, sub := range e.subscribers[eventType] {
		subs[id] = sub
	}
	e.mu.RUnlock()
	for id, sub := range subs {
		err := deliver(sub, evt)
		if err == nil {
			continue
		}
		e.Unsubscribe(eventType, id)
		if e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(string(eventType), subscriberKind(sub)).
				Inc()
		}
		e.logger.Warn(
			"event delivery failed, subscriber removed",
			"type", eventType,
			"error", err,
		)
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

func deliver(sub Subscriber, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber deliver panic: %v", r)
		}
	}()
	return sub.Deliver(evt)
}

// PublishAsync queues evt for delivery by the worker pool. It returns false
// if the bus is stopped or the queue is full
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	evt.Type = eventType
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return false
	}
	select {
	case e.asyncQueue <- evt:
		return true
	default:
		e.logger.Warn(
			"async event queue full, dropping event",
			"type", eventType,
		)
		if e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(string(eventType), "async-dropped").
				Inc()
		}
		return false
	}
}

// Stop drains queued async events, closes every subscriber and waits for
// SubscribeFunc handlers to return. The bus cannot be reused
func (e *EventBus) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()
		close(e.stopCh)
		e.workerWg.Wait()

		e.mu.Lock()
		subs := e.subscribers
		e.subscribers = make(map[EventType]map[EventSubscriberId]Subscriber)
		e.mu.Unlock()
		for _, evtTypeSubs := range subs {
			for _, sub := range evtTypeSubs {
				sub.Close()
			}
		}
		e.handlerWg.Wait()
		if e.metrics != nil {
			e.metrics.subscribers.Reset()
		}
	})
}
