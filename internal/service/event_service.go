package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/logger"
	"github.com/GoPolymarket/burngate/internal/pkg/metrics"
)

// EventService publishes committed domain events. Publishing never blocks the
// engine: events go to an in-memory ring immediately and to the repo and the
// JSONL journal from a background consumer.
type EventService struct {
	events  chan *model.Event
	logFile *os.File
	buffer  *eventBuffer
	repo    EventRepo
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// NewEventService starts the consumer. logDir and repo are both optional.
func NewEventService(logDir string, repo EventRepo, bufferSize int) (*EventService, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	svc := &EventService{
		events: make(chan *model.Event, bufferSize),
		buffer: newEventBuffer(bufferSize),
		repo:   repo,
		done:   make(chan struct{}),
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}
		// 按启动日期命名的事件流水
		filename := filepath.Join(logDir, "events-"+time.Now().Format("2006-01-02")+".jsonl")
		f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		svc.logFile = f
	}

	go svc.process()
	return svc, nil
}

func (s *EventService) Publish(ev *model.Event) {
	if ev == nil {
		return
	}
	s.buffer.Add(ev)

	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		// 缓冲区满，丢弃以保护主流程；内存环形缓冲里仍然可查
		metrics.EventsDropped.Inc()
		logger.Warn("event buffer full, dropping event", "type", ev.Type, "id", ev.ID)
	}
}

// List reads from the repo when one is configured and falls back to the ring.
func (s *EventService) List(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, filter)
		if err == nil {
			return records, nil
		}
		logger.Warn("event repo list failed, serving from memory", "error", err)
	}
	return s.buffer.List(filter), nil
}

func (s *EventService) process() {
	defer close(s.done)
	var encoder *json.Encoder
	if s.logFile != nil {
		encoder = json.NewEncoder(s.logFile)
	}
	for ev := range s.events {
		if s.repo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.repo.Insert(ctx, ev); err != nil {
				logger.Error("failed to persist event", "type", ev.Type, "id", ev.ID, "error", err)
			}
			cancel()
		}
		if encoder != nil {
			if err := encoder.Encode(ev); err != nil {
				logger.Error("failed to journal event", "type", ev.Type, "id", ev.ID, "error", err)
			}
		}
	}
}

// Close stops accepting events and waits for the queue to drain.
func (s *EventService) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.closeMu.Unlock()

	<-s.done
	if s.logFile != nil {
		s.logFile.Close()
	}
}

type eventBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.Event
	nextIndex int
}

func newEventBuffer(maxSize int) *eventBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &eventBuffer{
		maxSize: maxSize,
		records: make([]*model.Event, 0, maxSize),
	}
}

func (b *eventBuffer) Add(ev *model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, ev)
		return
	}
	b.records[b.nextIndex] = ev
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns matching events newest first.
func (b *eventBuffer) List(filter model.EventFilter) []*model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.Event, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		// 未写满时 nextIndex 为 0，最新的在末尾
		idx := (b.nextIndex + total - 1 - i) % total
		ev := b.records[idx]
		if ev == nil {
			continue
		}
		if filter.Type != "" && ev.Type != filter.Type {
			continue
		}
		if filter.Since != nil && ev.CreatedAt.Before(*filter.Since) {
			continue
		}
		results = append(results, ev)
		if len(results) >= limit {
			break
		}
	}
	return results
}
