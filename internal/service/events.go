package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/metrics"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/tidwall/sjson"
)

const publishBatch = 50

// EventSink receives encoded session events, e.g. worker.RedisQueue.
type EventSink interface {
	Push(ctx context.Context, items ...[]byte) error
}

// EventPublisher decouples controller callbacks from redis. Publish never
// blocks; events are dropped when the buffer is full.
type EventPublisher struct {
	sink EventSink
	ch   chan model.SessionEvent
	log  zerolog.Logger
}

// NewEventPublisher buffers up to size events.
func NewEventPublisher(sink EventSink, size int, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		sink: sink,
		ch:   make(chan model.SessionEvent, size),
		log:  log.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish queues ev and reports whether it was accepted.
func (p *EventPublisher) Publish(ev model.SessionEvent) bool {
	select {
	case p.ch <- ev:
		return true
	default:
		p.log.Warn().
			Str("session_id", ev.SessionID.String()).
			Str("kind", string(ev.Kind)).
			Msg("Event buffer full, dropping session event")
		return false
	}
}

// Run pushes queued events to the sink until ctx is cancelled, then drains
// what is left.
func (p *EventPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.drain(drainCtx)
			cancel()
			return
		case ev := <-p.ch:
			p.push(ctx, p.collect(ev))
		}
	}
}

// collect gathers ev plus whatever else is already buffered.
func (p *EventPublisher) collect(ev model.SessionEvent) [][]byte {
	batch := make([][]byte, 0, publishBatch)
	batch = p.appendEncoded(batch, ev)
	for len(batch) < publishBatch {
		select {
		case next := <-p.ch:
			batch = p.appendEncoded(batch, next)
		default:
			return batch
		}
	}
	return batch
}

func (p *EventPublisher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-p.ch:
			p.push(ctx, p.collect(ev))
		default:
			return
		}
	}
}

func (p *EventPublisher) appendEncoded(batch [][]byte, ev model.SessionEvent) [][]byte {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("Encode session event")
		return batch
	}
	return append(batch, data)
}

func (p *EventPublisher) push(ctx context.Context, batch [][]byte) {
	if len(batch) == 0 {
		return
	}
	if err := p.sink.Push(ctx, batch...); err != nil {
		p.log.Error().Err(err).Int("count", len(batch)).Msg("Failed to queue session events")
	}
}

// auditObserver records transitions and violations of one controller. It
// runs under the controller's lock, so it only counts and enqueues.
type auditObserver struct {
	pub     *EventPublisher
	metrics *metrics.Metrics
	now     func() time.Time
}

func (o *auditObserver) Transitioned(s model.TestSession, from model.SessionStatus) {
	o.metrics.SessionTransitions.WithLabelValues(string(from), string(s.Status)).Inc()

	data := []byte(`{}`)
	data, _ = sjson.SetBytes(data, "from", string(from))
	data, _ = sjson.SetBytes(data, "to", string(s.Status))
	data, _ = sjson.SetBytes(data, "time_remaining_sec", s.TimeRemainingSec)
	data, _ = sjson.SetBytes(data, "question_index", s.CurrentQuestionIndex)
	o.publish(s, model.SessionEventTransition, data)
}

func (o *auditObserver) Violated(s model.TestSession, v proctor.IntegrityViolation) {
	o.metrics.IntegrityEvents.WithLabelValues(string(v.Signal)).Inc()

	data := []byte(`{}`)
	data, _ = sjson.SetBytes(data, "signal", string(v.Signal))
	data, _ = sjson.SetBytes(data, "count", v.Count)
	data, _ = sjson.SetBytes(data, "time_remaining_sec", s.TimeRemainingSec)
	o.publish(s, model.SessionEventViolation, data)
}

func (o *auditObserver) publish(s model.TestSession, kind model.SessionEventKind, data []byte) {
	o.pub.Publish(model.SessionEvent{
		SessionID: s.ID,
		UserID:    s.UserID,
		Kind:      kind,
		Timestamp: o.now().UnixMilli(),
		Data:      data,
	})
}

// outcomeEvent describes how a session left the registry. o is nil when the
// session was closed before it terminated.
func outcomeEvent(s model.TestSession, o *proctor.Outcome, at time.Time) model.SessionEvent {
	data := []byte(`{}`)
	if o == nil {
		data, _ = sjson.SetBytes(data, "status", "ABANDONED")
	} else {
		data, _ = sjson.SetBytes(data, "status", string(o.Status))
		data, _ = sjson.SetBytes(data, "reason", string(o.Reason))
		data, _ = sjson.SetBytes(data, "forfeited", o.Forfeited)
		data, _ = sjson.SetBytes(data, "duration_sec", o.DurationSec)
		data, _ = sjson.SetBytes(data, "answers", len(o.Answers))
		if o.Score != nil {
			data, _ = sjson.SetBytes(data, "score", *o.Score)
		}
		if o.ResultID != nil {
			data, _ = sjson.SetBytes(data, "result_id", o.ResultID.String())
		}
		if o.PersistErr != nil {
			data, _ = sjson.SetBytes(data, "persist_error", o.PersistErr.Error())
		}
	}
	return model.SessionEvent{
		SessionID: s.ID,
		UserID:    s.UserID,
		Kind:      model.SessionEventOutcome,
		Timestamp: at.UnixMilli(),
		Data:      data,
	}
}
