package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/config"
	"github.com/skillsense/assessment-backend/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventStore is the subset of *pgxpool.Pool the worker writes through.
type EventStore interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EventQueue is the redis list the session service pushes audit events to.
type EventQueue interface {
	// Pop blocks up to timeout; it returns redis.Nil when the queue is empty.
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Push(ctx context.Context, items ...[]byte) error
}

// RedisQueue is the EventQueue backed by a redis list.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue uses the session events queue key.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: config.WorkerKey.PersistSessionEventsQueue}
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", redis.Nil
	}
	return result[1], nil
}

// Push appends items in one pipeline round trip.
func (q *RedisQueue) Push(ctx context.Context, items ...[]byte) error {
	pipe := q.rdb.Pipeline()
	for _, it := range items {
		pipe.RPush(ctx, q.key, it)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// AuditWorker batch-drains session audit events into session_events.
type AuditWorker struct {
	store   EventStore
	queue   EventQueue
	log     zerolog.Logger
	written func(n int)
	backoff time.Duration
}

// NewAuditWorker creates the worker. written, if non-nil, is called with the
// number of rows persisted by each flush.
func NewAuditWorker(store EventStore, queue EventQueue, log zerolog.Logger, written func(n int)) *AuditWorker {
	if written == nil {
		written = func(int) {}
	}
	return &AuditWorker{
		store:   store,
		queue:   queue,
		log:     log.With().Str("component", "audit_worker").Logger(),
		written: written,
		backoff: 2 * time.Second,
	}
}

// Start runs until ctx is cancelled, then flushes what it has buffered.
func (w *AuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AuditWorker started")

	buffer := make([]*model.SessionEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		raw, err := w.queue.Pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}

		ev, err := decodeEvent(raw)
		if err != nil {
			// Malformed payloads cannot be retried.
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed session event")
			continue
		}
		buffer = append(buffer, ev)
	}
}

func decodeEvent(raw string) (*model.SessionEvent, error) {
	var ev model.SessionEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, err
	}
	if ev.Kind == "" {
		return nil, errors.New("session event without kind")
	}
	if len(ev.Data) == 0 {
		ev.Data = json.RawMessage("{}")
	}
	return &ev, nil
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *AuditWorker) flushSafe(ctx context.Context, batch []*model.SessionEvent) {
	n, err := w.bulkInsert(ctx, batch)
	if err == nil {
		w.written(int(n))
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *AuditWorker) bulkInsert(ctx context.Context, batch []*model.SessionEvent) (int64, error) {
	rows := make([][]any, 0, len(batch))
	for _, ev := range batch {
		rows = append(rows, []any{
			ev.SessionID, ev.UserID, string(ev.Kind), string(ev.Data), time.UnixMilli(ev.Timestamp),
		})
	}

	return w.store.CopyFrom(
		ctx,
		pgx.Identifier{"session_events"},
		[]string{"session_id", "user_id", "kind", "event_data", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
}

func (w *AuditWorker) fallbackInsert(ctx context.Context, batch []*model.SessionEvent) {
	requeueList := make([]*model.SessionEvent, 0)
	written := 0

	for _, ev := range batch {
		_, err := w.store.Exec(ctx,
			`INSERT INTO session_events (session_id, user_id, kind, event_data, recorded_at)
			 VALUES ($1, $2, $3, $4::jsonb, $5)`,
			ev.SessionID, ev.UserID, string(ev.Kind), string(ev.Data), time.UnixMilli(ev.Timestamp),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22") {
				// Data exception: retrying cannot succeed.
				w.log.Error().Err(err).Str("session_id", ev.SessionID.String()).Msg("Dropping invalid session event")
				continue
			}
			w.log.Error().Err(err).Str("session_id", ev.SessionID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, ev)
			continue
		}
		written++
	}
	w.written(written)

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *AuditWorker) requeue(ctx context.Context, items []*model.SessionEvent) {
	payloads := make([][]byte, 0, len(items))
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		payloads = append(payloads, data)
	}

	// ctx may already be cancelled during shutdown; the push must still go out.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.queue.Push(pushCtx, payloads...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue session events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed session events")
	sleepCtx(ctx, w.backoff)
}

func (w *AuditWorker) shutdown(buffer []*model.SessionEvent) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
