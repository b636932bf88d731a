package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/metrics"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/skillsense/assessment-backend/internal/repository"
)

var (
	ErrSkillNotFound     = errors.New("skill not found")
	ErrTestAlreadyActive = errors.New("user already has an active test")
	ErrSessionNotFound   = errors.New("test session not found")
	ErrAlreadyAttached   = errors.New("test session already has a live stream")
)

const releaseTimeout = 5 * time.Second

// SkillLookup resolves skill identifiers.
type SkillLookup interface {
	GetByID(ctx context.Context, id string) (*model.Skill, error)
}

// SessionConfig holds the per-attempt settings shared by every session.
type SessionConfig struct {
	Budget            time.Duration
	Questions         int
	DefaultSelfRating int
	Policy            proctor.IntegrityPolicy
	// AttachTimeout discards a created session nobody streams.
	AttachTimeout time.Duration
}

func (c SessionConfig) guardTTL() time.Duration {
	return c.Budget + c.AttachTimeout + time.Minute
}

type liveSession struct {
	session model.TestSession
	ctrl    *proctor.Controller
	expiry  *time.Timer
}

// TestSessionService owns the live controllers of this instance.
type TestSessionService struct {
	skills    SkillLookup
	guard     ActiveGuard
	retriever proctor.Retriever
	results   proctor.ResultStore
	publisher *EventPublisher
	metrics   *metrics.Metrics
	cfg       SessionConfig
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*liveSession
	wg       sync.WaitGroup
}

// NewTestSessionService creates a new TestSessionService.
func NewTestSessionService(
	skills SkillLookup,
	guard ActiveGuard,
	retriever proctor.Retriever,
	results proctor.ResultStore,
	publisher *EventPublisher,
	m *metrics.Metrics,
	cfg SessionConfig,
	log zerolog.Logger,
) *TestSessionService {
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = time.Minute
	}
	return &TestSessionService{
		skills:    skills,
		guard:     guard,
		retriever: instrumentedRetriever{next: retriever, metrics: m},
		results:   results,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		log:       log.With().Str("component", "test_sessions").Logger(),
		now:       time.Now,
		sessions:  make(map[uuid.UUID]*liveSession),
	}
}

// Create registers a NotStarted session for userID. The session is dropped
// unless a stream attaches within the attach timeout.
func (s *TestSessionService) Create(ctx context.Context, userID string, req model.StartTestRequest) (*model.TestSession, error) {
	skill, err := s.skills.GetByID(ctx, req.SkillID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSkillNotFound
		}
		return nil, fmt.Errorf("get skill: %w", err)
	}

	rating := s.cfg.DefaultSelfRating
	if req.SelfRating != nil {
		rating = *req.SelfRating
	}

	id := uuid.New()
	ok, err := s.guard.Acquire(ctx, userID, id, s.cfg.guardTTL())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTestAlreadyActive
	}

	budget := int(s.cfg.Budget / time.Second)
	session := model.TestSession{
		ID:                id,
		UserID:            userID,
		SkillID:           skill.ID,
		SkillName:         skill.Name,
		InitialSelfRating: rating,
		Status:            model.SessionStatusNotStarted,
		BudgetSec:         budget,
		TimeRemainingSec:  budget,
		TotalQuestions:    s.cfg.Questions,
	}

	ls := &liveSession{session: session}
	s.mu.Lock()
	s.sessions[id] = ls
	ls.expiry = time.AfterFunc(s.cfg.AttachTimeout, func() { s.expire(id) })
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", id.String()).
		Str("user_id", userID).
		Str("skill_id", skill.ID).
		Int("self_rating", rating).
		Msg("Test session created")

	return &session, nil
}

// expire drops a session that was never attached.
func (s *TestSessionService) expire(id uuid.UUID) {
	s.mu.Lock()
	ls, ok := s.sessions[id]
	if !ok || ls.ctrl != nil {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	s.release(ls.session)
	s.log.Info().Str("session_id", id.String()).Msg("Unattached test session expired")
}

// Active returns the id of the user's live test, wherever it runs.
func (s *TestSessionService) Active(ctx context.Context, userID string) (uuid.UUID, error) {
	id, ok, err := s.guard.Current(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, ErrSessionNotFound
	}
	return id, nil
}

// Get returns the current state of one of the user's sessions.
func (s *TestSessionService) Get(userID string, id uuid.UUID) (proctor.Snapshot, error) {
	s.mu.Lock()
	ls, ok := s.sessions[id]
	var (
		session model.TestSession
		ctrl    *proctor.Controller
	)
	if ok {
		session, ctrl = ls.session, ls.ctrl
	}
	s.mu.Unlock()

	if !ok || session.UserID != userID {
		return proctor.Snapshot{}, ErrSessionNotFound
	}
	if ctrl == nil {
		return proctor.Snapshot{Session: session, History: []model.AnswerRecord{}}, nil
	}
	return ctrl.Snapshot(), nil
}

// Attach builds the controller of a created session around a live stream.
// Integrity signals of the stream are delivered through the returned feed.
func (s *TestSessionService) Attach(userID string, id uuid.UUID, presenter proctor.Presenter, ticks proctor.TickSource) (*proctor.Controller, *proctor.SignalFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.sessions[id]
	if !ok || ls.session.UserID != userID {
		return nil, nil, ErrSessionNotFound
	}
	if ls.ctrl != nil {
		return nil, nil, ErrAlreadyAttached
	}

	feed := &proctor.SignalFeed{}
	ctrl, err := proctor.New(ls.session, proctor.Deps{
		Retriever: s.retriever,
		Results:   s.results,
		Ticks:     ticks,
		Signals:   feed,
		Presenter: presenter,
		Observer:  &auditObserver{pub: s.publisher, metrics: s.metrics, now: s.now},
		Log:       s.log,
	}, proctor.WithIntegrityPolicy(s.cfg.Policy))
	if err != nil {
		return nil, nil, fmt.Errorf("build controller: %w", err)
	}

	ls.expiry.Stop()
	ls.ctrl = ctrl
	s.metrics.ActiveSessions.Inc()

	s.wg.Add(1)
	go s.watch(ls)

	return ctrl, feed, nil
}

// watch retires a session once its controller handed off or was closed.
func (s *TestSessionService) watch(ls *liveSession) {
	defer s.wg.Done()
	<-ls.ctrl.Done()

	var outcome *proctor.Outcome
	if o, ok := ls.ctrl.Outcome(); ok {
		outcome = &o
		s.metrics.SessionOutcomes.WithLabelValues(string(o.Status), string(o.Reason)).Inc()
	} else {
		s.metrics.SessionOutcomes.WithLabelValues("ABANDONED", "closed").Inc()
	}
	s.publisher.Publish(outcomeEvent(ls.session, outcome, s.now()))

	s.mu.Lock()
	delete(s.sessions, ls.session.ID)
	s.mu.Unlock()
	s.metrics.ActiveSessions.Dec()

	s.release(ls.session)
}

func (s *TestSessionService) release(session model.TestSession) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.guard.Release(ctx, session.UserID, session.ID); err != nil {
		s.log.Error().Err(err).
			Str("session_id", session.ID.String()).
			Msg("Failed to release active test")
	}
}

// Shutdown closes every live session and waits for them to retire.
func (s *TestSessionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	var pending []model.TestSession
	var live []*proctor.Controller
	for id, ls := range s.sessions {
		if ls.ctrl == nil {
			ls.expiry.Stop()
			pending = append(pending, ls.session)
			delete(s.sessions, id)
			continue
		}
		live = append(live, ls.ctrl)
	}
	s.mu.Unlock()

	for _, session := range pending {
		s.release(session)
	}
	for _, ctrl := range live {
		ctrl.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Live reports the number of sessions registered on this instance.
func (s *TestSessionService) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
