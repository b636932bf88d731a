package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/middleware"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/skillsense/assessment-backend/internal/response"
	"github.com/skillsense/assessment-backend/internal/service"
	ws "github.com/skillsense/assessment-backend/internal/websocket"
)

const outboxSize = 256

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live test session.
type WSHandler struct {
	sessions *service.TestSessionService
	ticks    proctor.TickSource
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. ticks drives every session clock,
// normally proctor.Ticker.
func NewWSHandler(sessions *service.TestSessionService, ticks proctor.TickSource, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		ticks:    ticks,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// TestStream godoc
// WS /ws/v1/tests/:session_id/stream
// Attaches to a created session. Closing the socket abandons the attempt.
func (h *WSHandler) TestStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", claims.UserID()).
		Str("session_id", sessionID.String()).
		Logger()

	pres := newStreamPresenter(wsLog)
	ctrl, feed, err := h.sessions.Attach(claims.UserID(), sessionID, pres, h.ticks)
	if err != nil {
		_, code := classify(err)
		ws.WriteError(conn, string(code), response.GetMessage(code))
		ws.WriteClose(conn, string(code))
		return
	}

	go pres.pump(conn)
	defer pres.shutdown()

	var inflight sync.WaitGroup
	defer inflight.Wait()
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsLog.Info().Msg("Candidate connected")

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var msg ws.RequestPayload
		if err := json.Unmarshal(data, &msg); err != nil {
			wsLog.Debug().Err(err).Msg("Malformed message")
			pres.send(ws.ErrorResponse{
				Event: ws.EventError,
				Code:  string(response.ErrInvalidPayload),
				Error: response.GetMessage(response.ErrInvalidPayload),
			})
			continue
		}
		h.dispatch(ctx, ctrl, feed, pres, &inflight, msg)
	}
}

// dispatch applies one client action. Start and submit wait on the scoring
// service, so they run off the read loop and signals keep flowing meanwhile.
func (h *WSHandler) dispatch(ctx context.Context, ctrl *proctor.Controller, feed *proctor.SignalFeed, pres *streamPresenter, inflight *sync.WaitGroup, msg ws.RequestPayload) {
	var err error

	switch msg.Action {
	case ws.ActionStart:
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			pres.fail(msg.Action, ctrl.Start(ctx))
		}()
	case ws.ActionSubmit:
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			pres.fail(msg.Action, ctrl.Submit(ctx))
		}()
	case ws.ActionSelect:
		err = ctrl.Select(msg.Option)
	case ws.ActionClear:
		err = ctrl.ClearSelection()
	case ws.ActionFocusLost:
		feed.Emit(proctor.SignalFocusLost)
	case ws.ActionFullscreenExited:
		feed.Emit(proctor.SignalFullscreenExited)
	case ws.ActionAcknowledge:
		err = ctrl.Acknowledge()
	case ws.ActionExitRequest:
		err = ctrl.RequestExit()
	case ws.ActionExitCancel:
		err = ctrl.CancelExit()
	case ws.ActionExitConfirm:
		err = ctrl.ConfirmExit()
	case ws.ActionPing:
		pres.send(ws.SignalResponse{Event: ws.EventPong})
	default:
		pres.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		pres.send(ws.ErrorResponse{
			Event:  ws.EventError,
			Action: msg.Action,
			Code:   string(response.ErrInvalidPayload),
			Error:  "unknown action: " + string(msg.Action),
		})
	}

	pres.fail(msg.Action, err)
}

// streamPresenter renders controller output as websocket events. The
// controller calls it under its lock, so events are queued and written by
// pump.
type streamPresenter struct {
	out      chan any
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	log      zerolog.Logger
}

func newStreamPresenter(log zerolog.Logger) *streamPresenter {
	return &streamPresenter{
		out:  make(chan any, outboxSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
		log:  log,
	}
}

func (p *streamPresenter) send(v any) {
	select {
	case p.out <- v:
	case <-p.done:
	default:
		p.log.Warn().Msg("Outbox full, dropping event")
	}
}

func (p *streamPresenter) fail(action ws.Action, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, proctor.ErrStaleResponse) {
		p.log.Debug().Err(err).Str("action", string(action)).Msg("Discarded stale response")
	}
	_, code := classify(err)
	p.send(ws.ErrorResponse{
		Event:  ws.EventError,
		Action: action,
		Code:   string(code),
		Error:  response.GetMessage(code),
		Detail: errorDetail(err),
	})
}

// pump is the only writer of conn. It returns after the terminated event or
// on shutdown.
func (p *streamPresenter) pump(conn *websocket.Conn) {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case v := <-p.out:
			if err := ws.WriteTyped(conn, v); err != nil {
				p.log.Debug().Err(err).Msg("Write failed")
				conn.Close()
				return
			}
			if _, ok := v.(ws.TerminatedResponse); ok {
				ws.WriteClose(conn, "session ended")
				return
			}
		}
	}
}

func (p *streamPresenter) shutdown() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *streamPresenter) ShowQuestion(q model.QuestionForCandidate, index, total int) {
	p.send(ws.QuestionResponse{Event: ws.EventQuestion, Question: q, Index: index, Total: total})
}

func (p *streamPresenter) ShowTime(remainingSec int) {
	p.send(ws.TickResponse{Event: ws.EventTick, TimeRemainingSec: remainingSec})
}

func (p *streamPresenter) ShowIntegrityWarning(v proctor.IntegrityViolation) {
	p.send(ws.PausedResponse{Event: ws.EventPaused, Signal: v.Signal, Count: v.Count})
}

func (p *streamPresenter) HideIntegrityWarning() {
	p.send(ws.SignalResponse{Event: ws.EventResumed})
}

func (p *streamPresenter) PromptExitConfirmation() {
	p.send(ws.SignalResponse{Event: ws.EventExitPrompt})
}

func (p *streamPresenter) DismissExitConfirmation() {
	p.send(ws.SignalResponse{Event: ws.EventExitDismissed})
}

func (p *streamPresenter) RequestFullscreen() {
	p.send(ws.SignalResponse{Event: ws.EventRequestFullscreen})
}

func (p *streamPresenter) ExitFullscreen() {
	p.send(ws.SignalResponse{Event: ws.EventExitFullscreen})
}

// HandOff runs outside the controller lock and waits for room in the outbox.
func (p *streamPresenter) HandOff(o proctor.Outcome) {
	select {
	case p.out <- ws.TerminatedResponse{Event: ws.EventTerminated, Outcome: o}:
	case <-p.done:
	}
}
