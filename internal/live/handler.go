// Package live carries the capture page's gaze and click events to the
// server's live session over a WebSocket.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/session"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second

	maxMessageSize = 64 << 10
)

// SessionOpener is the part of gazecaptcha.Service the handler needs.
type SessionOpener interface {
	OpenSession() (*gazecaptcha.LiveSession, error)
}

type Handler struct {
	svc      SessionOpener
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler accepts connections from the given origins. "*" or an empty
// list allows any origin.
func NewHandler(svc SessionOpener, log *zap.Logger, allowedOrigins []string) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{svc: svc, log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.upgrader.CheckOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	ls, err := h.svc.OpenSession()
	if errors.Is(err, gazecaptcha.ErrSessionBusy) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(errorMessage(err))
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer ls.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.log.With(zap.String("session", ls.ID()))
	log.Info("live session connected", zap.String("remote", r.RemoteAddr))

	c := &client{conn: conn, ls: ls, log: log}
	c.run(r.Context())
	log.Info("live session disconnected")
}

type client struct {
	conn *websocket.Conn
	ls   *gazecaptcha.LiveSession
	log  *zap.Logger

	writeMu sync.Mutex
}

func (c *client) run(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read error", zap.Error(err))
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(ErrorMessage{Type: TypeError, Message: "invalid message: " + err.Error()})
			continue
		}
		for _, out := range Dispatch(ctx, c.ls, msg) {
			if err := c.send(out); err != nil {
				c.log.Warn("write error", zap.Error(err))
				return
			}
		}
	}
}

func (c *client) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Dispatch applies one inbound message to the live session and returns the
// replies to send, in order. Gaze samples get no reply.
func Dispatch(ctx context.Context, ls *gazecaptcha.LiveSession, msg Inbound) []any {
	switch msg.Type {
	case TypeLoad:
		payload, err := ls.Load(ctx, msg.ChallengeID)
		if err != nil {
			return []any{errorMessage(err)}
		}
		return []any{ChallengeMessage{Type: TypeChallenge, ChallengePayload: payload}}

	case TypeGaze:
		if _, err := ls.Gaze(msg.X, msg.Y, msg.W, msg.H, msg.T, msg.TV); err != nil {
			return []any{errorMessage(err)}
		}
		return nil

	case TypeClick:
		res, err := ls.Click(msg.X, msg.Y, msg.W, msg.H, msg.TV)
		if err != nil {
			return []any{errorMessage(err)}
		}
		if res == session.Ignored {
			return nil
		}
		return []any{ToggleMessage{Type: TypeToggle, Result: res.String()}}

	case TypeState:
		if err := ls.SetState(msg.State); err != nil {
			return []any{errorMessage(err)}
		}
		return nil

	case TypeVideo:
		if !msg.Started {
			return nil
		}
		if err := ls.VideoStarted(); err != nil {
			return []any{errorMessage(err)}
		}
		return nil

	case TypeSubmit:
		verdict, next, err := ls.Submit(ctx)
		out := []any{}
		// Only a session with no challenge, or a closed one, has nothing to report.
		if !errors.Is(err, gazecaptcha.ErrNoSessionChallenge) && !errors.Is(err, gazecaptcha.ErrSessionClosed) {
			out = append(out, VerdictMessage{Type: TypeVerdict, Passed: verdict.Passed})
		}
		if next != nil {
			out = append(out, ChallengeMessage{Type: TypeChallenge, ChallengePayload: *next})
		}
		if err != nil {
			out = append(out, errorMessage(err))
		}
		return out

	case TypeReset:
		if err := ls.Reset(); err != nil {
			return []any{errorMessage(err)}
		}
		return nil
	}
	return []any{errorMessage(fmt.Errorf("unknown message type %q", msg.Type))}
}
