package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"argus/core"
	"argus/detect"
)

// WebSocket configuration constants.
const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 60 * time.Second

	// pingPeriod sends pings with this period. Must be less than
	// pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds an inbound frame; rule patches are the
	// largest legitimate payload.
	maxFrameSize = 256 * 1024
)

// Websocket frame types.
const (
	frameSession    = "session"
	frameAnalyze    = "analyze"
	framePatchRules = "patch_rules"
	frameResult     = "result"
	frameOK         = "ok"
	frameError      = "error"
)

// wsRequest is one inbound client frame.
type wsRequest struct {
	Type  string        `json:"type"`
	Line  string        `json:"line,omitempty"`
	Rules []detect.Spec `json:"rules,omitempty"`
}

// wsResponse is one outbound frame. Exactly one response is written
// per request, in request order.
type wsResponse struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"session_id,omitempty"`
	Result    *core.ProcessingResult `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The endpoint carries no browser credentials; origin checks
		// add nothing here.
		return true
	},
}

// handleWebsocket runs one streaming logtest session per connection:
// upgrade opens a session, requests are served strictly in arrival
// order, and the session is torn down when the connection goes away
// for any reason.
func (a *API) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	sess, err := a.manager.Open()
	if err != nil {
		msg := wsResponse{Type: frameError, Error: err.Error()}
		data, _ := json.Marshal(msg)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, data)
		_ = conn.Close()
		return
	}

	c := &wsConn{api: a, conn: conn, sessionID: sess.ID}
	c.serve()
}

// wsConn is one live websocket session connection.
type wsConn struct {
	api       *API
	conn      *websocket.Conn
	sessionID string

	// writeMu serializes frames between the request loop and the ping
	// ticker.
	writeMu sync.Mutex
}

// serve runs the connection to completion. The read loop is the
// concurrency boundary: one request is fully processed and answered
// before the next is read, giving the per-session FIFO guarantee for
// free.
func (c *wsConn) serve() {
	defer func() {
		_ = c.api.manager.Close(c.sessionID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(stopPing)

	if err := c.write(wsResponse{Type: frameSession, SessionID: c.sessionID}); err != nil {
		return
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.api.logger.Debugw("WebSocket closed unexpectedly",
					"session_id", c.sessionID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := c.write(wsResponse{Type: frameError, Error: "malformed request frame"}); err != nil {
				return
			}
			continue
		}

		if err := c.handle(req); err != nil {
			return
		}
	}
}

// handle serves one request frame and writes exactly one response.
// A returned error means the connection is unusable.
func (c *wsConn) handle(req wsRequest) error {
	switch req.Type {
	case frameAnalyze:
		result, err := c.api.processor.Process(c.sessionID, req.Line)
		if err != nil {
			return c.write(wsResponse{Type: frameError, Error: engineErrorMessage(err)})
		}
		return c.write(wsResponse{Type: frameResult, SessionID: c.sessionID, Result: result})

	case framePatchRules:
		if err := c.api.processor.PatchRules(c.sessionID, req.Rules); err != nil {
			return c.write(wsResponse{Type: frameError, Error: engineErrorMessage(err)})
		}
		return c.write(wsResponse{Type: frameOK, SessionID: c.sessionID})

	default:
		return c.write(wsResponse{Type: frameError, Error: "unknown frame type"})
	}
}

func (c *wsConn) write(msg wsResponse) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// engineErrorMessage keeps client-visible error text stable for the
// sentinel errors and generic otherwise.
func engineErrorMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrUnknownSession),
		errors.Is(err, core.ErrSessionLimit),
		errors.Is(err, core.ErrMalformedRequest):
		return err.Error()
	default:
		return "internal error"
	}
}
