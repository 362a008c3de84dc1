package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/app/orch"
	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

// Context keys set by the http identity middleware.
const (
	CtxUserID = "user_id"
	CtxGuest  = "guest"
)

const (
	defaultSendBuffer = 64
	writeWait         = 5 * time.Second
)

type SignalWSController struct {
	Orch       *orch.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func NewSignalWSController(o *orch.Orchestrator, readLimit int64, pingPeriod time.Duration) *SignalWSController {
	return &SignalWSController{
		Orch:       o,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
		SendBuffer: defaultSendBuffer,
	}
}

// WsSignalConn is the core.SignalConnection of one WebSocket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// identity builds the user of a new channel from what the http middleware
// resolved. A guest stays anonymous when clients may declare their own id.
func (ctl *SignalWSController) identity(c *gin.Context) domain.User {
	uid := c.GetString(CtxUserID)
	if c.GetBool(CtxGuest) && ctl.Orch.TrustClientIDs {
		uid = ""
	}
	u := domain.User{ID: domain.UserID(uid)}
	if err := u.SetDisplayName(c.Query("displayName")); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("display name ignored")
	}
	return u
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	connID := domain.NewConnectionID()
	user := ctl.identity(c)
	log.Info().Str("module", "signal").Str("conn_id", string(connID)).Str("user_id", string(user.ID)).Msg("new WS connection")

	buffer := ctl.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	conn := NewWsSignalConn(ws, buffer)

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Sessions.Bind(connID, user, conn, cancel)

	go ctl.writePump(ctx, connID, conn)
	go ctl.readPump(ctx, cancel, connID, conn)
}
