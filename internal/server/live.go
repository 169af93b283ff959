package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/canvas"
	"github.com/hyperjump/kiroku/internal/graph"
	"github.com/hyperjump/kiroku/internal/layout"
)

const (
	frameInterval = 16 * time.Millisecond // ~60 Hz
	writeWait     = 5 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = 30 * time.Second

	defaultCanvasWidth  = 800.0
	defaultCanvasHeight = 600.0
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checking is handled by the CORS middleware config; the canvas
	// client and API are served from the same origin in practice.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveInput is a client event on the live canvas socket.
type liveInput struct {
	Type      string  `json:"type"` // pointer_down, pointer_move, pointer_up, wheel, threshold, refresh
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	DeltaY    float64 `json:"deltaY,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// liveFrame is one outgoing state snapshot.
type liveFrame struct {
	Type      string        `json:"type"` // frame
	Iteration int           `json:"iteration"`
	Running   bool          `json:"running"`
	Threshold float64       `json:"threshold"`
	Selected  string        `json:"selected,omitempty"`
	Hovered   string        `json:"hovered,omitempty"`
	Scene     *canvas.Scene `json:"scene"`
}

// handleGraphLive runs an interactive canvas session over a websocket. One
// goroutine owns the canvas and engine; client input arrives through a
// channel, and frames stream back while the simulation runs.
func (s *Server) handleGraphLive(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", s.config.Graph.NodeLimitDefault)
	width := queryFloat(r, "width", defaultCanvasWidth)
	height := queryFloat(r, "height", defaultCanvasHeight)

	ns, err := s.builder.BuildNodes(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Full edge list at threshold -1 covers the whole cosine range, so later
	// threshold changes only ever narrow it locally.
	allEdges, err := s.builder.BuildEdges(r.Context(), ns, -1)
	if err != nil {
		if errors.Is(err, graph.ErrTooManyNodes) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("build edges failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	engine := layout.NewEngine(layout.DefaultParams(), time.Now().UnixNano())
	cv := canvas.New(width, height, s.config.Graph.EdgeCap, s.config.Graph.ThresholdDefault, engine)
	cv.SetData(ns.Nodes, allEdges)

	sess := &liveSession{
		server: s,
		conn:   conn,
		canvas: cv,
		inputs: make(chan liveInput, 64),
		done:   make(chan struct{}),
	}
	go sess.readLoop()
	sess.run(limit)
}

type liveSession struct {
	server *Server
	conn   *websocket.Conn
	canvas *canvas.Canvas
	inputs chan liveInput
	done   chan struct{}
}

// readLoop pumps client events into the session channel. It is the only
// reader on the connection.
func (ls *liveSession) readLoop() {
	defer close(ls.done)
	ls.conn.SetReadDeadline(time.Now().Add(pongWait))
	ls.conn.SetPongHandler(func(string) error {
		ls.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var input liveInput
		if err := ls.conn.ReadJSON(&input); err != nil {
			return
		}
		select {
		case ls.inputs <- input:
		default:
			// Drop input under backpressure rather than stall the reader.
		}
	}
}

// run owns the canvas. It steps the simulation on a ticker, applies inputs,
// and writes frames. It is the only writer on the connection.
func (ls *liveSession) run(limit int) {
	defer ls.conn.Close()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()

	// Initial frame so the client can paint before the first tick.
	if err := ls.writeFrame(); err != nil {
		return
	}

	for {
		select {
		case <-ls.done:
			return
		case input := <-ls.inputs:
			ls.apply(input, limit)
			if err := ls.writeFrame(); err != nil {
				return
			}
		case <-ticker.C:
			if ls.canvas.Engine().State() != layout.StateRunning {
				continue
			}
			ls.canvas.Engine().Step()
			if err := ls.writeFrame(); err != nil {
				return
			}
		case <-pinger.C:
			ls.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ls.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ls *liveSession) apply(input liveInput, limit int) {
	switch input.Type {
	case "pointer_down":
		ls.canvas.PointerDown(input.X, input.Y)
	case "pointer_move":
		ls.canvas.PointerMove(input.X, input.Y)
	case "pointer_up":
		ls.canvas.PointerUp(input.X, input.Y)
	case "wheel":
		ls.canvas.Wheel(input.X, input.Y, input.DeltaY)
	case "threshold":
		ls.canvas.SetThreshold(input.Threshold)
	case "refresh":
		ls.refresh(limit)
	}
}

// refresh rebuilds nodes and edges from storage and reseeds the canvas.
func (ls *liveSession) refresh(limit int) {
	ctx, cancel := contextWithTimeout()
	defer cancel()
	ns, err := ls.server.builder.BuildNodes(ctx, limit)
	if err != nil {
		ls.server.logger.Warn("live refresh: build nodes failed", zap.Error(err))
		return
	}
	allEdges, err := ls.server.builder.BuildEdges(ctx, ns, -1)
	if err != nil {
		ls.server.logger.Warn("live refresh: build edges failed", zap.Error(err))
		return
	}
	ls.canvas.SetData(ns.Nodes, allEdges)
}

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (ls *liveSession) writeFrame() error {
	engine := ls.canvas.Engine()
	frame := liveFrame{
		Type:      "frame",
		Iteration: engine.Iteration(),
		Running:   engine.State() == layout.StateRunning,
		Threshold: ls.canvas.Threshold(),
		Selected:  ls.canvas.Selected(),
		Hovered:   ls.canvas.Hovered(),
		Scene:     ls.canvas.Scene(),
	}
	ls.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ls.conn.WriteJSON(frame)
}
