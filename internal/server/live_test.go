package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/graph"
	"github.com/hyperjump/kiroku/internal/provider"
)

func dialLive(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/graph/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *liveFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame liveFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return &frame
}

// raggedMatrixClient returns matrix rows narrower than the node count.
type raggedMatrixClient struct {
	*provider.MockClient
}

func (c *raggedMatrixClient) SimilarityMatrix(ctx context.Context, vectors [][]float32) ([][]float64, error) {
	rows := make([][]float64, len(vectors))
	for i := range rows {
		rows[i] = []float64{1}
	}
	return rows, nil
}

func TestGraphLive_MatrixErrorIs500(t *testing.T) {
	env := newTestEnv(t)
	seedEmbedded(t, env, "first note", "second note", "third note")

	client := &raggedMatrixClient{MockClient: env.mock}
	env.server.builder = graph.NewBuilder(env.storage, client, env.server.config.Graph, zap.NewNop())

	w := env.do(t, http.MethodGet, "/api/v1/graph/live", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 for a malformed matrix", w.Code)
	}
}

func TestGraphLive_StreamsFrames(t *testing.T) {
	env := newTestEnv(t)
	seedEmbedded(t, env, "traced a deadlock", "wrote deadlock notes", "baked bread")

	conn := dialLive(t, env)

	frame := readFrame(t, conn)
	if frame.Type != "frame" {
		t.Fatalf("type = %q, want frame", frame.Type)
	}
	if frame.Scene == nil || len(frame.Scene.Nodes) != 3 {
		t.Fatalf("scene nodes = %+v, want 3", frame.Scene)
	}
	if !frame.Running {
		t.Error("simulation should be running after seeding")
	}

	// Frames keep arriving while the simulation runs, with advancing iterations.
	later := readFrame(t, conn)
	for i := 0; i < 50 && later.Iteration <= frame.Iteration && later.Running; i++ {
		later = readFrame(t, conn)
	}
	if later.Iteration <= frame.Iteration && later.Running {
		t.Errorf("iteration did not advance: %d -> %d", frame.Iteration, later.Iteration)
	}
}

func TestGraphLive_ThresholdInput(t *testing.T) {
	env := newTestEnv(t)
	seedEmbedded(t, env, "first note", "second note")

	conn := dialLive(t, env)
	readFrame(t, conn)

	// A threshold above max similarity drops every edge.
	if err := conn.WriteJSON(liveInput{Type: "threshold", Threshold: 1.1}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if frame.Threshold == 1.1 {
			if len(frame.Scene.Edges) != 0 {
				t.Errorf("edges = %d, want 0 above max similarity", len(frame.Scene.Edges))
			}
			return
		}
	}
	t.Fatal("threshold change never reflected in a frame")
}

func TestGraphLive_EmptyCorpus(t *testing.T) {
	env := newTestEnv(t)

	conn := dialLive(t, env)
	frame := readFrame(t, conn)
	if frame.Scene == nil || !frame.Scene.Empty {
		t.Errorf("expected empty-state scene, got %+v", frame.Scene)
	}
	if frame.Running {
		t.Error("empty corpus should not start a simulation")
	}
}
