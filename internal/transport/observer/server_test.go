package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"colonysim.ai/internal/observerproto"
	"colonysim.ai/internal/sim/catalogs"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/tuning"
	"colonysim.ai/internal/sim/world"
)

func newWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	w, err := world.New(world.ConfigFromTuning("obs", tuning.Defaults()), cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func newServer(t *testing.T, w *world.World) *httptest.Server {
	s := NewServer(w, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observe", s.WSHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBootstrap(t *testing.T) {
	w := newWorld(t)
	srv := newServer(t, w)

	resp, err := http.Get(srv.URL + "/v1/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.WorldID != "obs" || b.ProtocolVersion != observerproto.Version || len(b.Blueprints) == 0 {
		t.Fatalf("bootstrap = %+v", b)
	}

	post, err := http.Post(srv.URL+"/v1/bootstrap", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status = %d", post.StatusCode)
	}
}

func TestObserveStreamsTicks(t *testing.T) {
	w := newWorld(t)
	if _, err := w.SpawnStorage(world.StorageSpec{Stock: map[string]int{"LOG": 10}}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	srv := newServer(t, w)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	sub := observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, IncludeEntities: true}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	msgs := make(chan observerproto.TickMsg, 16)
	go func() {
		for {
			var m observerproto.TickMsg
			if err := conn.ReadJSON(&m); err != nil {
				close(msgs)
				return
			}
			msgs <- m
		}
	}()

	deadline := time.After(3 * time.Second)
	for {
		if err := w.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		select {
		case m, ok := <-msgs:
			if !ok {
				t.Fatalf("connection closed")
			}
			if m.Type != "TICK" || m.Tick == 0 || m.EntityCount != 1 {
				t.Fatalf("tick msg = %+v", m)
			}
			if len(m.Entities) != 1 || m.Entities[0].Kind != string(entity.KindStorage) || m.Entities[0].Stock["LOG"] != 10 {
				t.Fatalf("entities = %+v", m.Entities)
			}
			return
		case <-deadline:
			t.Fatalf("no tick received")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestObserveRejectsBadHandshake(t *testing.T) {
	w := newWorld(t)
	srv := newServer(t, w)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]string{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("%s: got %v want %v", in, got, want)
		}
	}
}
