package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/config"
	"github.com/bryanchriswhite/GraphicsCapture/internal/orchestrator"
	"github.com/bryanchriswhite/GraphicsCapture/internal/output"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window/windowtest"
	"github.com/gorilla/websocket"
)

type fakeStatus struct {
	mu        sync.Mutex
	status    orchestrator.Status
	listeners []chan orchestrator.Event
	subs      chan struct{}
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{
		status: orchestrator.Status{
			State:   orchestrator.StateCapturing,
			RunID:   "run-1",
			Channel: "GameTex",
			Target:  &window.Target{Handle: 0x42, Title: "Game", Process: "game.exe"},
			Header:  output.Header{Width: 1280, Height: 720, Handle: 0x1000, Target: 0x42},
		},
		subs: make(chan struct{}, 4),
	}
}

func (f *fakeStatus) Status() orchestrator.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeStatus) Subscribe() chan orchestrator.Event {
	ch := make(chan orchestrator.Event, 4)
	f.mu.Lock()
	f.listeners = append(f.listeners, ch)
	f.mu.Unlock()
	f.subs <- struct{}{}
	return ch
}

func (f *fakeStatus) Unsubscribe(ch chan orchestrator.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.listeners {
		if l == ch {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (f *fakeStatus) emit(ev orchestrator.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listeners {
		l <- ev
	}
}

func (f *fakeStatus) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func TestStatusEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewServer(newFakeStatus(), nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS header missing")
	}

	var got orchestrator.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.State != orchestrator.StateCapturing || got.Header.Width != 1280 || got.Target == nil || got.Target.Handle != 0x42 {
		t.Fatalf("status = %+v", got)
	}
}

func TestWindowsEndpoint(t *testing.T) {
	b := windowtest.NewBackend(
		window.Info{Handle: 1, PID: 1, Title: "Game", Visible: true},
		window.Info{Handle: 2, PID: 1, Title: "hidden"},
	)
	locator := windowtest.NewLocator(b, windowtest.Processes{1: "game.exe"}, time.Millisecond)
	srv := httptest.NewServer(NewServer(newFakeStatus(), locator, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/windows")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got []window.Target
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Process != "game.exe" {
		t.Fatalf("windows = %+v, want the visible game window", got)
	}
}

func TestWindowsUnavailableWithoutLocator(t *testing.T) {
	srv := httptest.NewServer(NewServer(newFakeStatus(), nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/windows")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d, want 503", resp.StatusCode)
	}
}

func TestConfigEndpoint(t *testing.T) {
	mgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(NewServer(newFakeStatus(), nil, mgr).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/config")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got config.Config
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Handoff.SenderName != "GameCaptureWGC" {
		t.Fatalf("config = %+v", got)
	}

	post, err := http.Post(srv.URL+"/api/config", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST /api/config = %d, want 405", post.StatusCode)
	}
}

func TestEventsStream(t *testing.T) {
	status := newFakeStatus()
	srv := httptest.NewServer(NewServer(status, nil, nil).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}

	var first Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "status" || first.Status == nil || first.Status.RunID != "run-1" {
		t.Fatalf("first message = %+v, want status snapshot", first)
	}

	<-status.subs
	status.emit(orchestrator.Event{State: orchestrator.StateTargetLost, RunID: "run-1"})

	var next Message
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatal(err)
	}
	if next.Type != "event" || next.Event == nil || next.Event.State != orchestrator.StateTargetLost {
		t.Fatalf("event message = %+v", next)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for status.subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after client left")
		}
		time.Sleep(time.Millisecond)
	}
}
