package transfer

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mpdgo/httpinput/internal/errs"
	"github.com/mpdgo/httpinput/internal/iothread"
)

type recordingCallbacks struct {
	mu      sync.Mutex
	headers []string
	data    []byte
	done    chan *errs.Error
	accept  func([]byte) bool
}

func newRecordingCallbacks() *recordingCallbacks {
	return &recordingCallbacks{
		done:   make(chan *errs.Error, 1),
		accept: func([]byte) bool { return true },
	}
}

func (r *recordingCallbacks) OnHeaderLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = append(r.headers, line)
}

func (r *recordingCallbacks) OnWrite(data []byte) bool {
	if !r.accept(data) {
		return false
	}
	r.mu.Lock()
	r.data = append(r.data, data...)
	r.mu.Unlock()
	return true
}

func (r *recordingCallbacks) OnDone(err *errs.Error) {
	r.done <- err
}

func (r *recordingCallbacks) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

func waitDone(t *testing.T, cb *recordingCallbacks) *errs.Error {
	t.Helper()
	select {
	case err := <-cb.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnDone")
		return nil
	}
}

func TestEngineFetchesBodyAndHeaders(t *testing.T) {
	body := "hello world"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	bridge := iothread.New()
	defer bridge.Stop()
	engine := NewEngine(bridge, nil, ProxyConfig{})

	cb := newRecordingCallbacks()
	var handle *Handle
	bridge.Call(func() {
		h, err := engine.Add(cb, Request{URL: srv.URL, UserAgent: "test"})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		handle = h
	})
	_ = handle

	if err := waitDone(t, cb); err != nil {
		t.Fatalf("expected clean completion, got %v", err)
	}
	if string(cb.bytes()) != body {
		t.Fatalf("expected %q, got %q", body, cb.bytes())
	}

	found := false
	for _, h := range cb.headers {
		if h == "Content-Type: audio/mpeg" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Content-Type header, got %v", cb.headers)
	}
}

func TestEngineReportsHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	bridge := iothread.New()
	defer bridge.Stop()
	engine := NewEngine(bridge, nil, ProxyConfig{})

	cb := newRecordingCallbacks()
	bridge.Call(func() {
		if _, err := engine.Add(cb, Request{URL: srv.URL, UserAgent: "test"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	})

	err := waitDone(t, cb)
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	if err.Kind != errs.HttpStatus || err.Status != 404 {
		t.Fatalf("expected HttpStatus 404, got %+v", err)
	}
}

func TestEngineReportsRangeRejectedAfterSeek(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	bridge := iothread.New()
	defer bridge.Stop()
	engine := NewEngine(bridge, nil, ProxyConfig{})

	cb := newRecordingCallbacks()
	bridge.Call(func() {
		if _, err := engine.Add(cb, Request{URL: srv.URL, UserAgent: "test", Range: "500-", IsSeekReopen: true}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	})

	err := waitDone(t, cb)
	if err == nil || err.Kind != errs.RangeRejected {
		t.Fatalf("expected RangeRejected, got %+v", err)
	}
}

func TestEnginePausesAndResumes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			w.Write([]byte("chunk"))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	bridge := iothread.New()
	defer bridge.Stop()
	engine := NewEngine(bridge, nil, ProxyConfig{})

	cb := newRecordingCallbacks()
	var refused int32
	var mu sync.Mutex
	allow := false
	cb.accept = func([]byte) bool {
		mu.Lock()
		defer mu.Unlock()
		if !allow {
			refused++
			return false
		}
		return true
	}

	var handle *Handle
	bridge.Call(func() {
		h, _ := engine.Add(cb, Request{URL: srv.URL, UserAgent: "test"})
		handle = h
	})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	wasRefusing := refused > 0
	allow = true
	mu.Unlock()
	if !wasRefusing {
		t.Skip("environment delivered all data before pause could be observed")
	}

	bridge.Call(func() { engine.Resume(handle) })

	if err := waitDone(t, cb); err != nil {
		t.Fatalf("expected clean completion, got %v", err)
	}
	if string(cb.bytes()) != "chunkchunkchunkchunkchunk" {
		t.Fatalf("expected all chunks eventually delivered, got %q", cb.bytes())
	}
}

func TestEngineAbortAllDistributesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	bridge := iothread.New()
	defer bridge.Stop()
	engine := NewEngine(bridge, nil, ProxyConfig{})

	cb := newRecordingCallbacks()
	bridge.Call(func() {
		if _, err := engine.Add(cb, Request{URL: srv.URL, UserAgent: "test"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	})

	time.Sleep(20 * time.Millisecond)

	cause := errs.New(errs.EngineMulti, "engine failed")
	bridge.Call(func() { engine.AbortAll(cause) })

	err := waitDone(t, cb)
	if err != cause {
		t.Fatalf("expected the same cause to be delivered, got %v", err)
	}
	if engine.ActiveCount() != 0 {
		t.Fatal("expected active count to be 0 after AbortAll")
	}
}

func TestICYFixConnRewritesStatusLine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		reader.ReadString('\n')
		for {
			line, err := reader.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		conn.Write([]byte("ICY 200 OK\r\nContent-Type: audio/mpeg\r\nContent-Length: 5\r\n\r\nhello"))
	}()

	bridge := iothread.New()
	defer bridge.Stop()
	engine := NewEngine(bridge, nil, ProxyConfig{})

	cb := newRecordingCallbacks()
	bridge.Call(func() {
		if _, err := engine.Add(cb, Request{URL: "http://" + ln.Addr().String() + "/", UserAgent: "test"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	})

	if err := waitDone(t, cb); err != nil {
		t.Fatalf("expected ICY 200 OK to be accepted as success, got %v", err)
	}
	if string(cb.bytes()) != "hello" {
		t.Fatalf("expected body 'hello', got %q", cb.bytes())
	}
}
