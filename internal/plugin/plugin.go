// Package plugin implements the facade from spec section 4.7/6: one
// process-wide registry constructed at Init and torn down at Finish,
// and the table of operations ("open", "close", "check", "tag",
// "available", "read", "eof", "seek") a host dispatches by name.
package plugin

import (
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mpdgo/httpinput/internal/config"
	"github.com/mpdgo/httpinput/internal/icy"
	"github.com/mpdgo/httpinput/internal/iothread"
	"github.com/mpdgo/httpinput/internal/stream"
	"github.com/mpdgo/httpinput/internal/transfer"
)

// Name is the operation-table key the host dispatches this plugin by,
// matching the original input_plugin's "curl" name.
const Name = "curl"

// UserAgent is the User-Agent every transfer is opened with.
const UserAgent = "httpinput/1.0"

// ErrNotInitialized is returned by any operation called before Init, or
// after Finish.
var ErrNotInitialized = errors.New("plugin: not initialized")

// ErrActiveStreamsRemain is returned by Finish if any stream opened by
// this facade has not yet been closed, matching spec section 4.7's
// "Finish asserts the active list is empty".
var ErrActiveStreamsRemain = errors.New("plugin: active streams remain open")

// Facade is the process-wide registry: the transfer engine, the I/O
// thread bridge, and the set of streams this facade has opened. It is
// the reimplementation of spec section 9's "single long-lived registry
// whose construction is ordered with the I/O thread's start."
type Facade struct {
	log    *logrus.Logger
	bridge *iothread.Bridge
	engine *transfer.Engine

	mu      sync.Mutex
	streams map[*stream.InputStream]struct{}
}

// Init performs the one-time setup spec section 4.7 describes: it
// starts the I/O thread bridge, loads proxy settings (new block keys
// falling back to legacy global keys), and constructs the transfer
// engine on top of it. log may be nil, in which case a discard logger
// is installed.
func Init(block, legacy map[string]string, log *logrus.Logger) (*Facade, error) {
	settings, err := config.Load(block, legacy)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = logrus.New()
		log.Out = io.Discard
	}

	bridge := iothread.New()
	proxy := transfer.ProxyConfig{
		Host:     settings.ProxyHost,
		Port:     settings.ProxyPort,
		User:     settings.ProxyUser,
		Password: settings.ProxyPassword,
	}
	engine := transfer.NewEngine(bridge, log, proxy)

	log.WithFields(logrus.Fields{
		"proxy_configured": settings.ProxyHost != "",
	}).Info("httpinput plugin initialized")

	return &Facade{
		log:     log,
		bridge:  bridge,
		engine:  engine,
		streams: make(map[*stream.InputStream]struct{}),
	}, nil
}

// Finish asserts every stream this facade opened has been closed, then
// stops the I/O thread bridge. Per spec section 4.7 the active list
// must be empty at finish.
func (f *Facade) Finish() error {
	f.mu.Lock()
	n := len(f.streams)
	f.mu.Unlock()
	if n != 0 {
		return ErrActiveStreamsRemain
	}
	f.bridge.Stop()
	f.log.Info("httpinput plugin finished")
	return nil
}

// Open implements the "open" operation: it starts a transfer for url
// and registers the resulting stream so Finish can assert it was
// closed. Returns stream.ErrNotHandled unmodified when url is not an
// http:// URL.
func (f *Facade) Open(url string) (*stream.InputStream, error) {
	s, err := stream.Open(f.engine, f.bridge, url, UserAgent)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.streams[s] = struct{}{}
	f.mu.Unlock()
	return s, nil
}

// Close implements the "close" operation: it closes s and removes it
// from this facade's registry.
func (f *Facade) Close(s *stream.InputStream) error {
	err := s.Close()
	f.mu.Lock()
	delete(f.streams, s)
	f.mu.Unlock()
	return err
}

// Check implements the "check" operation.
func (f *Facade) Check(s *stream.InputStream) error {
	return s.Check()
}

// Tag implements the "tag" operation.
func (f *Facade) Tag(s *stream.InputStream) *icy.Tag {
	return s.Tag()
}

// Available implements the "available" operation.
func (f *Facade) Available(s *stream.InputStream) bool {
	return s.Available()
}

// Read implements the "read" operation.
func (f *Facade) Read(s *stream.InputStream, dest []byte) (int, error) {
	return s.Read(dest)
}

// Eof implements the "eof" operation.
func (f *Facade) Eof(s *stream.InputStream) bool {
	return s.Eof()
}

// Seek implements the "seek" operation.
func (f *Facade) Seek(s *stream.InputStream, offset int64, whence int) (int64, error) {
	return s.Seek(offset, whence)
}

// ActiveCount reports how many streams this facade currently has open,
// exposed for diagnostics and tests.
func (f *Facade) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

