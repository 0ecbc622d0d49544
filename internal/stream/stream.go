// Package stream implements InputStream, the per-URL pull-style handle
// described in spec section 3/4.5: it holds the buffer queue, the ICY
// parser, a transfer handle, and the state (offset/size/MIME/seekable)
// a consumer reads under the stream's own mutex.
package stream

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/mpdgo/httpinput/internal/buffer"
	"github.com/mpdgo/httpinput/internal/errs"
	"github.com/mpdgo/httpinput/internal/headers"
	"github.com/mpdgo/httpinput/internal/icy"
	"github.com/mpdgo/httpinput/internal/iothread"
	"github.com/mpdgo/httpinput/internal/transfer"
)

// ErrNotHandled is returned by Open when the URL does not begin with
// "http://"; it is not a failure, it tells the host to try another
// input plugin, matching spec section 4.5's "not handled" outcome.
var ErrNotHandled = errors.New("stream: url not handled by this plugin")

// ErrClosed is returned by Read/Seek once the stream has been closed.
var ErrClosed = errors.New("stream: closed")

// InputStream is the per-URL handle. A single instance is touched by
// two sides per spec section 5: the consumer, who calls the exported
// methods, and the transfer side, which delivers callbacks (OnHeaderLine
// and OnWrite from the transfer's fetch goroutine, OnDone from the I/O
// thread bridge). Every field the consumer and the I/O thread both touch is
// guarded by mu; the ICY parser is only ever touched by the consumer
// during Read.
type InputStream struct {
	engine *transfer.Engine
	bridge *iothread.Bridge

	uri       string
	userAgent string

	mu   sync.Mutex
	cond *sync.Cond

	mime       string
	size       uint64
	haveSize   bool
	offset     uint64
	ready      bool
	seekable   bool
	closed     bool
	streamName string

	queue    buffer.Queue
	icyParse icy.Parser
	tag      *icy.Tag

	handle    *transfer.Handle
	paused    bool
	postponed *errs.Error
}

// Open allocates a stream for url and submits its first transfer via
// the I/O thread bridge. It returns ErrNotHandled if url does not begin
// with "http://", matching spec section 4.5's "let the host try another
// plugin" outcome. The stream may not yet be ready when Open returns.
func Open(engine *transfer.Engine, bridge *iothread.Bridge, url, userAgent string) (*InputStream, error) {
	if !strings.HasPrefix(url, "http://") {
		return nil, ErrNotHandled
	}

	s := &InputStream{
		engine:    engine,
		bridge:    bridge,
		uri:       url,
		userAgent: userAgent,
		seekable:  false,
	}
	s.cond = sync.NewCond(&s.mu)

	bridge.Call(func() {
		h, err := engine.Add(s, transfer.Request{URL: url, UserAgent: userAgent})
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.postponed = err
			s.ready = true
			s.cond.Broadcast()
			return
		}
		s.handle = h
	})

	return s, nil
}

// URI returns the stream's immutable source URL.
func (s *InputStream) URI() string { return s.uri }

// Ready reports whether the first bytes or first error have arrived.
func (s *InputStream) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// MIME returns the content type observed from headers, if any.
func (s *InputStream) MIME() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mime
}

// Size returns the total size and whether it is known.
func (s *InputStream) Size() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, s.haveSize
}

// BufferedBytes reports the buffer queue's current total size, the
// same figure backpressure accounting uses (spec section 4.1).
func (s *InputStream) BufferedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.TotalSize()
}

// Paused reports whether the underlying transfer is currently paused
// for backpressure.
func (s *InputStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// StreamName returns the ICY stream name observed from headers, if any.
func (s *InputStream) StreamName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamName
}

// Available reports whether a Read would return data without blocking
// on the network: a postponed error is pending, no transfer handle
// remains, or the buffer queue already holds bytes.
func (s *InputStream) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postponed != nil || s.handle == nil || !s.queue.Empty()
}

// Eof reports whether the transfer has finished and the buffer has
// fully drained.
func (s *InputStream) Eof() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle == nil && s.queue.Empty()
}

// Tag atomically takes and returns the pending ICY tag, leaving the
// stream's pending slot empty.
func (s *InputStream) Tag() *icy.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tag
	s.tag = nil
	return t
}

// Check takes the postponed error, if any, clearing it.
func (s *InputStream) Check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.postponed
	s.postponed = nil
	if err == nil {
		return nil
	}
	return err
}

// Read implements io.Reader, and spec section 4.5's Read operation:
// block while a transfer is active and the buffer is empty, drain the
// head buffer through the ICY parser, advance offset, surface a
// postponed error, and request Resume once the buffer has drained
// below the resume threshold. If a drain yields no audio bytes (the
// buffered chunk was entirely ICY metadata) while the transfer is
// still open, it re-blocks for more data instead of returning a
// spurious (0, nil).
func (s *InputStream) Read(dest []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if len(dest) == 0 {
		return 0, nil
	}

	for {
		for s.handle != nil && s.queue.Empty() {
			s.cond.Wait()
		}

		if s.postponed != nil {
			err := s.postponed
			s.postponed = nil
			return 0, err
		}

		n := s.drainLocked(dest)
		s.offset += uint64(n)

		wasPaused := s.paused
		belowResume := s.queue.BelowResumeThreshold()
		handle := s.handle
		if wasPaused && belowResume && handle != nil {
			s.paused = false
			s.mu.Unlock()
			s.bridge.Call(func() { s.engine.Resume(handle) })
			s.mu.Lock()
		}

		if n > 0 {
			return n, nil
		}
		if s.handle == nil && s.queue.Empty() {
			return 0, io.EOF
		}
		// drainLocked consumed only ICY metadata bytes with no audio
		// payload behind them; loop back and wait for more rather than
		// handing the caller a spurious zero read, matching the
		// original's do/while(nbytes == 0) retry around the same fill.
	}
}

// drainLocked copies bytes from the head buffer into dest through the
// ICY parser, alternating Data/Meta queries against the head buffer
// until dest is filled or the queue drains. Caller holds mu.
func (s *InputStream) drainLocked(dest []byte) int {
	copied := 0
	for copied < len(dest) && !s.queue.Empty() {
		head := s.queue.Head()
		src := head.Begin()
		if len(src) == 0 {
			s.queue.PopHead()
			continue
		}

		if !s.icyParse.Enabled() {
			n := len(dest) - copied
			if n > len(src) {
				n = len(src)
			}
			copy(dest[copied:], src[:n])
			copied += n
			if head.Consume(n) {
				s.queue.PopHead()
			}
			continue
		}

		want := len(dest) - copied
		if n := s.icyParse.Data(want); n > 0 {
			copy(dest[copied:], src[:n])
			copied += n
			if head.Consume(n) {
				s.queue.PopHead()
			}
			continue
		}

		n := s.icyParse.Meta(src, len(src))
		if n == 0 {
			// parser disabled mid-block is impossible; guard against
			// an infinite loop if state ever gets here regardless.
			break
		}
		if head.Consume(n) {
			s.queue.PopHead()
		}
		if t := s.icyParse.ReadTag(); t != nil {
			s.tag = t
		}
	}
	return copied
}

// Seek implements io.Seeker per spec section 4.5's Seek operation.
func (s *InputStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if !s.ready {
		s.mu.Unlock()
		return 0, errors.New("stream: not ready")
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(s.offset) + offset
	case io.SeekEnd:
		if !s.haveSize {
			s.mu.Unlock()
			return 0, errors.New("stream: size unknown, cannot seek from end")
		}
		target = int64(s.size) + offset
	default:
		s.mu.Unlock()
		return 0, errors.New("stream: invalid whence")
	}
	if target < 0 {
		s.mu.Unlock()
		return 0, errors.New("stream: negative seek target")
	}

	if uint64(target) == s.offset {
		s.mu.Unlock()
		return target, nil
	}
	if !s.seekable {
		s.mu.Unlock()
		return 0, errors.New("stream: not seekable")
	}

	if uint64(target) > s.offset {
		want := int(uint64(target) - s.offset)
		got := s.queue.FastForward(want)
		s.offset += uint64(got)
		if s.offset == uint64(target) {
			s.mu.Unlock()
			return target, nil
		}
	}

	if s.haveSize && uint64(target) == s.size {
		s.offset = uint64(target)
		s.queue.Clear()
		s.mu.Unlock()
		return target, nil
	}

	oldHandle := s.handle
	s.mu.Unlock()

	if oldHandle != nil {
		s.bridge.Call(func() { s.engine.Remove(oldHandle) })
	}

	s.mu.Lock()
	s.queue.Clear()
	s.offset = uint64(target)
	s.ready = false
	s.handle = nil
	s.paused = false
	s.icyParse = icy.Parser{}
	s.mu.Unlock()

	s.bridge.Call(func() {
		h, err := s.engine.Add(s, transfer.Request{
			URL:          s.uri,
			UserAgent:    s.userAgent,
			Range:        strconv.FormatUint(uint64(target), 10) + "-",
			IsSeekReopen: true,
		})
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.postponed = err
			s.ready = true
			s.cond.Broadcast()
			return
		}
		s.handle = h
	})

	s.mu.Lock()
	for !s.ready {
		s.cond.Wait()
	}
	err := s.postponed
	s.postponed = nil
	s.mu.Unlock()

	if err != nil {
		return 0, err
	}
	return target, nil
}

// Close removes the stream from the transfer engine on the I/O thread
// and releases its resources. It must not block on network I/O.
func (s *InputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle != nil {
		s.bridge.Call(func() { s.engine.Remove(handle) })
	}

	s.mu.Lock()
	s.queue.Clear()
	s.tag = nil
	s.streamName = ""
	s.mime = ""
	s.mu.Unlock()
	return nil
}

// The following methods implement transfer.Callbacks. They are invoked
// from the fetch goroutine (OnHeaderLine, OnWrite) or the I/O thread
// bridge (OnDone), never directly by the consumer.

// OnHeaderLine implements transfer.Callbacks. The header table's
// mutations (SetSeekable, SetSize, ...) touch the same fields Read
// observes under mu, so the whole line is handled with the stream
// locked.
func (s *InputStream) OnHeaderLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	headers.Handle(line, s)
}

// OnWrite implements transfer.Callbacks: it appends data to the buffer
// queue unless doing so would exceed the high watermark, in which case
// it refuses the chunk and marks the stream paused so the engine leaves
// the same bytes for a future retry.
func (s *InputStream) OnWrite(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.WouldExceedHighWatermark(len(data)) {
		s.paused = true
		return false
	}
	s.queue.Push(data)
	s.ready = true
	s.cond.Broadcast()
	return true
}

// OnDone implements transfer.Callbacks: it detaches the transfer
// handle, records a postponed error if any, marks the stream ready
// (so a Read blocked on an empty queue observes EOF or the error), and
// broadcasts.
func (s *InputStream) OnDone(err *errs.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = nil
	s.paused = false
	if err != nil {
		s.postponed = err
	}
	s.ready = true
	s.cond.Broadcast()
}

// The following methods implement headers.Target.

// SetSeekable implements headers.Target.
func (s *InputStream) SetSeekable(v bool) { s.seekable = v }

// SetSize implements headers.Target: size = offset + parsed
// content-length, per spec section 4.3.
func (s *InputStream) SetSize(contentLength uint64) {
	s.size = s.offset + contentLength
	s.haveSize = true
}

// SetMIME implements headers.Target.
func (s *InputStream) SetMIME(mime string) { s.mime = mime }

// SetStreamName implements headers.Target: it replaces the stream name
// and immediately publishes a Tag carrying just that name, per spec
// section 4.3's icy-name row.
func (s *InputStream) SetStreamName(name string) {
	s.streamName = name
	s.icyParse.SetStreamName(name)
	s.tag = &icy.Tag{Name: name}
}

// StartICY implements headers.Target.
func (s *InputStream) StartICY(interval int) {
	s.icyParse.Start(interval)
	s.seekable = false
}

// ICYEnabled implements headers.Target.
func (s *InputStream) ICYEnabled() bool { return s.icyParse.Enabled() }
