// Package streamplay adapts the demo mp3/oto playback pipeline to play
// directly from a stream.InputStream instead of a local file: this is
// the seam spec section 1 calls "the larger audio pipeline... external
// collaborators" made concrete for one such collaborator.
package streamplay

import (
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/mpdgo/httpinput/internal/icy"
	"github.com/mpdgo/httpinput/internal/stream"
)

const (
	sampleRate   = 44100
	channelCount = 2
	bitDepth     = 2 // 16-bit = 2 bytes
	bytesPerSec  = sampleRate * channelCount * bitDepth
)

// countingReader wraps an io.Reader and tracks bytes read: oto's Player
// only exposes a raw io.Reader, so this is where playback position is
// derived from.
type countingReader struct {
	reader io.Reader
	pos    int64
	mu     sync.Mutex
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	cr.mu.Lock()
	cr.pos += int64(n)
	cr.mu.Unlock()
	return n, err
}

func (cr *countingReader) Pos() int64 {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.pos
}

var (
	globalOtoCtx *oto.Context
	otoOnce      sync.Once
	otoInitErr   error
)

func initOto() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		}
		var ready chan struct{}
		globalOtoCtx, ready, otoInitErr = oto.NewContext(op)
		if otoInitErr == nil {
			<-ready
		}
	})
	return globalOtoCtx, otoInitErr
}

// Player decodes and plays an mp3 stream sourced from a
// stream.InputStream. Unlike the local-file player it never seeks the
// decoder and never knows a fixed duration up front: a live or
// indefinite-length HTTP stream has neither.
type Player struct {
	source  *stream.InputStream
	decoder *mp3.Decoder
	counter *countingReader
	otoCtx  *oto.Context
	player  *oto.Player

	mu     sync.Mutex
	volume float64
	paused bool
	closed bool
	done   chan struct{}
}

// New opens playback of an already-open input stream. The caller
// retains ownership of source and must Close it separately once the
// Player is done with it.
func New(source *stream.InputStream) (*Player, error) {
	dec, err := mp3.NewDecoder(source)
	if err != nil {
		return nil, err
	}

	ctx, err := initOto()
	if err != nil {
		return nil, err
	}

	cr := &countingReader{reader: dec}

	p := &Player{
		source:  source,
		decoder: dec,
		counter: cr,
		otoCtx:  ctx,
		volume:  0.8,
		done:    make(chan struct{}),
	}

	p.player = ctx.NewPlayer(cr)
	p.player.SetVolume(p.volume)
	p.player.Play()

	go p.monitor()

	return p, nil
}

// monitor watches the underlying input stream for end-of-stream (per
// spec section 4.5, transfer handle absent and buffer queue empty) and
// closes Done once oto has drained what it already buffered.
func (p *Player) monitor() {
	for {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}

		if p.source.Eof() && !p.player.IsPlaying() {
			close(p.done)
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// Done returns a channel that closes once the stream has ended and
// playback has drained.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// TogglePause toggles between play and pause.
func (p *Player) TogglePause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.player.Play()
		p.paused = false
	} else {
		p.player.Pause()
		p.paused = true
	}
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Position returns how far into the decoded audio playback has
// progressed.
func (p *Player) Position() time.Duration {
	pos := p.counter.Pos()
	secs := float64(pos) / float64(bytesPerSec)
	return time.Duration(secs * float64(time.Second))
}

// Volume returns the current volume (0.0 to 1.0).
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// AdjustVolume adjusts volume by delta, clamped to [0, 1].
func (p *Player) AdjustVolume(delta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.volume + delta
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volume = v
	p.player.SetVolume(v)
}

// Tag returns the most recently received ICY tag, if any.
func (p *Player) Tag() *icy.Tag {
	return p.source.Tag()
}

// StreamName returns the ICY stream name observed from headers.
func (p *Player) StreamName() string {
	return p.source.StreamName()
}

// MIME returns the content type observed from headers.
func (p *Player) MIME() string {
	return p.source.MIME()
}

// BufferedBytes reports the source stream's current buffered byte
// count, for a live view of the backpressure state.
func (p *Player) BufferedBytes() int {
	return p.source.BufferedBytes()
}

// SourcePaused reports whether the underlying transfer is currently
// paused for backpressure, distinct from the player's own Paused
// (a listener pause never touches the transfer).
func (p *Player) SourcePaused() bool {
	return p.source.Paused()
}

// Close stops playback. It does not close the underlying source
// stream; the caller does that once done with both.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.player.Pause()
}
