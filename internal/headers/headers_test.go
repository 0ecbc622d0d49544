package headers

import "testing"

type fakeTarget struct {
	seekable   bool
	size       uint64
	sizeSet    bool
	mime       string
	streamName string
	icyStarted bool
	icyInt     int
}

func (f *fakeTarget) SetSeekable(b bool)       { f.seekable = b }
func (f *fakeTarget) SetSize(n uint64)         { f.size = n; f.sizeSet = true }
func (f *fakeTarget) SetMIME(m string)         { f.mime = m }
func (f *fakeTarget) SetStreamName(n string)   { f.streamName = n }
func (f *fakeTarget) StartICY(interval int)    { f.icyStarted = true; f.icyInt = interval }
func (f *fakeTarget) ICYEnabled() bool         { return f.icyStarted }

func TestAcceptRangesMarksSeekable(t *testing.T) {
	var f fakeTarget
	Handle("Accept-Ranges: bytes", &f)
	if !f.seekable {
		t.Fatal("expected seekable")
	}
}

func TestAcceptRangesIgnoredWhenICYEnabled(t *testing.T) {
	f := fakeTarget{icyStarted: true}
	Handle("Accept-Ranges: bytes", &f)
	if f.seekable {
		t.Fatal("expected seekable to stay false once ICY is enabled")
	}
}

func TestContentLength(t *testing.T) {
	var f fakeTarget
	Handle("Content-Length: 1000000", &f)
	if !f.sizeSet || f.size != 1000000 {
		t.Fatalf("expected size 1000000, got %v (set=%v)", f.size, f.sizeSet)
	}
}

func TestContentType(t *testing.T) {
	var f fakeTarget
	Handle("Content-Type: audio/mpeg", &f)
	if f.mime != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg, got %q", f.mime)
	}
}

func TestICYName(t *testing.T) {
	var f fakeTarget
	Handle("icy-name: Example FM", &f)
	if f.streamName != "Example FM" {
		t.Fatalf("expected stream name, got %q", f.streamName)
	}
}

func TestICYMetaintStartsParser(t *testing.T) {
	var f fakeTarget
	Handle("icy-metaint: 8192", &f)
	if !f.icyStarted || f.icyInt != 8192 {
		t.Fatalf("expected ICY started with interval 8192, got started=%v interval=%d", f.icyStarted, f.icyInt)
	}
}

func TestICYMetaintZeroDoesNotEnableICY(t *testing.T) {
	var f fakeTarget
	Handle("icy-metaint: 0", &f)
	if f.icyStarted {
		t.Fatal("expected icy-metaint: 0 to leave ICY disabled")
	}
}

func TestMalformedLineWithoutColonIsSkipped(t *testing.T) {
	var f fakeTarget
	Handle("not a header", &f)
	if f.sizeSet || f.mime != "" || f.seekable {
		t.Fatal("expected malformed line to be a no-op")
	}
}

func TestOverlongNameIsSkipped(t *testing.T) {
	var f fakeTarget
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	Handle(string(long)+": value", &f)
	if f.mime != "" {
		t.Fatal("expected overlong header name to be skipped")
	}
}

func TestIsICYStatusLine(t *testing.T) {
	if !IsICYStatusLine("ICY 200 OK") {
		t.Fatal("expected ICY 200 OK to be recognized")
	}
	if IsICYStatusLine("HTTP/1.1 200 OK") {
		t.Fatal("expected normal HTTP status line to not match")
	}
}
