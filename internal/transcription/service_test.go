package transcription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/media"
	"github.com/Thompson6626/SRT-Transcriber/internal/romaji"
	"github.com/Thompson6626/SRT-Transcriber/internal/stt"
)

type fakeRecognizer struct {
	segments []stt.Segment
	err      error
	calls    atomic.Int32
	gate     chan struct{}

	mu       sync.Mutex
	lastPath string
	lastOpts stt.Options
	sawFile  bool
}

func (r *fakeRecognizer) Name() string { return "fake" }

func (r *fakeRecognizer) Recognize(ctx context.Context, audioPath string, opts stt.Options) ([]stt.Segment, error) {
	r.calls.Add(1)
	_, statErr := os.Stat(audioPath)

	r.mu.Lock()
	r.lastPath = audioPath
	r.lastOpts = opts
	r.sawFile = statErr == nil
	r.mu.Unlock()

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.segments, nil
}

type fakeTranslator struct {
	supported map[string]bool
	err       error
	calls     atomic.Int32
}

func (f *fakeTranslator) Supports(src, dst string) bool {
	return f.supported[src+"-"+dst]
}

func (f *fakeTranslator) Translate(ctx context.Context, text, src, dst string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return strings.ToUpper(text), nil
}

type failingRomanizer struct{}

func (failingRomanizer) Name() string { return "failing" }

func (failingRomanizer) Romanize(ctx context.Context, text string) (string, error) {
	return "", errors.New("dictionary missing")
}

func newTestService(t *testing.T, rec stt.Recognizer, tr Translator) (*Service, string, string) {
	t.Helper()
	out := t.TempDir()
	tmp := t.TempDir()
	svc, err := NewService(Deps{
		Recognizer:        rec,
		Romanizer:         romaji.NewKana(),
		Translator:        tr,
		OutputDir:         out,
		TempDir:           tmp,
		MaxConcurrentJobs: 1,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, out, tmp
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected %s to be empty, found %v", dir, names)
	}
}

func TestTranscribeDirect(t *testing.T) {
	rec := &fakeRecognizer{segments: []stt.Segment{
		{Start: 0, End: 1.5, Text: " Hello world "},
		{Start: 1.5, End: 3.25, Text: "Second line"},
	}}
	svc, out, tmp := newTestService(t, rec, nil)

	path, err := svc.TranscribeDirect(context.Background(), []byte("mp3"), "clip.mp4", "en")
	if err != nil {
		t.Fatalf("TranscribeDirect: %v", err)
	}
	if path != filepath.Join(out, "clip.srt") {
		t.Errorf("Unexpected artifact path %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "1\n00:00:00,000 --> 00:00:01,500\nHello world\n\n" +
		"2\n00:00:01,500 --> 00:00:03,250\nSecond line\n\n"
	if string(data) != want {
		t.Errorf("Unexpected artifact:\n%q\nwant\n%q", data, want)
	}

	if !rec.sawFile {
		t.Error("Recognizer should see the spilled audio file")
	}
	if filepath.Dir(rec.lastPath) != tmp || filepath.Ext(rec.lastPath) != ".mp3" {
		t.Errorf("Audio spilled to unexpected path %q", rec.lastPath)
	}
	if rec.lastOpts != stt.DefaultOptions("en") {
		t.Errorf("Unexpected options %+v", rec.lastOpts)
	}
	assertEmptyDir(t, tmp)
}

func TestTranscribe_EmptySegmentsLeaveNothingBehind(t *testing.T) {
	rec := &fakeRecognizer{}
	svc, out, tmp := newTestService(t, rec, nil)

	_, err := svc.TranscribeDirect(context.Background(), []byte("mp3"), "silence.wav", "")
	if !errors.Is(err, apperr.ErrEmptySegments) {
		t.Fatalf("Expected EmptySegments, got %v", err)
	}
	assertEmptyDir(t, out)
	assertEmptyDir(t, tmp)
}

func TestTranscribe_EngineFailure(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("cuda out of memory")}
	svc, out, tmp := newTestService(t, rec, nil)

	_, err := svc.TranscribeDirect(context.Background(), []byte("mp3"), "a.mp3", "")
	if !errors.Is(err, apperr.ErrEngineFailure) {
		t.Fatalf("Expected EngineFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "cuda out of memory") {
		t.Errorf("Expected cause in error, got %v", err)
	}
	assertEmptyDir(t, out)
	assertEmptyDir(t, tmp)
}

func TestTranscribeRomanized_ASCIIOutput(t *testing.T) {
	rec := &fakeRecognizer{segments: []stt.Segment{
		{Start: 0, End: 2, Text: "こんにちは"},
		{Start: 2, End: 4, Text: "カタカナ です。"},
	}}
	svc, _, _ := newTestService(t, rec, nil)

	path, err := svc.TranscribeRomanized(context.Background(), []byte("mp3"), "anime.mkv", "")
	if err != nil {
		t.Fatalf("TranscribeRomanized: %v", err)
	}
	if rec.lastOpts.Language != DefaultRomanizedLanguage {
		t.Errorf("Expected default language %q, got %q", DefaultRomanizedLanguage, rec.lastOpts.Language)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range string(data) {
		if r > 0x7f {
			t.Fatalf("Non-ASCII rune %q at %d in %q", r, i, data)
		}
	}
	if !strings.Contains(string(data), "konnichiha") {
		t.Errorf("Expected romanized text, got %q", data)
	}
	if !strings.Contains(string(data), "00:00:02,000 --> 00:00:04,000") {
		t.Errorf("Timing must be preserved, got %q", data)
	}
}

func TestTranscribeRomanized_Failure(t *testing.T) {
	rec := &fakeRecognizer{segments: []stt.Segment{{Start: 0, End: 1, Text: "猫"}}}
	out := t.TempDir()
	svc, err := NewService(Deps{Recognizer: rec, Romanizer: failingRomanizer{}, OutputDir: out, TempDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.TranscribeRomanized(context.Background(), []byte("mp3"), "a.mp3", "ja")
	if !errors.Is(err, apperr.ErrRomanizationFailure) {
		t.Fatalf("Expected RomanizationFailure, got %v", err)
	}
	assertEmptyDir(t, out)
}

func TestTranscribeTranslated(t *testing.T) {
	rec := &fakeRecognizer{segments: []stt.Segment{{Start: 0.5, End: 1, Text: " hola "}}}
	tr := &fakeTranslator{supported: map[string]bool{"es-en": true}}
	svc, _, _ := newTestService(t, rec, tr)

	path, err := svc.TranscribeTranslated(context.Background(), []byte("mp3"), "talk.mp3", "es", "en")
	if err != nil {
		t.Fatalf("TranscribeTranslated: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "1\n00:00:00,500 --> 00:00:01,000\nHOLA\n\n" {
		t.Errorf("Unexpected artifact %q", data)
	}
	if tr.calls.Load() != 1 {
		t.Errorf("Expected one translation per segment, got %d", tr.calls.Load())
	}
}

func TestTranscribeTranslated_UnsupportedPairSkipsRecognition(t *testing.T) {
	rec := &fakeRecognizer{segments: []stt.Segment{{Start: 0, End: 1, Text: "x"}}}
	tr := &fakeTranslator{supported: map[string]bool{"es-en": true}}
	svc, out, tmp := newTestService(t, rec, tr)

	_, err := svc.TranscribeTranslated(context.Background(), []byte("mp3"), "a.mp3", "de", "en")
	if !errors.Is(err, apperr.ErrUnsupportedLanguagePair) {
		t.Fatalf("Expected UnsupportedLanguagePair, got %v", err)
	}
	if rec.calls.Load() != 0 {
		t.Errorf("Recognizer must not run for an unsupported pair, ran %d times", rec.calls.Load())
	}
	assertEmptyDir(t, out)
	assertEmptyDir(t, tmp)
}

func TestTranscribeTranslated_TranslatorFailure(t *testing.T) {
	rec := &fakeRecognizer{segments: []stt.Segment{{Start: 0, End: 1, Text: "x"}}}
	tr := &fakeTranslator{supported: map[string]bool{"en-fr": true}, err: errors.New("model crashed")}
	svc, out, _ := newTestService(t, rec, tr)

	_, err := svc.TranscribeTranslated(context.Background(), []byte("mp3"), "a.mp3", "en", "fr")
	if !errors.Is(err, apperr.ErrTranslationFailure) {
		t.Fatalf("Expected TranslationFailure, got %v", err)
	}
	assertEmptyDir(t, out)
}

func TestTranscribe_CancelWhileWaitingForSlot(t *testing.T) {
	rec := &fakeRecognizer{
		segments: []stt.Segment{{Start: 0, End: 1, Text: "x"}},
		gate:     make(chan struct{}),
	}
	svc, _, _ := newTestService(t, rec, nil)

	first := make(chan error, 1)
	go func() {
		_, err := svc.TranscribeDirect(context.Background(), []byte("mp3"), "first.mp3", "")
		first <- err
	}()

	deadline := time.After(2 * time.Second)
	for rec.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("First job never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := svc.TranscribeDirect(ctx, []byte("mp3"), "second.mp3", ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline while waiting for a slot, got %v", err)
	}
	if rec.calls.Load() != 1 {
		t.Errorf("Second job must not reach the recognizer")
	}

	close(rec.gate)
	if err := <-first; err != nil {
		t.Fatalf("First job failed: %v", err)
	}
}

func TestTranscribe_CancelledDuringRecognition(t *testing.T) {
	rec := &fakeRecognizer{gate: make(chan struct{})}
	svc, out, tmp := newTestService(t, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for rec.calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := svc.TranscribeDirect(ctx, []byte("mp3"), "a.mp3", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	assertEmptyDir(t, out)
	assertEmptyDir(t, tmp)
}

type fakeNormalizer struct {
	calls atomic.Int32
	err   error
}

func (n *fakeNormalizer) Normalize(ctx context.Context, upload media.Upload) ([]byte, error) {
	n.calls.Add(1)
	if n.err != nil {
		return nil, n.err
	}
	return []byte("mp3:" + upload.Filename), nil
}

func TestPipeline_Process(t *testing.T) {
	rec := &fakeRecognizer{segments: []stt.Segment{{Start: 0, End: 1, Text: "hi"}}}
	svc, out, _ := newTestService(t, rec, nil)
	norm := &fakeNormalizer{}
	p := NewPipeline(svc, norm)

	res, err := p.Process(context.Background(), Request{
		Mode:   ModeDirect,
		Upload: media.Upload{Filename: `C:\videos\Lecture 1.mov`, Content: []byte("raw")},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Filename != "Lecture 1.srt" || res.Path != filepath.Join(out, "Lecture 1.srt") {
		t.Errorf("Unexpected result %+v", res)
	}
	onDisk, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(res.Content) != string(onDisk) || string(res.Content) != "1\n00:00:00,000 --> 00:00:01,000\nhi\n\n" {
		t.Errorf("Content %q does not match artifact %q", res.Content, onDisk)
	}
}

func TestPipeline_ContentBelongsToRequest(t *testing.T) {
	rec := &fakeRecognizer{segments: []stt.Segment{{Start: 0, End: 1, Text: "first"}}}
	svc, _, _ := newTestService(t, rec, nil)
	p := NewPipeline(svc, &fakeNormalizer{})

	res, err := p.Process(context.Background(), Request{Mode: ModeDirect, Upload: media.Upload{Filename: "clip.mp3"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	rec.segments = []stt.Segment{{Start: 0, End: 1, Text: "second"}}
	again, err := p.Process(context.Background(), Request{Mode: ModeDirect, Upload: media.Upload{Filename: "clip.mp3"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Path != again.Path {
		t.Fatalf("Expected the same stem to map to one path, got %q and %q", res.Path, again.Path)
	}
	if !strings.Contains(string(res.Content), "first") || strings.Contains(string(res.Content), "second") {
		t.Errorf("First result content was replaced: %q", res.Content)
	}
	if !strings.Contains(string(again.Content), "second") {
		t.Errorf("Unexpected second content %q", again.Content)
	}
}

func TestPipeline_ValidationBeforeNormalize(t *testing.T) {
	rec := &fakeRecognizer{}
	svc, _, _ := newTestService(t, rec, nil)
	norm := &fakeNormalizer{}
	p := NewPipeline(svc, norm)

	_, err := p.Process(context.Background(), Request{
		Mode:   ModeDirect,
		Upload: media.Upload{Filename: "notes.txt", Content: []byte("x")},
	})
	if !errors.Is(err, apperr.ErrUnsupportedExtension) {
		t.Fatalf("Expected UnsupportedExtension, got %v", err)
	}
	if norm.calls.Load() != 0 || rec.calls.Load() != 0 {
		t.Error("Rejected upload must not be converted or recognized")
	}
}

func TestPipeline_UnsupportedExtensionBeforePairCheck(t *testing.T) {
	rec := &fakeRecognizer{}
	tr := &fakeTranslator{supported: map[string]bool{}}
	svc, _, _ := newTestService(t, rec, tr)
	norm := &fakeNormalizer{}
	p := NewPipeline(svc, norm)

	_, err := p.Process(context.Background(), Request{
		Mode:       ModeTranslated,
		Upload:     media.Upload{Filename: "clip.txt", Content: []byte("x")},
		SourceLang: "de",
		TargetLang: "en",
	})
	if !errors.Is(err, apperr.ErrUnsupportedExtension) {
		t.Fatalf("Expected UnsupportedExtension, got %v", err)
	}
	if norm.calls.Load() != 0 || rec.calls.Load() != 0 {
		t.Error("Rejected upload must not be converted or recognized")
	}
}

func TestPipeline_UnsupportedPairSkipsConversion(t *testing.T) {
	rec := &fakeRecognizer{}
	tr := &fakeTranslator{supported: map[string]bool{}}
	svc, _, _ := newTestService(t, rec, tr)
	norm := &fakeNormalizer{}
	p := NewPipeline(svc, norm)

	_, err := p.Process(context.Background(), Request{
		Mode:       ModeTranslated,
		Upload:     media.Upload{Filename: "a.mp3"},
		SourceLang: "xx",
		TargetLang: "yy",
	})
	if !errors.Is(err, apperr.ErrUnsupportedLanguagePair) {
		t.Fatalf("Expected UnsupportedLanguagePair, got %v", err)
	}
	if norm.calls.Load() != 0 {
		t.Error("Unsupported pair must be rejected before conversion")
	}
}

func TestPipeline_ConversionErrorPropagates(t *testing.T) {
	rec := &fakeRecognizer{}
	svc, _, _ := newTestService(t, rec, nil)
	convErr := apperr.New(apperr.KindConversion, "", "normalize", "invalid data found")
	p := NewPipeline(svc, &fakeNormalizer{err: convErr})

	_, err := p.Process(context.Background(), Request{Mode: ModeDirect, Upload: media.Upload{Filename: "a.wav"}})
	if !errors.Is(err, apperr.ErrConversion) {
		t.Fatalf("Expected ConversionError, got %v", err)
	}
	if rec.calls.Load() != 0 {
		t.Error("Recognizer must not run after a conversion failure")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"direct": ModeDirect, "romaji": ModeRomanized, "romanized": ModeRomanized, "translated": ModeTranslated} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("karaoke"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestNewService_RequiresRecognizerAndOutput(t *testing.T) {
	if _, err := NewService(Deps{OutputDir: "x"}); err == nil {
		t.Error("Expected error without recognizer")
	}
	if _, err := NewService(Deps{Recognizer: &fakeRecognizer{}}); err == nil {
		t.Error("Expected error without output dir")
	}
}
