package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/media"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
	"github.com/Thompson6626/SRT-Transcriber/internal/transcription"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	dir string
	err error
	// clobber, when set, replaces the artifact after it is written, as a
	// concurrent job with the same stem would.
	clobber string
	panics  bool

	mu   sync.Mutex
	reqs []transcription.Request
}

func (p *fakeProcessor) Process(ctx context.Context, req transcription.Request) (transcription.Result, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()

	if p.panics {
		panic("processor exploded")
	}
	if p.err != nil {
		return transcription.Result{}, p.err
	}
	name := media.Stem(req.Upload.Filename) + ".srt"
	path := filepath.Join(p.dir, name)
	body := fmt.Sprintf("1\n00:00:00,000 --> 00:00:01,000\n%s %s\n\n", req.Mode, req.SourceLang)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return transcription.Result{}, err
	}
	if p.clobber != "" {
		if err := os.WriteFile(path, []byte(p.clobber), 0o644); err != nil {
			return transcription.Result{}, err
		}
	}
	return transcription.Result{Path: path, Filename: name, Content: []byte(body)}, nil
}

func (p *fakeProcessor) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reqs)
}

func newTestRouter(t *testing.T, p *fakeProcessor, opts Options) *gin.Engine {
	t.Helper()
	if p.dir == "" {
		p.dir = t.TempDir()
	}
	opts.Processor = p
	return NewRouter(NewHandler(opts))
}

func multipartRequest(t *testing.T, target, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type errorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Kind   string `json:"kind"`
		Reason string `json:"reason"`
		Detail string `json:"detail"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid error body %q: %v", rec.Body.String(), err)
	}
	if body.Success {
		t.Error("Expected success=false")
	}
	return body
}

func TestTranscribe_ServesArtifact(t *testing.T) {
	p := &fakeProcessor{}
	r := newTestRouter(t, p, Options{})

	req := multipartRequest(t, "/transcribe/srt", "clip.mp4", []byte("video"), map[string]string{"language_code": "en"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != SubRipContentType {
		t.Errorf("Unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="clip.srt"` {
		t.Errorf("Unexpected content disposition %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "direct en") {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
	if rec.Header().Get(observability.RequestIDHeader) == "" {
		t.Error("Expected a generated request ID")
	}

	got := p.reqs[0]
	if got.Upload.Filename != "clip.mp4" || string(got.Upload.Content) != "video" {
		t.Errorf("Upload not passed through: %+v", got.Upload)
	}
}

func TestTranscribe_ServesOwnContentWhenStemCollides(t *testing.T) {
	p := &fakeProcessor{clobber: "1\n00:00:00,000 --> 00:00:01,000\nsomeone else\n\n"}
	r := newTestRouter(t, p, Options{})

	req := multipartRequest(t, "/transcribe/srt", "clip.mp4", []byte("video"), map[string]string{"language_code": "en"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if want := "1\n00:00:00,000 --> 00:00:01,000\ndirect en\n\n"; rec.Body.String() != want {
		t.Errorf("Expected this request's subtitles %q, got %q", want, rec.Body.String())
	}
}

func TestAttachmentDisposition(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"clip.srt", `attachment; filename="clip.srt"`},
		{`say "hi".srt`, `attachment; filename="say \"hi\".srt"`},
		{"講義 1.srt", `attachment; filename*=UTF-8''%E8%AC%9B%E7%BE%A9+1.srt`},
	}
	for _, tt := range tests {
		if got := attachmentDisposition(tt.in); got != tt.want {
			t.Errorf("attachmentDisposition(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTranscribe_RecoversFromPanic(t *testing.T) {
	r := newTestRouter(t, &fakeProcessor{panics: true}, Options{})

	req := multipartRequest(t, "/transcribe/srt", "clip.mp3", []byte("audio"), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Kind != string(apperr.KindInternal) || body.Error.Detail != "internal error" {
		t.Errorf("Unexpected error body %+v", body.Error)
	}
}

func TestTranscribe_RoutesSelectMode(t *testing.T) {
	p := &fakeProcessor{}
	r := newTestRouter(t, p, Options{})

	tests := []struct {
		path   string
		fields map[string]string
		want   transcription.Mode
	}{
		{"/transcribe/srt", nil, transcription.ModeDirect},
		{"/transcribe/srt-romaji", nil, transcription.ModeRomanized},
		{"/transcribe/srt-translated", map[string]string{"language_code": "ja", "destination_language_code": "en"}, transcription.ModeTranslated},
	}
	for i, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, multipartRequest(t, tt.path, "a.mp3", []byte("x"), tt.fields))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", tt.path, rec.Code, rec.Body.String())
		}
		if got := p.reqs[i].Mode; got != tt.want {
			t.Errorf("%s: expected mode %q, got %q", tt.path, tt.want, got)
		}
	}
	if tr := p.reqs[2]; tr.SourceLang != "ja" || tr.TargetLang != "en" {
		t.Errorf("Translated languages not passed: %+v", tr)
	}
}

func TestTranscribe_LanguageFromQuery(t *testing.T) {
	p := &fakeProcessor{}
	r := newTestRouter(t, p, Options{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/transcribe/srt?language_code=ru", "a.mp3", []byte("x"), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if p.reqs[0].SourceLang != "ru" {
		t.Errorf("Expected query fallback, got %q", p.reqs[0].SourceLang)
	}
}

func TestTranscribe_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		filename string
		fields   map[string]string
	}{
		{"bad language", "/transcribe/srt", "a.mp3", map[string]string{"language_code": "EN-us"}},
		{"missing file", "/transcribe/srt", "", map[string]string{"language_code": "en"}},
		{"missing destination", "/transcribe/srt-translated", "a.mp3", map[string]string{"language_code": "ja"}},
		{"missing source", "/transcribe/srt-translated", "a.mp3", map[string]string{"destination_language_code": "en"}},
		{"bad destination", "/transcribe/srt-translated", "a.mp3", map[string]string{"language_code": "ja", "destination_language_code": "english"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{}
			r := newTestRouter(t, p, Options{})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, multipartRequest(t, tt.path, tt.filename, []byte("x"), tt.fields))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if body := decodeError(t, rec); body.Error.Kind != string(apperr.KindInvalidRequest) {
				t.Errorf("Expected InvalidRequest, got %+v", body.Error)
			}
			if p.calls() != 0 {
				t.Error("Processor must not run for an invalid request")
			}
		})
	}
}

func TestTranscribe_UploadTooLarge(t *testing.T) {
	p := &fakeProcessor{}
	r := newTestRouter(t, p, Options{MaxUploadBytes: 256})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/transcribe/srt", "a.mp3", bytes.Repeat([]byte("x"), 4096), nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if p.calls() != 0 {
		t.Error("Processor must not run for an oversized upload")
	}
}

func TestTranscribe_PipelineErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   apperr.Kind
		reason apperr.Reason
	}{
		{apperr.New(apperr.KindValidation, apperr.ReasonUnsupportedExtension, "validate", "extension \".txt\""), 415, apperr.KindValidation, apperr.ReasonUnsupportedExtension},
		{apperr.New(apperr.KindConversion, "", "normalize", "bad data"), 422, apperr.KindConversion, ""},
		{apperr.New(apperr.KindRecognition, apperr.ReasonEmptySegments, "recognize", "no speech"), 422, apperr.KindRecognition, apperr.ReasonEmptySegments},
		{apperr.Wrap(apperr.KindRecognition, apperr.ReasonEngineFailure, "recognize", errors.New("boom")), 502, apperr.KindRecognition, apperr.ReasonEngineFailure},
		{apperr.New(apperr.KindUnsupportedLanguagePair, "", "translate", "de-en"), 400, apperr.KindUnsupportedLanguagePair, ""},
		{apperr.Wrap(apperr.KindTransform, apperr.ReasonTranslationFailure, "translate", errors.New("x")), 502, apperr.KindTransform, apperr.ReasonTranslationFailure},
		{apperr.Wrap(apperr.KindSerialization, "", "serialize", errors.New("disk full")), 500, apperr.KindSerialization, ""},
		{errors.New("secret internals"), 500, apperr.KindInternal, ""},
		{context.DeadlineExceeded, 504, apperr.KindInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			p := &fakeProcessor{err: tt.err}
			r := newTestRouter(t, p, Options{})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, multipartRequest(t, "/transcribe/srt", "a.mp3", []byte("x"), nil))

			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, rec.Code)
			}
			body := decodeError(t, rec)
			if body.Error.Kind != string(tt.kind) || body.Error.Reason != string(tt.reason) {
				t.Errorf("Unexpected error body %+v", body.Error)
			}
			if strings.Contains(body.Error.Detail, "secret") {
				t.Errorf("Internal detail leaked: %q", body.Error.Detail)
			}
		})
	}
}

func TestTranscribe_HonorsRequestID(t *testing.T) {
	p := &fakeProcessor{}
	r := newTestRouter(t, p, Options{})

	req := multipartRequest(t, "/transcribe/srt", "a.mp3", []byte("x"), nil)
	req.Header.Set(observability.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get(observability.RequestIDHeader); got != "req-123" {
		t.Errorf("Expected request ID to be echoed, got %q", got)
	}
}

func TestLanguages(t *testing.T) {
	r := newTestRouter(t, &fakeProcessor{}, Options{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcribe/languages", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Success bool       `json:"success"`
		Pairs   []pairView `json:"pairs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || len(body.Pairs) != 8 {
		t.Fatalf("Unexpected body %+v", body)
	}
	first := body.Pairs[0]
	if first.Source != "en" || first.Target != "es" || first.Model != "Helsinki-NLP/opus-mt-en-es" || first.TargetName != "Spanish" {
		t.Errorf("Unexpected first pair %+v", first)
	}
}

func TestHealthAndReady(t *testing.T) {
	checks := map[string]observability.HealthCheckFunc{
		"ffmpeg": func(ctx context.Context) (bool, error) { return false, errors.New("not found") },
	}
	r := newTestRouter(t, &fakeProcessor{}, Options{ReadyChecks: checks, MetricsEnabled: true})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected /health 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected /ready 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected /metrics 200, got %d", rec.Code)
	}
}

func TestMetricsDisabled(t *testing.T) {
	r := newTestRouter(t, &fakeProcessor{}, Options{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when metrics are disabled, got %d", rec.Code)
	}
}
