package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/media"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
	"github.com/Thompson6626/SRT-Transcriber/internal/transcription"
	"github.com/Thompson6626/SRT-Transcriber/internal/translate"
)

// SubRipContentType is served with every artifact.
const SubRipContentType = "application/x-subrip"

const (
	fieldFile       = "file"
	fieldLanguage   = "language_code"
	fieldTargetLang = "destination_language_code"
)

// transcribe handles POST /transcribe/srt, /srt-romaji and /srt-translated.
func (h *Handler) transcribe(mode transcription.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := h.parseRequest(c, mode)
		if err != nil {
			h.fail(c, err)
			return
		}

		ctx := c.Request.Context()
		if h.requestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
			defer cancel()
		}

		res, err := h.processor.Process(ctx, req)
		if err != nil {
			h.fail(c, err)
			return
		}

		logger := observability.LoggerFromContext(ctx)
		logger.Info().
			Str("mode", string(mode)).
			Str("artifact", res.Path).
			Dur("elapsed", res.Elapsed).
			Msg("Transcription completed")

		// Serve the bytes this request rendered; another job with the same
		// stem may already have replaced the file at res.Path.
		c.Header("Content-Disposition", attachmentDisposition(res.Filename))
		c.Data(http.StatusOK, SubRipContentType, res.Content)
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// attachmentDisposition builds the header gin's FileAttachment would send.
func attachmentDisposition(filename string) string {
	for _, r := range filename {
		if r > unicode.MaxASCII {
			return `attachment; filename*=UTF-8''` + url.QueryEscape(filename)
		}
	}
	return `attachment; filename="` + quoteEscaper.Replace(filename) + `"`
}

func (h *Handler) parseRequest(c *gin.Context, mode transcription.Mode) (transcription.Request, error) {
	const op = "parse"

	source := formValue(c, fieldLanguage)
	target := formValue(c, fieldTargetLang)

	if source != "" && !translate.ValidLanguage(source) {
		return transcription.Request{}, apperr.New(apperr.KindInvalidRequest, "", op,
			"%s %q must be 2-5 lowercase letters", fieldLanguage, source)
	}
	if mode == transcription.ModeTranslated {
		if source == "" || target == "" {
			return transcription.Request{}, apperr.New(apperr.KindInvalidRequest, "", op,
				"%s and %s are required", fieldLanguage, fieldTargetLang)
		}
		if !translate.ValidLanguage(target) {
			return transcription.Request{}, apperr.New(apperr.KindInvalidRequest, "", op,
				"%s %q must be 2-5 lowercase letters", fieldTargetLang, target)
		}
	}

	fh, err := c.FormFile(fieldFile)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return transcription.Request{}, apperr.Wrap(apperr.KindInvalidRequest, "", op,
				fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit))
		}
		return transcription.Request{}, apperr.New(apperr.KindInvalidRequest, "", op, "multipart field %q is required", fieldFile)
	}

	f, err := fh.Open()
	if err != nil {
		return transcription.Request{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return transcription.Request{}, fmt.Errorf("read upload: %w", err)
	}

	return transcription.Request{
		Mode:       mode,
		Upload:     media.Upload{Filename: fh.Filename, Content: content},
		SourceLang: source,
		TargetLang: target,
	}, nil
}

// formValue reads a multipart field, falling back to the query string.
func formValue(c *gin.Context, name string) string {
	if v, ok := c.GetPostForm(name); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(c.Query(name))
}

type pairView struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	SourceName string `json:"source_name"`
	TargetName string `json:"target_name"`
	Model      string `json:"model"`
}

// languages handles GET /transcribe/languages.
func (h *Handler) languages(c *gin.Context) {
	pairs := h.registry.Pairs()
	out := make([]pairView, 0, len(pairs))
	for _, p := range pairs {
		model, _ := h.registry.Model(p)
		out = append(out, pairView{
			Source:     p.Source,
			Target:     p.Target,
			SourceName: translate.LanguageName(p.Source),
			TargetName: translate.LanguageName(p.Target),
			Model:      model,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pairs": out})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	kind := apperr.KindOf(err)
	reason := apperr.ReasonOf(err)

	detail := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		detail = "request timed out"
	case kind == apperr.KindInternal:
		detail = "internal error"
	}

	logger := observability.LoggerFromContext(c.Request.Context())
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Str("kind", string(kind)).Int("status", status).Msg("Transcription request failed")

	c.AbortWithStatusJSON(status, errorBody(kind, reason, detail))
}

func errorBody(kind apperr.Kind, reason apperr.Reason, detail string) gin.H {
	body := gin.H{"kind": string(kind), "detail": detail}
	if reason != "" {
		body["reason"] = string(reason)
	}
	return gin.H{"success": false, "error": body}
}

// StatusFor maps a pipeline failure to an HTTP status.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusUnsupportedMediaType
	case apperr.KindInvalidRequest, apperr.KindUnsupportedLanguagePair:
		return http.StatusBadRequest
	case apperr.KindConversion:
		return http.StatusUnprocessableEntity
	case apperr.KindRecognition:
		if apperr.ReasonOf(err) == apperr.ReasonEmptySegments {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	case apperr.KindTransform:
		return http.StatusBadGateway
	case apperr.KindSerialization:
		return http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
