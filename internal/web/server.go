// Package web serves the merchant-facing listing form, the history and
// studio views, and a JSON API over the same operations.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/raine/tix-seo-studio/internal/history"
	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/media"
	"github.com/raine/tix-seo-studio/internal/studio"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
)

//go:embed templates/*.html
var templateFS embed.FS

var md = goldmark.New()

// maxUploadSize bounds multipart bodies: one image plus the text fields.
const maxUploadSize = media.DefaultMaxImageSize + 1<<20

// StudioRenderer renders studio variants of a product image as data URLs.
type StudioRenderer interface {
	Render(ctx context.Context, mode studio.Mode, img *media.Image, scene string) (string, error)
}

// ImageFetcher downloads an image by URL.
type ImageFetcher interface {
	Download(ctx context.Context, url string) (*media.Image, error)
}

// Deps are the collaborators of the server.
type Deps struct {
	Service       *ListingService
	Memory        *history.Memory
	Studio        StudioRenderer
	Images        ImageFetcher
	RatePerMinute int
	RateBurst     int
}

// Server is the HTTP surface.
type Server struct {
	deps  Deps
	pages map[string]*template.Template
	mux   *http.ServeMux
	gate  *merchantGate

	mu   sync.Mutex
	last map[string]*Outcome // last successful outcome per merchant
}

// New creates a Server and parses its templates.
func New(deps Deps) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"formatTime": formatTime,
		"safeURL":    func(s string) template.URL { return template.URL(s) },
		"scoreClass": scoreClass,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"index.html", "history.html", "studio.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		deps:  deps,
		pages: pages,
		mux:   http.NewServeMux(),
		gate:  newMerchantGate(deps.RatePerMinute, deps.RateBurst),
		last:  make(map[string]*Outcome),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return accessLog(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /generate", s.handleGenerate)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("POST /history/clear", s.handleHistoryClear)
	s.mux.HandleFunc("GET /studio", s.handleStudio)
	s.mux.HandleFunc("POST /studio", s.handleStudioSubmit)

	s.mux.HandleFunc("POST /api/listings", s.handleAPIGenerate)
	s.mux.HandleFunc("GET /api/history", s.handleAPIHistory)
	s.mux.HandleFunc("DELETE /api/history", s.handleAPIHistoryClear)
	s.mux.HandleFunc("POST /api/studio", s.handleAPIStudio)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *Server) lastOutcome(merchant string) *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[merchant]
}

func (s *Server) setLastOutcome(merchant string, out *Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[merchant] = out
}

// rememberedMerchant returns the merchant from the query string, falling
// back to the last merchant used.
func (s *Server) rememberedMerchant(r *http.Request) string {
	if m := strings.TrimSpace(r.URL.Query().Get("merchant")); m != "" {
		return m
	}
	m, err := s.deps.Memory.LastMerchant()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load last merchant")
	}
	return m
}

// formImage returns the uploaded image, the image behind image_url, or nil
// when neither was given.
func (s *Server) formImage(r *http.Request) (*media.Image, error) {
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		return media.Read(file, header.Header.Get("Content-Type"))
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		return nil, fmt.Errorf("%w: %v", media.ErrRead, err)
	}
	return s.fetchImage(r.Context(), r.FormValue("image_url"))
}

func (s *Server) fetchImage(ctx context.Context, url string) (*media.Image, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, nil
	}
	if s.deps.Images == nil {
		return nil, fmt.Errorf("%w: image URLs are not supported", media.ErrRead)
	}
	return s.deps.Images.Download(ctx, url)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("failed to render template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func scoreClass(score int) string {
	switch {
	case score >= 80:
		return "good"
	case score >= 50:
		return "fair"
	default:
		return "poor"
	}
}
