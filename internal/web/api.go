package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raine/tix-seo-studio/internal/history"
	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/llm"
	"github.com/raine/tix-seo-studio/internal/media"
	"github.com/raine/tix-seo-studio/internal/studio"
	"github.com/rs/zerolog/log"
)

// imagePayload is an image given inline (base64 in JSON) or by URL.
type imagePayload struct {
	ImageURL      string `json:"image_url,omitempty"`
	ImageData     []byte `json:"image_data,omitempty"`
	ImageMIMEType string `json:"image_mime_type,omitempty"`
}

type listingRequest struct {
	MerchantID string `json:"merchant_id"`
	Name       string `json:"name"`
	Notes      string `json:"notes"`
	imagePayload
}

type seoResponse struct {
	URLSlug         string                `json:"url_slug"`
	MetaDescription string                `json:"meta_description"`
	Schema          listing.ProductSchema `json:"schema"`
}

type listingResponse struct {
	ID string `json:"id"`
	*listing.AnalysisResult
	SEO               *seoResponse `json:"seo,omitempty"`
	PriorDescriptions int          `json:"prior_descriptions"`
	Recorded          bool         `json:"recorded"`
	GeneratedAt       time.Time    `json:"generated_at"`
}

type studioRequest struct {
	MerchantID string `json:"merchant_id"`
	Mode       string `json:"mode"`
	Scene      string `json:"scene"`
	imagePayload
}

type studioResponse struct {
	Mode  studio.Mode `json:"mode"`
	Image string      `json:"image"`
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxUploadSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) payloadImage(ctx context.Context, p imagePayload) (*media.Image, error) {
	if len(p.ImageData) > 0 {
		return media.FromBytes(p.ImageData, p.ImageMIMEType)
	}
	return s.fetchImage(ctx, p.ImageURL)
}

func (s *Server) handleAPIGenerate(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.MerchantID = strings.TrimSpace(req.MerchantID)
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, llm.ErrEmptyName)
		return
	}

	img, err := s.payloadImage(r.Context(), req.imagePayload)
	if err != nil {
		writeError(w, err)
		return
	}

	release, err := s.gate.acquire(req.MerchantID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	out, err := s.deps.Service.Generate(r.Context(), listing.ProductInput{
		MerchantID: req.MerchantID,
		Name:       req.Name,
		Notes:      req.Notes,
		Image:      img,
	})
	if err != nil {
		log.Error().Err(err).Str("merchant", req.MerchantID).Msg("generation failed")
		writeError(w, err)
		return
	}
	s.setLastOutcome(req.MerchantID, out)

	resp := listingResponse{
		ID:                out.ID,
		AnalysisResult:    out.Result,
		PriorDescriptions: out.PriorCount,
		Recorded:          out.Recorded,
		GeneratedAt:       out.GeneratedAt,
	}
	if out.Derived != nil {
		resp.SEO = &seoResponse{
			URLSlug:         out.Derived.URLSlug,
			MetaDescription: out.Derived.MetaDescription,
			Schema:          out.Derived.Schema,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	records := s.deps.Memory.Records()
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAPIHistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Memory.Clear(); err != nil {
		log.Error().Err(err).Msg("failed to clear history")
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIStudio(w http.ResponseWriter, r *http.Request) {
	var req studioRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode, err := studio.ParseMode(req.Mode)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	img, err := s.payloadImage(r.Context(), req.imagePayload)
	if err != nil {
		writeError(w, err)
		return
	}
	if img == nil {
		writeError(w, fmt.Errorf("%w: no image provided", media.ErrRead))
		return
	}

	release, err := s.gate.acquire(strings.TrimSpace(req.MerchantID))
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	result, err := s.deps.Studio.Render(r.Context(), mode, img, req.Scene)
	if err != nil {
		log.Error().Err(err).Str("mode", string(mode)).Msg("studio generation failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, studioResponse{Mode: mode, Image: result})
}
