package web

import (
	"net/http"
	"strings"

	"github.com/raine/tix-seo-studio/internal/history"
	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/studio"
	"github.com/rs/zerolog/log"
)

type indexPage struct {
	MerchantID string
	Name       string
	Notes      string
	ImageURL   string
	Alert      string
	Outcome    *Outcome
}

type historyPage struct {
	Records []historyRow
	Alert   string
}

type historyRow struct {
	history.Record
	Slug string
}

type studioPage struct {
	MerchantID string
	Mode       studio.Mode
	Scene      string
	ImageURL   string
	Result     string
	Alert      string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	merchant := s.rememberedMerchant(r)
	s.render(w, http.StatusOK, "index.html", indexPage{
		MerchantID: merchant,
		Outcome:    s.lastOutcome(merchant),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	page := indexPage{
		MerchantID: strings.TrimSpace(r.FormValue("merchant_id")),
		Name:       strings.TrimSpace(r.FormValue("name")),
		Notes:      strings.TrimSpace(r.FormValue("notes")),
		ImageURL:   strings.TrimSpace(r.FormValue("image_url")),
	}
	fail := func(status int, alert string) {
		page.Alert = alert
		page.Outcome = s.lastOutcome(page.MerchantID)
		s.render(w, status, "index.html", page)
	}

	img, err := s.formImage(r)
	if err != nil {
		log.Error().Err(err).Str("merchant", page.MerchantID).Msg("failed to read product image")
		fail(statusFor(err), alertGenerationFailed)
		return
	}
	if page.Name == "" || img == nil {
		fail(http.StatusBadRequest, alertMissingInput)
		return
	}

	release, err := s.gate.acquire(page.MerchantID)
	if err != nil {
		fail(statusFor(err), generationAlert(err))
		return
	}
	defer release()

	out, err := s.deps.Service.Generate(r.Context(), listing.ProductInput{
		MerchantID: page.MerchantID,
		Name:       page.Name,
		Notes:      page.Notes,
		Image:      img,
	})
	if err != nil {
		log.Error().Err(err).Str("merchant", page.MerchantID).Msg("generation failed")
		fail(statusFor(err), generationAlert(err))
		return
	}

	s.setLastOutcome(page.MerchantID, out)
	s.render(w, http.StatusOK, "index.html", indexPage{
		MerchantID: page.MerchantID,
		Outcome:    out,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "history.html", historyPage{Records: historyRows(s.deps.Memory.Records())})
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Memory.Clear(); err != nil {
		log.Error().Err(err).Msg("failed to clear history")
		s.render(w, http.StatusInternalServerError, "history.html", historyPage{
			Records: historyRows(s.deps.Memory.Records()),
			Alert:   alertHistoryFailed,
		})
		return
	}
	log.Info().Msg("history cleared")
	http.Redirect(w, r, "/history", http.StatusSeeOther)
}

func historyRows(records []history.Record) []historyRow {
	rows := make([]historyRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, historyRow{Record: rec, Slug: listing.URLSlug(rec.Title)})
	}
	return rows
}

func (s *Server) handleStudio(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "studio.html", studioPage{
		MerchantID: s.rememberedMerchant(r),
		Mode:       studio.ModeWhite,
	})
}

func (s *Server) handleStudioSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	page := studioPage{
		MerchantID: strings.TrimSpace(r.FormValue("merchant_id")),
		Scene:      strings.TrimSpace(r.FormValue("scene")),
		ImageURL:   strings.TrimSpace(r.FormValue("image_url")),
		Mode:       studio.ModeWhite,
	}
	fail := func(status int, alert string) {
		page.Alert = alert
		s.render(w, status, "studio.html", page)
	}

	mode, err := studio.ParseMode(r.FormValue("mode"))
	if err != nil {
		fail(http.StatusBadRequest, alertStudioFailed)
		return
	}
	page.Mode = mode

	img, err := s.formImage(r)
	if err != nil {
		log.Error().Err(err).Msg("failed to read studio image")
		fail(statusFor(err), alertStudioFailed)
		return
	}
	if img == nil {
		fail(http.StatusBadRequest, alertStudioMissing)
		return
	}

	release, err := s.gate.acquire(page.MerchantID)
	if err != nil {
		fail(statusFor(err), studioAlert(err))
		return
	}
	defer release()

	result, err := s.deps.Studio.Render(r.Context(), mode, img, page.Scene)
	if err != nil {
		log.Error().Err(err).Str("mode", string(mode)).Msg("studio generation failed")
		fail(statusFor(err), studioAlert(err))
		return
	}
	page.Result = result
	s.render(w, http.StatusOK, "studio.html", page)
}
