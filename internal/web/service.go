package web

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raine/tix-seo-studio/internal/history"
	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/llm"
	"github.com/rs/zerolog/log"
)

// Generator produces an analysis result for a request.
type Generator interface {
	GenerateListing(ctx context.Context, req listing.GenerationRequest) (*listing.AnalysisResult, error)
}

// Outcome is one completed generation cycle.
type Outcome struct {
	ID          string
	Input       listing.ProductInput
	Result      *listing.AnalysisResult
	Derived     *listing.Derived // nil unless approved
	PriorCount  int
	Recorded    bool
	GeneratedAt time.Time
}

// ListingService runs a generation cycle: memory lookup, model call and
// history update.
type ListingService struct {
	memory *history.Memory
	gen    Generator
	logs   *ListingLog
	now    func() time.Time
}

// NewListingService creates a ListingService. logs may be nil.
func NewListingService(memory *history.Memory, gen Generator, logs *ListingLog) *ListingService {
	return &ListingService{memory: memory, gen: gen, logs: logs, now: time.Now}
}

// Generate runs one cycle for input. The history is only touched after an
// approved result; failures leave it unchanged.
func (s *ListingService) Generate(ctx context.Context, input listing.ProductInput) (*Outcome, error) {
	input.MerchantID = strings.TrimSpace(input.MerchantID)
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, llm.ErrEmptyName
	}

	id := uuid.NewString()
	if input.MerchantID != "" {
		if err := s.memory.SetLastMerchant(input.MerchantID); err != nil {
			log.Warn().Err(err).Str("merchant", input.MerchantID).Msg("failed to remember merchant")
		}
	}

	prior := s.memory.PriorDescriptions(input.MerchantID, input.Name)
	req := listing.GenerationRequest{
		Name:              input.Name,
		Notes:             input.Notes,
		Image:             input.Image,
		PriorDescriptions: prior,
	}

	s.logs.Start(input.MerchantID, id)
	s.logs.Input(input.MerchantID, "name=%q notes=%q image=%t", input.Name, input.Notes, input.Image != nil)
	s.logs.LLM(input.MerchantID, "generate listing with %d prior descriptions", len(prior))

	result, err := s.gen.GenerateListing(ctx, req)
	if err != nil {
		s.logs.Error(input.MerchantID, "generation failed: %v", err)
		return nil, fmt.Errorf("failed to generate listing: %w", err)
	}

	now := s.now()
	out := &Outcome{
		ID:          id,
		Input:       input,
		Result:      result,
		PriorCount:  len(prior),
		GeneratedAt: now,
	}

	if result.Approved() {
		derived := listing.Derive(result.ListingContent)
		out.Derived = &derived
	}

	recorded, err := s.memory.RecordApproved(input, result, now)
	if err != nil {
		s.logs.Error(input.MerchantID, "history update failed: %v", err)
		return nil, fmt.Errorf("failed to record listing: %w", err)
	}
	out.Recorded = recorded

	s.logs.Outcome(input.MerchantID, "status=%s seo=%d geo=%d sources=%d recorded=%t",
		result.Status, result.MerchantFeedback.SEOScore, result.MerchantFeedback.GEOScore,
		len(result.GroundingSources), recorded)

	log.Info().
		Str("id", id).
		Str("merchant", input.MerchantID).
		Str("status", string(result.Status)).
		Int("prior", len(prior)).
		Bool("recorded", recorded).
		Msg("generation cycle complete")

	return out, nil
}
