package web

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{Nd}_-]+`)

// ListingLog writes one plain-text log file per merchant describing the
// latest generation cycle. A nil *ListingLog discards everything.
type ListingLog struct {
	dir string
}

// NewListingLog creates the log directory if needed.
func NewListingLog(dir string) (*ListingLog, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create listing log dir: %w", err)
	}
	return &ListingLog{dir: dir}, nil
}

// Path returns the log file path for a merchant. The readable part is
// sanitized; the suffix is derived from the raw id so distinct merchants
// never share a file.
func (l *ListingLog) Path(merchantID string) string {
	name := unsafeFileChars.ReplaceAllString(merchantID, "_")
	if name == "" || name == "_" {
		name = "anonymous"
	}
	suffix := uuid.NewSHA1(uuid.NameSpaceOID, []byte(merchantID)).String()[:8]
	return filepath.Join(l.dir, fmt.Sprintf("listing_%s_%s.log", name, suffix))
}

// Start truncates the merchant's log, starting a fresh one for generation id.
func (l *ListingLog) Start(merchantID, id string) {
	if l == nil {
		return
	}
	f, err := os.OpenFile(l.Path(merchantID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Error().Err(err).Str("merchant", merchantID).Msg("failed to start listing log")
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "=== Listing Log ===\nMerchant: %s\nGeneration: %s\nStarted: %s\n\n",
		merchantID, id, time.Now().Format("2006-01-02 15:04:05"))
}

func (l *ListingLog) appendLog(merchantID, prefix, msg string) {
	if l == nil {
		return
	}
	f, err := os.OpenFile(l.Path(merchantID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Str("merchant", merchantID).Msg("failed to write listing log")
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "[%s] %s %s\n", time.Now().Format("15:04:05"), prefix, msg)
}

// Input logs what the merchant submitted.
func (l *ListingLog) Input(merchantID, format string, args ...any) {
	l.appendLog(merchantID, "INPUT   ", fmt.Sprintf(format, args...))
}

// LLM logs model interactions.
func (l *ListingLog) LLM(merchantID, format string, args ...any) {
	l.appendLog(merchantID, "LLM     ", fmt.Sprintf(format, args...))
}

// Outcome logs the result of a cycle.
func (l *ListingLog) Outcome(merchantID, format string, args ...any) {
	l.appendLog(merchantID, "OUTCOME ", fmt.Sprintf(format, args...))
}

// Error logs failures.
func (l *ListingLog) Error(merchantID, format string, args ...any) {
	l.appendLog(merchantID, "ERROR   ", fmt.Sprintf(format, args...))
}
