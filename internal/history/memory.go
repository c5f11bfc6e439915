// Package history keeps the per merchant+product log of generated listings
// used to steer the model away from repeating itself.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	// Capacity is the maximum number of records kept; older ones are evicted.
	Capacity = 50

	// HistoryKey holds the JSON array of records, newest first.
	HistoryKey = "tix_history_log"
	// LastMerchantKey holds the last merchant identifier used in the form.
	LastMerchantKey = "tix_last_merchant_id"
)

// Record is one generated listing. Records are never modified after creation.
type Record struct {
	MerchantID  string `json:"merchantId"`
	ProductName string `json:"productName"`
	Title       string `json:"h1_title"`
	Description string `json:"description"`
	Timestamp   int64  `json:"timestamp"` // epoch milliseconds
}

// CreatedAt returns the record timestamp as a time.
func (r Record) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Memory is the history repository. It loads the log once and rewrites the
// whole log to the store on every mutation.
type Memory struct {
	store   storage.KVStore
	mu      sync.RWMutex
	records []Record
}

// NewMemory creates a Memory backed by store and loads the persisted log.
func NewMemory(store storage.KVStore) (*Memory, error) {
	m := &Memory{store: store}
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load replaces the in-memory log with the persisted one. A missing or
// unparseable value yields an empty log; only store failures are errors.
func (m *Memory) Load() error {
	raw, ok, err := m.store.Get(HistoryKey)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	var records []Record
	if ok {
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			log.Warn().Err(err).Msg("stored history is malformed, starting empty")
			records = nil
		}
	}
	if len(records) > Capacity {
		records = records[:Capacity]
	}

	m.mu.Lock()
	m.records = records
	m.mu.Unlock()

	log.Debug().Int("records", len(records)).Msg("history loaded")
	return nil
}

// Append prepends rec, evicts the oldest records beyond Capacity and persists.
func (m *Memory) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]Record, 0, min(len(m.records)+1, Capacity))
	next = append(next, rec)
	next = append(next, m.records...)
	if len(next) > Capacity {
		next = next[:Capacity]
	}

	if err := m.persist(next); err != nil {
		return err
	}
	m.records = next
	return nil
}

// Clear empties the log and removes the persisted value.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(HistoryKey); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	m.records = nil
	return nil
}

// Records returns a copy of the log, newest first.
func (m *Memory) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...)
}

// Len returns the number of records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Query returns up to listing.MaxPriorDescriptions records whose merchant and
// product name match exactly, newest first.
func (m *Memory) Query(merchantID, productName string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, r := range m.records {
		if r.MerchantID == merchantID && r.ProductName == productName {
			out = append(out, r)
			if len(out) == listing.MaxPriorDescriptions {
				break
			}
		}
	}
	return out
}

// PriorDescriptions returns the descriptions of Query, ready for a
// generation request.
func (m *Memory) PriorDescriptions(merchantID, productName string) []string {
	records := m.Query(merchantID, productName)
	descriptions := make([]string, 0, len(records))
	for _, r := range records {
		descriptions = append(descriptions, r.Description)
	}
	return descriptions
}

// RecordApproved appends a record for an approved result. Rejected results
// are ignored and report false.
func (m *Memory) RecordApproved(input listing.ProductInput, result *listing.AnalysisResult, now time.Time) (bool, error) {
	if !result.Approved() || result.ListingContent == nil {
		return false, nil
	}
	rec := Record{
		MerchantID:  input.MerchantID,
		ProductName: input.Name,
		Title:       result.ListingContent.Title,
		Description: result.ListingContent.Description,
		Timestamp:   now.UnixMilli(),
	}
	if err := m.Append(rec); err != nil {
		return false, err
	}
	return true, nil
}

// LastMerchant returns the last merchant identifier, or "" if none.
func (m *Memory) LastMerchant() (string, error) {
	id, _, err := m.store.Get(LastMerchantKey)
	if err != nil {
		return "", fmt.Errorf("failed to load last merchant: %w", err)
	}
	return id, nil
}

// SetLastMerchant remembers the merchant identifier for the next session.
func (m *Memory) SetLastMerchant(id string) error {
	if err := m.store.Set(LastMerchantKey, id); err != nil {
		return fmt.Errorf("failed to save last merchant: %w", err)
	}
	return nil
}

func (m *Memory) persist(records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := m.store.Set(HistoryKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist history: %w", err)
	}
	return nil
}
