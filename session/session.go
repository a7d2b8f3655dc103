// Package session holds the durable state of one research run: the free-text
// scratchpad carried between steps and the per-step digests used for novelty
// comparison and downstream synthesis.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sweetpotato0/deepresearch/errors"
)

// StepDigest is the compact, durable record of one completed step. It is
// created once per step after novelty filtering; a step re-run replaces it.
type StepDigest struct {
	StepID           int       `json:"step_id"`
	GoalText         string    `json:"goal_text"`
	Summary          string    `json:"summary"`
	PointsOfInterest []string  `json:"points_of_interest,omitempty"`
	NotableEvidence  []string  `json:"notable_evidence,omitempty"`
	TextUnits        []string  `json:"text_units,omitempty"`
	RevisionNotes    []string  `json:"revision_notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Record is one research session: scratchpad plus ordered digests.
type Record struct {
	ID         string         `json:"id"`
	Scratchpad string         `json:"scratchpad,omitempty"`
	Digests    []*StepDigest  `json:"digests,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewRecord creates an empty session record.
func NewRecord(id string) *Record {
	now := time.Now()
	return &Record{
		ID:        id,
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone creates a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cloned := *r
	if r.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			cloned.Metadata[k] = v
		}
	}
	if len(r.Digests) > 0 {
		cloned.Digests = make([]*StepDigest, len(r.Digests))
		for i, d := range r.Digests {
			dc := *d
			dc.PointsOfInterest = append([]string(nil), d.PointsOfInterest...)
			dc.NotableEvidence = append([]string(nil), d.NotableEvidence...)
			dc.TextUnits = append([]string(nil), d.TextUnits...)
			dc.RevisionNotes = append([]string(nil), d.RevisionNotes...)
			cloned.Digests[i] = &dc
		}
	}
	return &cloned
}

// Digest returns the digest for a step id, or nil.
func (r *Record) Digest(stepID int) *StepDigest {
	for _, d := range r.Digests {
		if d.StepID == stepID {
			return d
		}
	}
	return nil
}

// PutDigest appends a digest, replacing any previous digest for the same
// step id (step re-run).
func (r *Record) PutDigest(d *StepDigest) {
	if d == nil {
		return
	}
	for i, existing := range r.Digests {
		if existing.StepID == d.StepID {
			r.Digests[i] = d
			r.UpdatedAt = time.Now()
			return
		}
	}
	r.Digests = append(r.Digests, d)
	r.UpdatedAt = time.Now()
}

// AppendScratchpad adds a paragraph to the running scratchpad.
func (r *Record) AppendScratchpad(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if r.Scratchpad != "" {
		r.Scratchpad += "\n\n"
	}
	r.Scratchpad += text
	r.UpdatedAt = time.Now()
}

// PriorTextUnits collects the novelty-comparison atoms from every digest of a
// step earlier than beforeStep.
func (r *Record) PriorTextUnits(beforeStep int) []string {
	var units []string
	for _, d := range r.Digests {
		if d.StepID >= beforeStep {
			continue
		}
		units = append(units, d.TextUnits...)
	}
	return units
}

// Store persists session records.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Save stores a deep copy of the record.
func (s *MemoryStore) Save(_ context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("session record requires an id: %w", errors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
	return nil
}

// Load returns a deep copy of the stored record.
func (s *MemoryStore) Load(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	return record.Clone(), nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// List returns all stored session ids.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}
