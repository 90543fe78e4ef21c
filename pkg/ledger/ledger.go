package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service is the append-only audit ledger. indexMu guards the
// in-memory index (events, byID, byCorrelation) for readers and
// writers; mu guards the current day's file handle.
type Service struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	indexMu  sync.RWMutex
	fileDate string
	file     *os.File

	events        []Event
	byID          map[uuid.UUID]Event
	byCorrelation map[uuid.UUID][]Event
}

// New opens a ledger rooted at dir, creating it if necessary. dir
// holds one file per UTC date named "audit-YYYY-MM-DD.jsonl".
func New(dir string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("ledger: create dir: %w", err)
	}
	return &Service{
		dir:           dir,
		logger:        logger,
		byID:          make(map[uuid.UUID]Event),
		byCorrelation: make(map[uuid.UUID][]Event),
	}, nil
}

// Close releases the current day's file handle.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// Record appends a new event: it assigns id and recorded_at, defaults
// occurred_at to now when absent, writes one JSON line to the current
// day's file, then indexes in memory. Events are never rewritten.
func (s *Service) Record(create EventCreate) (Event, error) {
	now := time.Now().UTC()
	occurred := create.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	event := Event{
		EventCreate: create,
		ID:          uuid.New(),
		RecordedAt:  now,
	}
	event.OccurredAt = occurred

	line, err := json.Marshal(event)
	if err != nil {
		return Event{}, fmt.Errorf("ledger: marshal event: %w", err)
	}

	if err := s.appendLine(now, line); err != nil {
		return Event{}, err
	}

	s.indexMu.Lock()
	s.events = append(s.events, event)
	s.byID[event.ID] = event
	s.byCorrelation[event.CorrelationID] = append(s.byCorrelation[event.CorrelationID], event)
	s.indexMu.Unlock()

	s.logger.Debug("ledger event recorded",
		"id", event.ID, "correlation_id", event.CorrelationID,
		"action", event.Action, "decision", event.Decision)

	return event, nil
}

// appendLine opens (or rotates to) the file for date and appends line
// followed by a newline. Only this method touches s.file.
func (s *Service) appendLine(date time.Time, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dateStr := date.Format("2006-01-02")
	if s.file == nil || s.fileDate != dateStr {
		if s.file != nil {
			s.file.Close()
		}
		path := filepath.Join(s.dir, fmt.Sprintf("audit-%s.jsonl", dateStr))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("ledger: open audit file: %w", err)
		}
		s.file = f
		s.fileDate = dateStr
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("ledger: write audit file: %w", err)
	}
	return nil
}

// Get returns a single event by id.
func (s *Service) Get(id uuid.UUID) (Event, bool) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// GetByCorrelation returns every event sharing a correlation_id, in
// recording order (which is also sequence_num order, per I3).
func (s *Service) GetByCorrelation(id uuid.UUID) []Event {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	events := s.byCorrelation[id]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Query applies the AND of every present filter, sorts by occurred_at
// descending, and paginates.
func (s *Service) Query(q Query) Result {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	s.indexMu.RLock()
	matched := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if matches(e, q) {
			matched = append(matched, e)
		}
	}
	s.indexMu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	total := len(matched)
	offset := q.Offset
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return Result{
		Events: matched[offset:end],
		Total:  total,
		Limit:  limit,
		Offset: q.Offset,
	}
}

func matches(e Event, q Query) bool {
	if q.CorrelationID != nil && e.CorrelationID != *q.CorrelationID {
		return false
	}
	if q.IntentID != nil && (e.IntentID == nil || *e.IntentID != *q.IntentID) {
		return false
	}
	if q.ActorUserID != "" && e.Actor.UserID != q.ActorUserID {
		return false
	}
	if q.ActorAgentID != "" && e.Actor.AgentID != q.ActorAgentID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.PolicyScope != "" && e.PolicyScope != q.PolicyScope {
		return false
	}
	if q.Decision != "" && e.Decision != q.Decision {
		return false
	}
	if q.Host != "" && e.Host != q.Host {
		return false
	}
	if q.Service != "" && e.Service != q.Service {
		return false
	}
	if q.OccurredAfter != nil && e.OccurredAt.Before(*q.OccurredAfter) {
		return false
	}
	if q.OccurredBefore != nil && e.OccurredAt.After(*q.OccurredBefore) {
		return false
	}
	return true
}

// Count returns the total number of recorded events.
func (s *Service) Count() int {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return len(s.events)
}

// CountByDecision groups recorded events by decision.
func (s *Service) CountByDecision() map[Decision]int {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	counts := make(map[Decision]int)
	for _, e := range s.events {
		counts[e.Decision]++
	}
	return counts
}
