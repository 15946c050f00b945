package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrPersistenceFailed wraps storage read and write failures.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrParseFailed is reported when the stored payload is not a JSON array.
	ErrParseFailed = errors.New("stored code list is malformed")
	// ErrIndexOutOfRange is returned by RemoveAt for a position outside the list.
	ErrIndexOutOfRange = errors.New("code index out of range")
	// ErrStaleIndex is returned when the row at an index no longer holds the expected code.
	ErrStaleIndex = errors.New("code at index has changed")
)

// ChangeFunc receives a snapshot of the list after every load or mutation.
type ChangeFunc func(codes []string)

// AddFunc receives each code appended to the list.
type AddFunc func(code string)

// CodeStore holds the ordered, deduplicated list of scanned codes and mirrors
// it to a single storage key. Storage is the durable backing, not an authority:
// Load replaces memory wholesale and every mutation overwrites the key.
//
// Hooks run synchronously while the store lock is held and must not call back
// into the store.
type CodeStore struct {
	mu       sync.Mutex
	storage  Storage
	key      string
	codes    []string
	onChange []ChangeFunc
	onAdd    []AddFunc
}

// NewCodeStore creates an empty store persisting under key.
func NewCodeStore(storage Storage, key string) *CodeStore {
	return &CodeStore{
		storage: storage,
		key:     key,
		codes:   []string{},
	}
}

// OnChange registers a render hook.
func (s *CodeStore) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnAdd registers a hook fired for each newly stored code.
func (s *CodeStore) OnAdd(fn AddFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAdd = append(s.onAdd, fn)
}

// Load replaces the in-memory list with the persisted one. A missing key,
// a read failure or a malformed payload all leave an empty list; the failure
// is logged and never returned.
func (s *CodeStore) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.read(ctx)
	if err != nil {
		log.Printf("Error loading codes: %v", err)
		codes = []string{}
	}
	s.codes = codes
	s.renderLocked()
}

// Add appends text unless it is empty or already present. It reports whether
// the list changed.
func (s *CodeStore) Add(ctx context.Context, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if text == "" || s.indexOfLocked(text) >= 0 {
		return false
	}
	s.codes = append(s.codes, text)
	s.persistLocked(ctx)
	s.renderLocked()
	for _, fn := range s.onAdd {
		fn(text)
	}
	return true
}

// RemoveAt removes the code at index, shifting later codes down by one.
func (s *CodeStore) RemoveAt(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, index)
}

// RemoveAtIfMatch removes the code at index only if it still equals expected.
// Clients that rendered the list earlier use it to avoid deleting a row that
// moved underneath them.
func (s *CodeStore) RemoveAtIfMatch(ctx context.Context, index int, expected string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.codes) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, index, len(s.codes))
	}
	if s.codes[index] != expected {
		return fmt.Errorf("%w: index %d holds %q", ErrStaleIndex, index, s.codes[index])
	}
	return s.removeLocked(ctx, index)
}

// Persist writes the full list to storage. Failures are logged only; the
// in-memory list is never rolled back.
func (s *CodeStore) Persist(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked(ctx)
}

// Codes returns a copy of the current list.
func (s *CodeStore) Codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, len(s.codes))
	copy(codes, s.codes)
	return codes
}

// Len returns the number of stored codes.
func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

func (s *CodeStore) removeLocked(ctx context.Context, index int) error {
	if index < 0 || index >= len(s.codes) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, index, len(s.codes))
	}
	s.codes = append(s.codes[:index], s.codes[index+1:]...)
	s.persistLocked(ctx)
	s.renderLocked()
	return nil
}

func (s *CodeStore) indexOfLocked(text string) int {
	for i, c := range s.codes {
		if c == text {
			return i
		}
	}
	return -1
}

func (s *CodeStore) persistLocked(ctx context.Context) {
	payload, err := json.Marshal(s.codes)
	if err != nil {
		log.Printf("Error saving codes: %v", err)
		return
	}
	if err := s.storage.SetItem(ctx, s.key, string(payload)); err != nil {
		log.Printf("Error saving codes: %v", fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
	}
}

func (s *CodeStore) renderLocked() {
	if len(s.onChange) == 0 {
		return
	}
	snapshot := make([]string, len(s.codes))
	copy(snapshot, s.codes)
	for _, fn := range s.onChange {
		fn(snapshot)
	}
}

func (s *CodeStore) read(ctx context.Context) ([]string, error) {
	raw, ok, err := s.storage.GetItem(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	if !ok {
		return []string{}, nil
	}
	return DecodeCodes(raw)
}

// DecodeCodes parses a stored payload. Anything other than a JSON array is
// ErrParseFailed. Non-string elements, empty entries and repeats are dropped
// so the list invariant holds even for a hand-edited payload.
func DecodeCodes(raw string) ([]string, error) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	items, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload is %T, not an array", ErrParseFailed, decoded)
	}

	codes := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		text, ok := item.(string)
		if !ok {
			log.Printf("Skipping stored code %d: %T is not a string", i, item)
			continue
		}
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		codes = append(codes, text)
	}
	return codes, nil
}
