package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/vietddude/streamkeeper/internal/core/domain"
	"github.com/vietddude/streamkeeper/internal/infra/storage"
)

type MemoryStorage struct {
	archive map[string]map[string]*domain.Message
	ledgers map[string]map[string]struct{}
	streams map[string]*streamData
	mu      sync.RWMutex
}

type streamData struct {
	entries []*domain.Message
	lastMs  uint64
	lastSeq uint64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		archive: make(map[string]map[string]*domain.Message),
		ledgers: make(map[string]map[string]struct{}),
		streams: make(map[string]*streamData),
	}
}

// -----------------------------------------------------------------------------
// Archive Repository
// -----------------------------------------------------------------------------

type ArchiveRepo struct {
	store *MemoryStorage
}

func NewArchiveRepo(store *MemoryStorage) *ArchiveRepo {
	return &ArchiveRepo{store: store}
}

func (r *ArchiveRepo) Create(ctx context.Context, msg *domain.Message) error {
	if err := storage.ValidateMessage(msg); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	byID, ok := r.store.archive[msg.EventName]
	if !ok {
		byID = make(map[string]*domain.Message)
		r.store.archive[msg.EventName] = byID
	}
	byID[msg.ID] = domain.NewMessage(msg.ID, msg.EventName, msg.Payload, msg.Metadata)
	return nil
}

func (r *ArchiveRepo) Find(ctx context.Context, eventName, id string) (*domain.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return clone(r.store.archive[eventName][id]), nil
}

func (r *ArchiveRepo) FindMany(ctx context.Context, eventName string) ([]*domain.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	msgs := make([]*domain.Message, 0, len(r.store.archive[eventName]))
	for _, m := range r.store.archive[eventName] {
		msgs = append(msgs, clone(m))
	}
	sortMessages(msgs)
	return msgs, nil
}

func (r *ArchiveRepo) All(ctx context.Context) ([]*domain.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var msgs []*domain.Message
	for _, byID := range r.store.archive {
		for _, m := range byID {
			msgs = append(msgs, clone(m))
		}
	}
	sortMessages(msgs)
	return msgs, nil
}

func (r *ArchiveRepo) Delete(ctx context.Context, eventName, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.archive[eventName], id)
	return nil
}

// clone hands out a copy so callers never share the stored payload or metadata.
func clone(m *domain.Message) *domain.Message {
	if m == nil {
		return nil
	}
	return m.WithID(m.ID)
}

func sortMessages(msgs []*domain.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].EventName != msgs[j].EventName {
			return msgs[i].EventName < msgs[j].EventName
		}
		return CompareIDs(msgs[i].ID, msgs[j].ID) < 0
	})
}

// -----------------------------------------------------------------------------
// Failure Ledger
// -----------------------------------------------------------------------------

type Ledger struct {
	store *MemoryStorage
	key   string
}

func NewLedger(store *MemoryStorage, key string) *Ledger {
	return &Ledger{store: store, key: key}
}

func (l *Ledger) Add(ctx context.Context, member string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	set, ok := l.store.ledgers[l.key]
	if !ok {
		set = make(map[string]struct{})
		l.store.ledgers[l.key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (l *Ledger) Members(ctx context.Context) ([]string, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	members := make([]string, 0, len(l.store.ledgers[l.key]))
	for m := range l.store.ledgers[l.key] {
		members = append(members, m)
	}
	return members, nil
}

func (l *Ledger) Remove(ctx context.Context, members ...string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	for _, m := range members {
		delete(l.store.ledgers[l.key], m)
	}
	return nil
}

func (l *Ledger) Replace(ctx context.Context, old []string, member string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	set, ok := l.store.ledgers[l.key]
	if !ok {
		set = make(map[string]struct{})
		l.store.ledgers[l.key] = set
	}
	for _, m := range old {
		delete(set, m)
	}
	set[member] = struct{}{}
	return nil
}

func (l *Ledger) Count(ctx context.Context) (int, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return len(l.store.ledgers[l.key]), nil
}

// -----------------------------------------------------------------------------
// Streams
// -----------------------------------------------------------------------------

type Stream struct {
	store *MemoryStorage
	name  string
}

func NewStream(store *MemoryStorage, name string) *Stream {
	return &Stream{store: store, name: name}
}

// Stream makes MemoryStorage a storage.StreamFactory.
func (s *MemoryStorage) Stream(name string) storage.StreamAccessor {
	return NewStream(s, name)
}

func (s *Stream) Name() string {
	return s.name
}

func (s *Stream) Append(ctx context.Context, msg *domain.Message) (string, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	data, ok := s.store.streams[s.name]
	if !ok {
		data = &streamData{}
		s.store.streams[s.name] = data
	}

	id := msg.ID
	if id == "" || id == "*" {
		data.lastSeq++
		id = fmt.Sprintf("%d-%d", data.lastMs, data.lastSeq)
	} else {
		ms, seq, err := parseID(id)
		if err != nil {
			return "", err
		}
		if CompareIDs(id, fmt.Sprintf("%d-%d", data.lastMs, data.lastSeq)) <= 0 {
			return "", fmt.Errorf("stream id %s is not greater than the last entry", id)
		}
		data.lastMs, data.lastSeq = ms, seq
	}

	data.entries = append(data.entries, domain.NewMessage(id, s.name, msg.Payload, msg.Metadata))
	return id, nil
}

func (s *Stream) Get(ctx context.Context, id string) (*domain.Message, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	data, ok := s.store.streams[s.name]
	if !ok {
		return nil, nil
	}
	for _, m := range data.entries {
		if m.ID == id {
			return clone(m), nil
		}
	}
	return nil, nil
}

func (s *Stream) Delete(ctx context.Context, id string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	data, ok := s.store.streams[s.name]
	if !ok {
		return nil
	}
	kept := data.entries[:0]
	for _, m := range data.entries {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	data.entries = kept
	return nil
}

func (s *Stream) Range(ctx context.Context, start, end string, count int64) ([]*domain.Message, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	data, ok := s.store.streams[s.name]
	if !ok {
		return nil, nil
	}
	var out []*domain.Message
	for _, m := range data.entries {
		if start != "-" && CompareIDs(m.ID, start) < 0 {
			continue
		}
		if end != "+" && CompareIDs(m.ID, end) > 0 {
			continue
		}
		out = append(out, clone(m))
		if count > 0 && int64(len(out)) >= count {
			break
		}
	}
	return out, nil
}

// CompareIDs orders stream ids of the form "<ms>-<seq>". A bare "<ms>" is
// treated as "<ms>-0". Unparsable ids fall back to string comparison.
func CompareIDs(a, b string) int {
	am, as, aerr := parseID(a)
	bm, bs, berr := parseID(b)
	if aerr != nil || berr != nil {
		return strings.Compare(a, b)
	}
	switch {
	case am < bm:
		return -1
	case am > bm:
		return 1
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func parseID(id string) (ms, seq uint64, err error) {
	msPart, seqPart, found := strings.Cut(id, "-")
	ms, err = strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	if !found {
		return ms, 0, nil
	}
	seq, err = strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	return ms, seq, nil
}
