package negotiation

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Store is the session registry shared by every entry point.
type Store interface {
	Create(req CreateRequest) (*Session, error)
	Get(id string) (*Session, error)
}

// MemoryStore keeps sessions for the lifetime of the process. There is no
// eviction.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	newID    func() string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create validates req, truncates the free-text fields and registers a new
// pending session.
func (m *MemoryStore) Create(req CreateRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	backend := BackendDefault
	if req.AccessToken != "" {
		backend = BackendPremium
	}
	s := &Session{
		Topic: truncate(strings.TrimSpace(req.Topic), MaxTopicLength),
		PartyA: Party{
			Name:       partyName(req.InstanceAName, req.InstanceAID),
			InstanceID: req.InstanceAID,
			Position:   truncate(req.PositionA, MaxPositionLength),
			RedLine:    truncate(req.RedLineA, MaxPositionLength),
			Backend:    backend,
		},
		PartyB: Party{
			Name:       partyName(req.InstanceBName, req.InstanceBID),
			InstanceID: req.InstanceBID,
			Position:   truncate(req.PositionB, MaxPositionLength),
			RedLine:    truncate(req.RedLineB, MaxPositionLength),
			Backend:    backend,
		},
		CreatedAt:   m.now(),
		accessToken: req.AccessToken,
		status:      StatusPending,
		messages:    []Message{},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID()
	for m.sessions[id] != nil {
		id = m.newID()
	}
	s.ID = id
	m.sessions[id] = s
	return s, nil
}

func (m *MemoryStore) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Len reports how many sessions are registered.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func partyName(name, id string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return id
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newMessageID returns a lexically sortable id, strictly increasing within
// the same millisecond.
func newMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
