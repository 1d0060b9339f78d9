package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moasq/supalink/internal/kv"
	"github.com/moasq/supalink/internal/secrets"
)

// StateKey is the key-value entry holding the serialized Connection.
const StateKey = "supabase_connection"

// secretRefPrefix marks a token field as a reference to a secret store key.
const secretRefPrefix = "secret:"

// ErrPersist wraps failures to write the state. The in-memory state has
// already been updated when it is returned.
var ErrPersist = errors.New("persist connection state")

// persisted is the stored form of a Connection. Revision changes on every
// write, including writes where only a referenced secret changed.
type persisted struct {
	Connection
	Revision string `json:"revision,omitempty"`
}

// Store is the connection state container. Updates are serialized; readers
// get copies. Get and Update first pick up state written by another process
// sharing the same key-value store, such as `supalink disconnect` while
// `supalink serve` runs.
type Store struct {
	mu      sync.Mutex
	conn    Connection
	kv      kv.Store
	secrets secrets.SecretStore
	logger  *zap.Logger

	// lastRaw is the serialized state this store last read or wrote.
	lastRaw string
	// dirty is set while memory holds changes the last write failed to
	// persist.
	dirty bool

	connecting       atomic.Bool
	fetchingProjects atomic.Bool

	subMu   sync.Mutex
	subs    map[int]func(Connection)
	nextSub int
}

// NewStore creates a store. A nil kv keeps state in memory only; a nil
// secret store keeps tokens inline in the serialized state.
func NewStore(kvs kv.Store, ss secrets.SecretStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		kv:      kvs,
		secrets: ss,
		logger:  logger.Named("connection"),
		subs:    make(map[int]func(Connection)),
	}
}

// Load restores state from the key-value store. A missing entry is not an
// error; a corrupt one is logged and replaced by defaults.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv == nil {
		return nil
	}
	raw, err := s.kv.Get(StateKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read connection state: %w", err)
	}
	s.applyRawLocked(raw)
	return nil
}

// syncLocked reloads the state when the stored copy differs from the one
// this store last saw. Read failures keep the in-memory state.
func (s *Store) syncLocked() {
	if s.kv == nil || s.dirty {
		return
	}
	raw, err := s.kv.Get(StateKey)
	if errors.Is(err, kv.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("Could not reread connection state", zap.Error(err))
		return
	}
	if raw == s.lastRaw {
		return
	}
	s.logger.Debug("Connection state changed on disk, reloading")
	s.applyRawLocked(raw)
}

func (s *Store) applyRawLocked(raw string) {
	s.lastRaw = raw
	var p persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("Discarding unreadable connection state", zap.Error(err))
		s.conn = Connection{}
		return
	}
	conn := p.Connection
	conn.Credential.AccessToken = s.resolveSecret(conn.Credential.AccessToken)
	conn.Credential.RefreshToken = s.resolveSecret(conn.Credential.RefreshToken)
	s.conn = conn
}

// resolveSecret turns a "secret:<key>" reference into its value. A missing
// secret resolves to "" so callers see the credential as absent.
func (s *Store) resolveSecret(v string) string {
	if !strings.HasPrefix(v, secretRefPrefix) {
		return v
	}
	if s.secrets == nil {
		return ""
	}
	key := strings.TrimPrefix(v, secretRefPrefix)
	val, err := s.secrets.Get(key)
	if err != nil {
		s.logger.Warn("Stored token not found in secret store", zap.String("key", key), zap.Error(err))
		return ""
	}
	return val
}

// Get returns a copy of the current state.
func (s *Store) Get() Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncLocked()
	return s.conn.clone()
}

// Update shallow-merges fields into the current state and persists the full
// result. Memory is updated even when persisting fails.
func (s *Store) Update(fields ...Field) error {
	s.mu.Lock()
	s.syncLocked()
	next := s.conn.clone()
	for _, f := range fields {
		f(&next)
	}
	s.conn = next
	err := s.persistLocked(next)
	snapshot := next.clone()
	s.mu.Unlock()

	s.publish(snapshot)
	return err
}

func (s *Store) persistLocked(conn Connection) error {
	if s.kv == nil {
		return nil
	}

	stored := conn
	if s.secrets != nil {
		var err error
		if stored.Credential.AccessToken, err = s.storeSecret(secrets.AccessTokenKey, conn.Credential.AccessToken); err != nil {
			return s.persistFailed(err)
		}
		if stored.Credential.RefreshToken, err = s.storeSecret(secrets.RefreshTokenKey, conn.Credential.RefreshToken); err != nil {
			return s.persistFailed(err)
		}
	}

	data, err := json.Marshal(persisted{Connection: stored, Revision: uuid.NewString()})
	if err != nil {
		return s.persistFailed(err)
	}
	if err := s.kv.Set(StateKey, string(data)); err != nil {
		return s.persistFailed(err)
	}
	s.lastRaw = string(data)
	s.dirty = false
	return nil
}

// storeSecret writes value under key and returns the reference to embed in
// the state. An empty value deletes the secret.
func (s *Store) storeSecret(key, value string) (string, error) {
	if value == "" {
		if err := s.secrets.Delete(key); err != nil {
			return "", fmt.Errorf("delete %s: %w", key, err)
		}
		return "", nil
	}
	if err := s.secrets.Set(key, value); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return secretRefPrefix + key, nil
}

func (s *Store) persistFailed(err error) error {
	s.dirty = true
	s.logger.Warn("Connection state kept in memory only", zap.Error(err))
	return fmt.Errorf("%w: %w", ErrPersist, err)
}

// Subscribe registers fn to receive every committed state. The returned
// function unregisters it.
func (s *Store) Subscribe(fn func(Connection)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(conn Connection) {
	s.subMu.Lock()
	fns := make([]func(Connection), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(conn.clone())
	}
}

// Connecting reports whether an OAuth redirect is being prepared.
func (s *Store) Connecting() bool { return s.connecting.Load() }

// SetConnecting sets the connecting flag.
func (s *Store) SetConnecting(v bool) { s.connecting.Store(v) }

// FetchingProjects reports whether a project fetch is in flight.
func (s *Store) FetchingProjects() bool { return s.fetchingProjects.Load() }

// SetFetchingProjects sets the fetching flag.
func (s *Store) SetFetchingProjects(v bool) { s.fetchingProjects.Store(v) }
