package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"invokeledger/core/events"
	"invokeledger/storage"
)

// Manager provides journaled read/write access to settlement records on top of
// a key/value database. Writes are buffered in an overlay until Commit; every
// buffered write and emitted event is journaled so a failed operation can be
// rolled back to any earlier snapshot, including nested ones.
//
// Manager is not safe for concurrent use. Callers serialise access.
type Manager struct {
	db      storage.Database
	dirty   map[string][]byte
	journal []journalEntry
	logs    []events.Event
}

type journalEntry interface {
	revert(m *Manager)
}

type kvChange struct {
	key     string
	prev    []byte
	existed bool
}

func (c kvChange) revert(m *Manager) {
	if c.existed {
		m.dirty[c.key] = c.prev
		return
	}
	delete(m.dirty, c.key)
}

type logChange struct{}

func (logChange) revert(m *Manager) {
	if len(m.logs) > 0 {
		m.logs = m.logs[:len(m.logs)-1]
	}
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string][]byte)}
}

func kvKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if value, ok := m.dirty[string(key)]; ok {
		return value, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (m *Manager) put(key []byte, value []byte) {
	k := string(key)
	prev, existed := m.dirty[k]
	m.journal = append(m.journal, kvChange{key: k, prev: prev, existed: existed})
	m.dirty[k] = append([]byte(nil), value...)
}

func (m *Manager) loadRecord(key []byte, out interface{}) (bool, error) {
	data, err := m.get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

func (m *Manager) writeRecord(key []byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	m.put(key, encoded)
	return nil
}

// Emit journals an event so it is discarded if the surrounding snapshot is
// reverted. Journaled events are handed out by Commit.
func (m *Manager) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	m.logs = append(m.logs, evt)
	m.journal = append(m.journal, logChange{})
}

// PendingEvents returns the events journaled since the last commit.
func (m *Manager) PendingEvents() []events.Event {
	return append([]events.Event(nil), m.logs...)
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every write and event recorded after the snapshot.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		m.journal[i].revert(m)
	}
	if id < len(m.journal) {
		m.journal = m.journal[:id]
	}
}

// Dirty reports whether uncommitted writes or events are pending.
func (m *Manager) Dirty() bool {
	return len(m.journal) > 0
}

// Commit writes all buffered records in a single batch and returns the events
// journaled since the previous commit. On failure the overlay is left intact so
// the caller can revert it.
func (m *Manager) Commit() ([]events.Event, error) {
	if len(m.dirty) > 0 {
		batch := m.db.NewBatch()
		for key, value := range m.dirty {
			batch.Put([]byte(key), value)
		}
		if err := batch.Write(); err != nil {
			return nil, fmt.Errorf("state: commit: %w", err)
		}
	}
	logs := m.logs
	m.dirty = make(map[string][]byte)
	m.journal = nil
	m.logs = nil
	return logs, nil
}
