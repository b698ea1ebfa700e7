package middleware

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"
)

// IdempotencyHeader carries the client-chosen key for a mutating request.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotentBody = 1 << 20

// ErrIdempotencyConflict indicates a key is reused with a different payload.
var ErrIdempotencyConflict = errors.New("idempotency key conflict")

// StoredResponse captures an idempotent response.
type StoredResponse struct {
	Status int
	Body   []byte
}

// IdempotencyStore persists responses keyed by idempotency key in SQLite.
type IdempotencyStore struct {
	db *sql.DB
}

func NewIdempotencyStore(path string) (*IdempotencyStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	const schema = `CREATE TABLE IF NOT EXISTS idempotency_keys (
            key TEXT PRIMARY KEY,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &IdempotencyStore{db: db}, nil
}

func (s *IdempotencyStore) Close() error { return s.db.Close() }

// Lookup returns the stored response for key, nil when the key is unused, or
// ErrIdempotencyConflict when the key was used for a different request.
func (s *IdempotencyStore) Lookup(ctx context.Context, key, hash string) (*StoredResponse, error) {
	const query = `SELECT response_status, response_body, request_hash FROM idempotency_keys WHERE key = ?`
	var status int
	var body []byte
	var storedHash string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&status, &body, &storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if storedHash != hash {
		return nil, ErrIdempotencyConflict
	}
	return &StoredResponse{Status: status, Body: body}, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, key, hash string, status int, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	const stmt = `INSERT OR REPLACE INTO idempotency_keys(key, request_hash, response_status, response_body, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, key, hash, status, body, time.Now().UTC())
	return err
}

// Idempotency replays the stored response when a mutating request repeats an
// Idempotency-Key. Requests without the header pass through.
type Idempotency struct {
	store  *IdempotencyStore
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewIdempotency(store *IdempotencyStore, logger *slog.Logger) *Idempotency {
	if logger == nil {
		logger = slog.Default()
	}
	return &Idempotency{store: store, logger: logger, active: make(map[string]*keyLock)}
}

func (i *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		unlock := i.lock(key)
		defer unlock()

		hash := HashRequest(r.Method, r.URL.Path, r.Header.Get("Authorization"), body)
		cached, err := i.store.Lookup(r.Context(), key, hash)
		if errors.Is(err, ErrIdempotencyConflict) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			i.logger.Error("idempotency lookup failed", slog.Any("error", err))
			http.Error(w, "idempotency store unavailable", http.StatusInternalServerError)
			return
		}
		if cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(cached.Status)
			_, _ = w.Write(cached.Body)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)
		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}
		if recorder.status >= http.StatusInternalServerError {
			return
		}
		if err := i.store.Save(r.Context(), key, hash, recorder.status, recorder.buf.Bytes()); err != nil {
			i.logger.Error("idempotency save failed", slog.Any("error", err))
		}
	})
}

// lock serialises requests sharing key. The entry is dropped once its last
// holder or waiter releases it.
func (i *Idempotency) lock(key string) func() {
	i.mu.Lock()
	l, ok := i.active[key]
	if !ok {
		l = &keyLock{}
		i.active[key] = l
	}
	l.refs++
	i.mu.Unlock()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		i.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(i.active, key)
		}
		i.mu.Unlock()
	}
}

func (i *Idempotency) pendingKeys() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.active)
}

// HashRequest fingerprints a request so a reused key with a different payload
// is detected.
func HashRequest(method, path, credential string, body []byte) string {
	h := blake3.New(32, nil)
	_, _ = io.WriteString(h, strings.ToUpper(method))
	_, _ = h.Write([]byte{'\n'})
	_, _ = io.WriteString(h, path)
	_, _ = h.Write([]byte{'\n'})
	_, _ = io.WriteString(h, credential)
	_, _ = h.Write([]byte{'\n'})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// responseRecorder captures the response for idempotent operations.
type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
