package otp

import (
	"container/list"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxSessions = 10000
	defaultMaxAttempts = 5
)

// ServerStore keeps codes in process memory and hands the client only an
// opaque session id. Entries expire after the TTL and the least recently
// used entries are dropped past MaxSessions.
type ServerStore struct {
	mu sync.Mutex

	ttl         time.Duration
	maxSessions int
	maxAttempts int
	secure      bool
	now         func() time.Time

	lru *list.List // front=MRU
	m   map[string]*list.Element
}

type serverEntry struct {
	id       string
	code     string
	expires  time.Time
	attempts int
}

var _ CredentialStore = (*ServerStore)(nil)

// NewServerStore returns an empty ServerStore. A non-positive ttl selects DefaultTTL.
func NewServerStore(ttl time.Duration, secure bool) *ServerStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ServerStore{
		ttl:         ttl,
		maxSessions: defaultMaxSessions,
		maxAttempts: defaultMaxAttempts,
		secure:      secure,
		now:         time.Now,
		lru:         list.New(),
		m:           map[string]*list.Element{},
	}
}

// Len reports the number of live entries.
func (s *ServerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(s.now())
	return s.lru.Len()
}

func (s *ServerStore) Save(w http.ResponseWriter, r *http.Request, code string) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)

	id := ""
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if e := s.m[c.Value]; e != nil {
			id = c.Value
			s.deleteElemLocked(e)
		}
	}
	if id == "" {
		v7, err := uuid.NewV7()
		if err != nil {
			return err
		}
		id = v7.String()
	}

	s.m[id] = s.lru.PushFront(&serverEntry{id: id, code: code, expires: now.Add(s.ttl)})
	for s.maxSessions > 0 && s.lru.Len() > s.maxSessions {
		s.deleteElemLocked(s.lru.Back())
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		Expires:  now.Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (s *ServerStore) Verify(w http.ResponseWriter, r *http.Request, code string) error {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return ErrCodeNotFound
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)

	e := s.m[c.Value]
	if e == nil {
		return ErrCodeNotFound
	}
	ent := e.Value.(*serverEntry)
	if subtle.ConstantTimeCompare([]byte(ent.code), []byte(code)) != 1 {
		ent.attempts++
		if ent.attempts >= s.maxAttempts {
			s.deleteElemLocked(e)
		} else {
			s.lru.MoveToFront(e)
		}
		return ErrCodeMismatch
	}
	s.deleteElemLocked(e)
	clearCookie(w, SessionCookieName, s.secure)
	return nil
}

func (s *ServerStore) evictExpiredLocked(now time.Time) {
	for e := s.lru.Back(); e != nil; {
		prev := e.Prev()
		if ent := e.Value.(*serverEntry); !now.Before(ent.expires) {
			s.deleteElemLocked(e)
		}
		e = prev
	}
}

func (s *ServerStore) deleteElemLocked(e *list.Element) {
	ent := e.Value.(*serverEntry)
	delete(s.m, ent.id)
	s.lru.Remove(e)
}
