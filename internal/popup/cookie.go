package popup

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SuppressedValue is the sentinel stored in the suppression cookie. Any
// other value, or no cookie at all, means the popup is not suppressed.
const SuppressedValue = "shown"

// ErrStorageUnavailable is reported by stores that cannot reach cookie storage.
var ErrStorageUnavailable = errors.New("popup: cookie storage unavailable")

// CookieStore abstracts browser cookie storage.
type CookieStore interface {
	// Get returns the cookie value and whether it is present.
	Get(name string) (string, bool, error)
	// Set stores value under name for the given number of days.
	Set(name, value string, days int) error
	// Delete removes the cookie.
	Delete(name string) error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process CookieStore that honours expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: map[string]memoryEntry{}, now: now}
}

// Get implements CookieStore.
func (s *MemoryStore) Get(name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[name]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.After(s.now()) {
		delete(s.entries, name)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set implements CookieStore.
func (s *MemoryStore) Set(name, value string, days int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = memoryEntry{value: value, expiresAt: s.now().Add(cookieLifetime(days))}
	return nil
}

// Delete implements CookieStore.
func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
	return nil
}

// ExpiresAt reports when the named cookie expires. Used by tests and debugging.
func (s *MemoryStore) ExpiresAt(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[name]
	return entry.expiresAt, ok
}

// CookieOptions are the attributes applied to cookies written over HTTP.
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// HTTPCookieStore reads cookies from a request and writes Set-Cookie headers
// to the matching response. Writes are visible to subsequent reads on the
// same store so a handler sees its own updates.
type HTTPCookieStore struct {
	r       *http.Request
	w       http.ResponseWriter
	opts    CookieOptions
	now     func() time.Time
	pending map[string]*string
}

// NewHTTPCookieStore binds a store to one request/response exchange.
func NewHTTPCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) *HTTPCookieStore {
	if strings.TrimSpace(opts.Path) == "" {
		opts.Path = "/"
	}
	if opts.SameSite == http.SameSiteDefaultMode {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &HTTPCookieStore{r: r, w: w, opts: opts, now: time.Now, pending: map[string]*string{}}
}

// Get implements CookieStore.
func (s *HTTPCookieStore) Get(name string) (string, bool, error) {
	if v, ok := s.pending[name]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}
	if s.r == nil {
		return "", false, ErrStorageUnavailable
	}
	c, err := s.r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", false, nil
		}
		return "", false, err
	}
	return c.Value, true, nil
}

// Set implements CookieStore.
func (s *HTTPCookieStore) Set(name, value string, days int) error {
	if s.w == nil {
		return ErrStorageUnavailable
	}
	lifetime := cookieLifetime(days)
	cookie := s.cookie(name, value)
	cookie.Expires = s.now().Add(lifetime).UTC()
	cookie.MaxAge = int(lifetime / time.Second)
	if cookie.MaxAge <= 0 {
		// zero days: expire immediately rather than become a session cookie
		cookie.MaxAge = -1
	}
	http.SetCookie(s.w, cookie)
	if cookie.MaxAge < 0 {
		s.pending[name] = nil
		return nil
	}
	v := value
	s.pending[name] = &v
	return nil
}

// Delete implements CookieStore.
func (s *HTTPCookieStore) Delete(name string) error {
	if s.w == nil {
		return ErrStorageUnavailable
	}
	cookie := s.cookie(name, "")
	cookie.Expires = time.Unix(0, 0)
	cookie.MaxAge = -1
	http.SetCookie(s.w, cookie)
	s.pending[name] = nil
	return nil
}

func (s *HTTPCookieStore) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	}
}

func cookieLifetime(days int) time.Duration {
	if days < 0 {
		days = 0
	}
	return time.Duration(days) * 24 * time.Hour
}
