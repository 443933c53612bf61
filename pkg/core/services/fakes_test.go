package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

var testLog = logging.NewNop()

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeLimiter struct {
	limit  int
	counts map[string]int
}

func newFakeLimiter(limit int) *fakeLimiter {
	return &fakeLimiter{limit: limit, counts: map[string]int{}}
}

func (l *fakeLimiter) Allow(key string, _ time.Time) bool {
	l.counts[key]++
	return l.counts[key] <= l.limit
}

func (l *fakeLimiter) Prune(time.Time) int { return 0 }

type fakeChallengeRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Challenge
}

func newFakeChallengeRepo() *fakeChallengeRepo {
	return &fakeChallengeRepo{rows: map[string]domain.Challenge{}}
}

func (r *fakeChallengeRepo) Create(_ context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[c.ID] = *c
	return nil
}

func (r *fakeChallengeRepo) Get(_ context.Context, id string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *fakeChallengeRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *fakeChallengeRepo) DeleteExpired(_ context.Context, now int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.rows {
		if c.ExpiresAt < now {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeChallengeRepo) mutate(id string, fn func(*domain.Challenge)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.rows[id]
	fn(&c)
	r.rows[id] = c
}

type fakeSessionRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: map[string]*domain.Session{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows[s.Token] = &cp
	return nil
}

func (r *fakeSessionRepo) Get(_ context.Context, token string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[token]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) FindPending(_ context.Context, ip string, linkID int64, since time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.IPAddress == ip && s.LinkID == linkID && s.Status == domain.SessionPending && !s.CreatedAt.Before(since) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) CountSince(_ context.Context, ip string, linkID int64, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.rows {
		if s.IPAddress == ip && s.LinkID == linkID && !s.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) SetShortLink(_ context.Context, token, shortLink, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[token]; ok {
		s.ShortLink, s.Provider = shortLink, provider
	}
	return nil
}

func (r *fakeSessionRepo) Activate(_ context.Context, token string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[token]
	if !ok || s.Status != domain.SessionPending {
		return false, nil
	}
	s.Status = domain.SessionActive
	s.ActivatedAt = &at
	return true, nil
}

func (r *fakeSessionRepo) IncrementUsage(_ context.Context, token string, expected int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[token]
	if !ok || s.Status != domain.SessionActive || s.UsageCount != expected || s.UsageCount >= s.MaxUses {
		return false, nil
	}
	s.UsageCount++
	s.Used = s.UsageCount >= s.MaxUses
	return true, nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, token)
	return nil
}

func (r *fakeSessionRepo) DeleteBefore(_ context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, s := range r.rows {
		if s.CreatedAt.Before(t) {
			delete(r.rows, k)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) activate(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[token].Status = domain.SessionActive
}

type fakeLinkRepo struct {
	mu     sync.Mutex
	links  map[int64]*domain.ProtectedLink
	creds  map[string][]domain.ProviderCredential
	visits []domain.Visit
	nextID int64
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: map[int64]*domain.ProtectedLink{}, creds: map[string][]domain.ProviderCredential{}}
}

func (r *fakeLinkRepo) Create(_ context.Context, l *domain.ProtectedLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	l.ID = r.nextID
	cp := *l
	r.links[l.ID] = &cp
	return nil
}

func (r *fakeLinkRepo) GetBySlug(_ context.Context, slug string) (*domain.ProtectedLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Slug == slug {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeLinkRepo) GetByID(_ context.Context, id int64) (*domain.ProtectedLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeLinkRepo) ListByOwner(_ context.Context, owner string, limit, offset int) ([]domain.ProtectedLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProtectedLink
	for _, l := range r.links {
		if l.OwnerID == owner {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeLinkRepo) CountByOwner(_ context.Context, owner string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.links {
		if l.OwnerID == owner {
			n++
		}
	}
	return n, nil
}

func (r *fakeLinkRepo) Dump(context.Context) ([]domain.ProtectedLink, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeLinkRepo) RecordVisit(_ context.Context, v *domain.Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits = append(r.visits, *v)
	if l, ok := r.links[v.LinkID]; ok {
		l.Clicks++
	}
	return nil
}

func (r *fakeLinkRepo) GetLinkStats(_ context.Context, id int64) (*domain.LinkStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.LinkStats{Referrers: map[string]int64{}}
	for _, v := range r.visits {
		if v.LinkID == id {
			stats.TotalClicks++
		}
	}
	return stats, nil
}

func (r *fakeLinkRepo) UpsertCredential(_ context.Context, c *domain.ProviderCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.creds[c.OwnerID]
	for i := range list {
		if list[i].Provider == c.Provider {
			list[i] = *c
			return nil
		}
	}
	r.creds[c.OwnerID] = append(list, *c)
	return nil
}

func (r *fakeLinkRepo) ListCredentials(_ context.Context, owner string) ([]domain.ProviderCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProviderCredential(nil), r.creds[owner]...), nil
}

type fakeSuspiciousRepo struct {
	mu      sync.Mutex
	entries []domain.SuspiciousIP
}

func (r *fakeSuspiciousRepo) Add(_ context.Context, e *domain.SuspiciousIP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *fakeSuspiciousRepo) CountSince(_ context.Context, ip string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.IP == ip && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeSuspiciousRepo) DeleteBefore(_ context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var n int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(t) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

func (r *fakeSuspiciousRepo) reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		out = append(out, e.Reason)
	}
	return out
}

// fakeReplayStore keeps keys with their claim time.
type fakeReplayStore struct {
	mu     sync.Mutex
	window time.Duration
	keys   map[string]time.Time
}

func newFakeReplayStore(window time.Duration) *fakeReplayStore {
	return &fakeReplayStore{window: window, keys: map[string]time.Time{}}
}

func (s *fakeReplayStore) Claim(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.keys[key]; ok && now.Sub(at) < s.window {
		return false
	}
	s.keys[key] = now
	return true
}

func (s *fakeReplayStore) Contains(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.keys[key]
	return ok && now.Sub(at) < s.window
}

func (s *fakeReplayStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, at := range s.keys {
		if now.Sub(at) >= s.window {
			delete(s.keys, k)
			n++
		}
	}
	return n
}

type fakeShortener struct {
	mu    sync.Mutex
	name  string
	fail  bool
	calls []string
}

func (f *fakeShortener) Shorten(_ context.Context, apiKey, longURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, longURL)
	if f.fail {
		return "", errors.New("provider down")
	}
	return "https://" + f.name + ".example/" + apiKey + "/" + strconv.Itoa(len(f.calls)), nil
}

func (f *fakeShortener) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProviders struct {
	names []string
	m     map[string]*fakeShortener
}

func newFakeProviders(names ...string) *fakeProviders {
	p := &fakeProviders{names: names, m: map[string]*fakeShortener{}}
	for _, n := range names {
		p.m[n] = &fakeShortener{name: n}
	}
	return p
}

func (p *fakeProviders) Names() []string { return p.names }

func (p *fakeProviders) Get(name string) (ports.Shortener, bool) {
	s, ok := p.m[name]
	if !ok {
		return nil, false
	}
	return s, true
}

type fakeCaptcha struct {
	mu     sync.Mutex
	accept bool
	err    error
	calls  int
}

func (f *fakeCaptcha) Verify(context.Context, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.accept, f.err
}

func (f *fakeCaptcha) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingMetrics struct {
	mu     sync.Mutex
	proofs []string
	gates  []string
	events []string
	issued int
	calls  map[string]int
}

func (m *recordingMetrics) ChallengeIssued() {
	m.mu.Lock()
	m.issued++
	m.mu.Unlock()
}

func (m *recordingMetrics) ProofVerified(r string) {
	m.mu.Lock()
	m.proofs = append(m.proofs, r)
	m.mu.Unlock()
}

func (m *recordingMetrics) GateRejected(c string) {
	m.mu.Lock()
	m.gates = append(m.gates, c)
	m.mu.Unlock()
}

func (m *recordingMetrics) SessionEvent(e string) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

func (m *recordingMetrics) ProviderCall(p string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	if ok {
		m.calls[p+":ok"]++
	} else {
		m.calls[p+":error"]++
	}
}
