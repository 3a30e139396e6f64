package matching

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/cycle"
	"github.com/kinship/cycle-api/models"
)

var (
	t0           = time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC)
	errDialReset = errors.New("read tcp: connection reset by peer")
)

// memConns mirrors the upsert contract of the postgres repository.
type memConns struct {
	mu        sync.Mutex
	byKey     map[models.PairKey]models.Connection
	upserts   int
	failAfter int // fail every upsert once this many have succeeded; 0 disables
	failFind  bool
}

func newMemConns() *memConns {
	return &memConns{byKey: make(map[models.PairKey]models.Connection)}
}

func (m *memConns) FindConnection(_ context.Context, a, b, cohortID string) (models.Connection, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFind {
		return models.Connection{}, false, errDialReset
	}
	c, ok := m.byKey[models.NewPairKey(a, b, cohortID)]
	return c, ok, nil
}

func (m *memConns) UpsertConnection(_ context.Context, c models.Connection) (models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && m.upserts >= m.failAfter {
		return models.Connection{}, errDialReset
	}
	m.upserts++
	key := c.Key()
	cur, ok := m.byKey[key]
	if !ok {
		m.byKey[key] = c
		return c, nil
	}
	next := cur.Status.Merge(c.Status)
	if next != cur.Status && next == models.ConnectionConfirmed {
		cur.ConfirmedAt = c.ConfirmedAt
	}
	cur.Status = next
	if c.PromptID != "" {
		cur.PromptID, cur.PromptText = c.PromptID, c.PromptText
	}
	if c.LowAnswer != "" {
		cur.LowAnswer = c.LowAnswer
	}
	if c.HighAnswer != "" {
		cur.HighAnswer = c.HighAnswer
	}
	if c.Alignment != 0 {
		cur.Alignment = c.Alignment
	}
	if c.SourceRef != "" {
		cur.SourceRef = c.SourceRef
	}
	cur.UpdatedAt = c.UpdatedAt
	m.byKey[key] = cur
	return cur, nil
}

func (m *memConns) ListConfirmed(_ context.Context, userID string) ([]models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Connection
	for _, c := range m.byKey {
		if c.Involves(userID) && c.Status == models.ConnectionConfirmed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memConns) ListActive(_ context.Context, userID, cohortID string) ([]models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Connection
	for _, c := range m.byKey {
		if c.Involves(userID) && c.CohortID == cohortID && c.Active() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memConns) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

func (m *memConns) get(a, b, cohortID string) (models.Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byKey[models.NewPairKey(a, b, cohortID)]
	return c, ok
}

type memMembers map[string]models.User

func (m memMembers) Member(_ context.Context, userID string) (models.User, error) {
	u, ok := m[userID]
	if !ok {
		return models.User{}, apperr.NotFound("user", userID)
	}
	return u, nil
}

func cohortMembers(cohortID string, ids ...string) memMembers {
	m := memMembers{}
	for _, id := range ids {
		m[id] = models.User{UserID: id, DisplayName: id, CohortID: cohortID}
	}
	return m
}

type memAnswers struct {
	mu      sync.Mutex
	answers map[string]models.PromptAnswer
}

func newMemAnswers() *memAnswers {
	return &memAnswers{answers: make(map[string]models.PromptAnswer)}
}

func answerKey(userID, cohortID, promptID string) string {
	return userID + "|" + cohortID + "|" + promptID
}

func (m *memAnswers) LatestAnswer(_ context.Context, userID, cohortID, promptID string) (models.PromptAnswer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerKey(userID, cohortID, promptID)]
	return a, ok, nil
}

func (m *memAnswers) SaveAnswer(_ context.Context, a models.PromptAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[answerKey(a.UserID, a.CohortID, a.PromptID)] = a
	return nil
}

type staticCorpus struct {
	signals []models.KinshipSignal
	err     error
}

func (s staticCorpus) Signals(context.Context, string, string) ([]models.KinshipSignal, error) {
	return s.signals, s.err
}

// fakeClock keeps per-user start instants and a settable now.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	starts map[string]time.Time
	resets int
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, starts: make(map[string]time.Time)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeClock) Current(_ context.Context, userID string) (models.Cycle, models.CycleProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start, ok := f.starts[userID]
	if !ok {
		start = f.now
		f.starts[userID] = start
	}
	return models.Cycle{UserID: userID, StartInstant: start}, cycle.Advance(start, f.now, cycle.DefaultLength), nil
}

func (f *fakeClock) Reset(_ context.Context, userID string) (models.Cycle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts[userID] = f.now
	f.resets++
	return models.Cycle{UserID: userID, StartInstant: f.now, UpdatedAt: f.now}, nil
}

func (f *fakeClock) start(userID string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[userID]
}

// memResolutions keeps one claim per (user, cycle start), first writer wins.
type memResolutions struct {
	mu     sync.Mutex
	claims map[string]models.CycleResolution
}

func newMemResolutions() *memResolutions {
	return &memResolutions{claims: make(map[string]models.CycleResolution)}
}

func claimKey(userID string, start time.Time) string {
	return userID + "|" + start.UTC().Format(time.RFC3339Nano)
}

func (m *memResolutions) ClaimResolution(_ context.Context, r models.CycleResolution) (models.CycleResolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := claimKey(r.UserID, r.CycleStart)
	if cur, ok := m.claims[key]; ok {
		return cur, nil
	}
	m.claims[key] = r
	return r, nil
}

func (m *memResolutions) FindResolution(_ context.Context, userID string, start time.Time) (models.CycleResolution, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.claims[claimKey(userID, start)]
	return r, ok, nil
}

func (m *memResolutions) LatestResolution(_ context.Context, userID string) (models.CycleResolution, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest models.CycleResolution
	found := false
	for _, r := range m.claims {
		if r.UserID == userID && (!found || r.CycleStart.After(latest.CycleStart)) {
			latest, found = r, true
		}
	}
	return latest, found, nil
}

func (m *memResolutions) CompleteResolution(_ context.Context, userID string, start time.Time, outcome []byte, resolvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := claimKey(userID, start)
	r, ok := m.claims[key]
	if !ok {
		return errors.New("no claim")
	}
	r.Outcome = outcome
	r.ResolvedAt = &resolvedAt
	m.claims[key] = r
	return nil
}

// gatedConns blocks the first upsert it sees until release is closed.
type gatedConns struct {
	*memConns
	gated   atomic.Bool
	arrived chan struct{}
	release chan struct{}
}

func newGatedConns(inner *memConns) *gatedConns {
	return &gatedConns{memConns: inner, arrived: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedConns) UpsertConnection(ctx context.Context, c models.Connection) (models.Connection, error) {
	if g.gated.CompareAndSwap(false, true) {
		g.arrived <- struct{}{}
		<-g.release
	}
	return g.memConns.UpsertConnection(ctx, c)
}

// slowAnswers blocks SaveAnswer until release is closed and then fails if the
// write's ctx was cancelled, as a real driver would.
type slowAnswers struct {
	*memAnswers
	arrived chan struct{}
	release chan struct{}
}

func (s *slowAnswers) SaveAnswer(ctx context.Context, a models.PromptAnswer) error {
	s.arrived <- struct{}{}
	<-s.release
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memAnswers.SaveAnswer(ctx, a)
}
