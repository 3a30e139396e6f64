package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/cycle"
	"github.com/kinship/cycle-api/datastore"
	"github.com/kinship/cycle-api/matching"
	"github.com/kinship/cycle-api/models"
)

const testSecret = "test-secret"

var t0 = time.Date(2025, 10, 20, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memUsers struct {
	mu           sync.Mutex
	byID         map[string]models.User
	tags         map[string][]string
	interactions map[[2]string]int
	posts        map[string]string
	failNext     bool
}

func newMemUsers() *memUsers {
	return &memUsers{
		byID:         map[string]models.User{},
		tags:         map[string][]string{},
		interactions: map[[2]string]int{},
		posts:        map[string]string{},
	}
}

func (m *memUsers) RecordInteraction(_ context.Context, actorID, targetID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions[[2]string{actorID, targetID}]++
	return nil
}

func (m *memUsers) CreatePost(_ context.Context, authorID, cohortID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[authorID+"|"+cohortID] = body
	return nil
}

func (m *memUsers) Create(_ context.Context, user models.User, interests []string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return models.User{}, datastore.ErrEmailTaken
		}
	}
	m.byID[user.UserID] = user
	m.tags[user.UserID] = interests
	return user, nil
}

func (m *memUsers) Get(ctx context.Context, userID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return models.User{}, datastore.NoRowsError{NoRows: true}
	}
	return u, nil
}

func (m *memUsers) Member(ctx context.Context, userID string) (models.User, error) {
	u, err := m.Get(ctx, userID)
	if err != nil {
		return models.User{}, apperr.NotFound("user", userID)
	}
	return u, nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, datastore.NoRowsError{NoRows: true}
}

func (m *memUsers) ValidateAndGetUser(ctx context.Context, creds models.Credentials) (models.User, error) {
	u, err := m.GetUserByEmail(ctx, creds.Email)
	if err != nil {
		return models.User{}, err
	}
	if !u.CheckPassword(creds.Password) {
		return models.User{}, errors.New("error in compare of hash")
	}
	return u, nil
}

func (m *memUsers) SwitchCohort(_ context.Context, userID, cohortID string, joinedAt time.Time) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[userID]
	u.CohortID, u.CohortJoinedAt, u.UpdatedAt = cohortID, joinedAt, joinedAt
	m.byID[userID] = u
	return u, nil
}

// Signals derives overlap from the interest tags given at signup and the
// recorded activity.
func (m *memUsers) Signals(_ context.Context, userID, cohortID string) ([]models.KinshipSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return nil, errors.New("dial tcp: connection refused")
	}
	mine := map[string]bool{}
	for _, t := range m.tags[userID] {
		mine[t] = true
	}
	var out []models.KinshipSignal
	for id, u := range m.byID {
		if id == userID || u.CohortID != cohortID {
			continue
		}
		sig := models.KinshipSignal{
			UserID:           id,
			DisplayName:      u.DisplayName,
			InteractionCount: m.interactions[[2]string{userID, id}] + m.interactions[[2]string{id, userID}],
			Teaser:           m.posts[id+"|"+cohortID],
		}
		for _, t := range m.tags[id] {
			if mine[t] {
				sig.SharedInterests = append(sig.SharedInterests, t)
			}
		}
		out = append(out, sig)
	}
	return out, nil
}

type memCycles struct {
	mu     sync.Mutex
	cycles map[string]models.Cycle
}

func (m *memCycles) Ensure(_ context.Context, userID string, now time.Time) (models.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cycles[userID]; ok {
		return c, nil
	}
	c := models.Cycle{UserID: userID, StartInstant: now, UpdatedAt: now}
	m.cycles[userID] = c
	return c, nil
}

func (m *memCycles) Replace(_ context.Context, c models.Cycle) (models.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[c.UserID] = c
	return c, nil
}

type memConns struct {
	mu    sync.Mutex
	byKey map[models.PairKey]models.Connection
}

func (m *memConns) FindConnection(_ context.Context, a, b, cohortID string) (models.Connection, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byKey[models.NewPairKey(a, b, cohortID)]
	return c, ok, nil
}

func (m *memConns) UpsertConnection(_ context.Context, c models.Connection) (models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byKey[c.Key()]
	if !ok {
		m.byKey[c.Key()] = c
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
	m.byKey[c.Key()] = cur
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

type memResolutions struct {
	mu     sync.Mutex
	claims map[string]models.CycleResolution
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
	r := m.claims[key]
	r.Outcome, r.ResolvedAt = outcome, &resolvedAt
	m.claims[key] = r
	return nil
}

type memAnswers struct {
	mu      sync.Mutex
	answers map[string]models.PromptAnswer
}

func (m *memAnswers) LatestAnswer(_ context.Context, userID, cohortID, promptID string) (models.PromptAnswer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[userID+"/"+cohortID+"/"+promptID]
	return a, ok, nil
}

func (m *memAnswers) SaveAnswer(_ context.Context, a models.PromptAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[a.UserID+"/"+a.CohortID+"/"+a.PromptID] = a
	return nil
}

type harness struct {
	t       *testing.T
	clock   *testClock
	users   *memUsers
	conns   *memConns
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: &testClock{now: t0},
		users: newMemUsers(),
		conns: &memConns{byKey: map[models.PairKey]models.Connection{}},
	}
	prompts := matching.DefaultPromptSets()
	snaps := matching.NewMemorySnapshots()
	answers := &memAnswers{answers: map[string]models.PromptAnswer{}}
	policy := matching.DefaultPolicy()
	clock := cycle.NewClock(&memCycles{cycles: map[string]models.Cycle{}}, h.clock.Now, cycle.DefaultLength, nil)

	app := &Application{
		Config: Config{
			JwtSecret:            testSecret,
			JwtAccessDuration:    900,
			AllowedOrigins:       []string{"https://app.kinship.example"},
			DevMode:              true,
			CohortSwitchCooldown: models.DefaultCohortSwitchCooldown,
		},
		Auth:        JWTAuth{Secret: testSecret},
		UserRepo:    h.users,
		Connections: h.conns,
		Activity:    h.users,
		Clock:       clock,
		Pool:        matching.NewPool(h.users, h.conns, snaps, matching.DefaultScore, policy.PoolSize, h.clock.Now, nil),
		Exchange:    matching.NewExchange(h.users, h.conns, answers, prompts, matching.TokenOverlapRule{Threshold: policy.MatchThreshold}, h.clock.Now, nil),
		Resolver:    matching.NewResolver(clock, h.conns, &memResolutions{claims: map[string]models.CycleResolution{}}, snaps, h.users, policy.SelectionCap, nil),
		Prompts:     prompts,
	}
	h.handler = app.BuildRoutes(http.NewServeMux())
	return h
}

func (h *harness) do(method, path, token, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

// member signs up a hiker with the given interests and returns their id and token.
func (h *harness) member(name string, interests ...string) (string, string) {
	h.t.Helper()
	user, err := models.NewUser(models.UserSignupRequest{
		DisplayName: name,
		Email:       name + "@kinship.example",
		Password:    "correct horse",
		CohortID:    "hikers",
	}, h.clock.Now())
	if err != nil {
		h.t.Fatalf("NewUser: %v", err)
	}
	if _, err := h.users.Create(context.Background(), user, interests); err != nil {
		h.t.Fatalf("Create: %v", err)
	}
	access, err := models.IssueAccessToken(user, testSecret, h.clock.Now(), 100*365*24*time.Hour)
	if err != nil {
		h.t.Fatalf("IssueAccessToken: %v", err)
	}
	return user.UserID, access.Access
}
