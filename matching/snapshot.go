package matching

import (
	"context"
	"sync"

	"github.com/kinship/cycle-api/models"
)

// MemorySnapshots is a process-local SnapshotStore for single-instance deployments
// running without redis.
type MemorySnapshots struct {
	mu   sync.RWMutex
	byID map[string]models.RankingSnapshot
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{byID: make(map[string]models.RankingSnapshot)}
}

func snapshotKey(userID, cohortID string) string {
	return cohortID + "/" + userID
}

func (m *MemorySnapshots) SaveSnapshot(_ context.Context, s models.RankingSnapshot) error {
	ids := make([]string, len(s.CandidateIDs))
	copy(ids, s.CandidateIDs)
	s.CandidateIDs = ids

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[snapshotKey(s.UserID, s.CohortID)] = s
	return nil
}

func (m *MemorySnapshots) LatestSnapshot(_ context.Context, userID, cohortID string) (models.RankingSnapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[snapshotKey(userID, cohortID)]
	return s, ok, nil
}
