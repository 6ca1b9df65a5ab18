package repository

import "github.com/labfleet/labfleet/internal/hostscheduler"

// PoolHostMatcher hands out registered hosts that are neither leased nor
// unhealthy, first match wins. Label-based constraint matching is the rdb
// collaborator's concern and is deliberately not reproduced here; jobs whose
// requirements cannot be met by any free host simply stay queued.
type PoolHostMatcher struct {
	store *RedisLeaseStore
}

func NewPoolHostMatcher(store *RedisLeaseStore) *PoolHostMatcher {
	return &PoolHostMatcher{store: store}
}

func (m *PoolHostMatcher) AcquireHost(job *hostscheduler.Job) (string, bool, error) {
	free, err := m.store.db.SDiff(allHostsKey, leasedHostsKey, unhealthyHostsKey).Result()
	if err != nil {
		return "", false, m.store.wrap(err, "AcquireHost")
	}
	if len(free) == 0 {
		return "", false, nil
	}
	return free[0], true, nil
}
