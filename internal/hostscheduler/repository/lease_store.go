package repository

import (
	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/labfleet/labfleet/internal/common/fleeterrors"
)

const (
	allHostsKey        = "Host:All"
	leasedHostsKey     = "Host:Leased"
	referencedHostsKey = "Host:Referenced"
	unhealthyHostsKey  = "Host:Unhealthy"
)

// RedisLeaseStore keeps host lease state in Redis sets. Membership in
// Host:Leased is the lease flag; Host:Referenced tracks hosts claimed by
// active work and is maintained by the job layer; Host:Unhealthy holds hosts
// pulled for repair. All writes go through transactional pipelines so
// concurrent scheduler processes see consistent flags.
type RedisLeaseStore struct {
	db *redis.Client
}

func NewRedisLeaseStore(db *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{db: db}
}

// RegisterHosts adds hosts to the known pool. Registration is idempotent.
func (store *RedisLeaseStore) RegisterHosts(hostIDs ...string) error {
	if len(hostIDs) == 0 {
		return nil
	}
	err := store.db.SAdd(allHostsKey, toInterfaces(hostIDs)...).Err()
	return store.wrap(err, "RegisterHosts")
}

// FindUnusedHealthy returns the leased hosts with no active reference that
// are not marked unhealthy. Computed in a single SDIFF so the result is one
// consistent snapshot.
func (store *RedisLeaseStore) FindUnusedHealthy() ([]string, error) {
	hostIDs, err := store.db.SDiff(leasedHostsKey, referencedHostsKey, unhealthyHostsKey).Result()
	if err != nil {
		return nil, store.wrap(err, "FindUnusedHealthy")
	}
	return hostIDs, nil
}

// SetLeased sets or clears the lease flag on the given hosts atomically.
func (store *RedisLeaseStore) SetLeased(leased bool, hostIDs []string) error {
	if len(hostIDs) == 0 {
		return nil
	}
	pipe := store.db.TxPipeline()
	if leased {
		pipe.SAdd(leasedHostsKey, toInterfaces(hostIDs)...)
	} else {
		pipe.SRem(leasedHostsKey, toInterfaces(hostIDs)...)
	}
	_, err := pipe.Exec()
	return store.wrap(err, "SetLeased")
}

// FilterUnleased returns the subset of hostIDs not currently leased.
func (store *RedisLeaseStore) FilterUnleased(hostIDs []string) ([]string, error) {
	if len(hostIDs) == 0 {
		return []string{}, nil
	}
	pipe := store.db.Pipeline()
	cmds := make([]*redis.BoolCmd, 0, len(hostIDs))
	for _, hostID := range hostIDs {
		cmds = append(cmds, pipe.SIsMember(leasedHostsKey, hostID))
	}
	if _, err := pipe.Exec(); err != nil {
		return nil, store.wrap(err, "FilterUnleased")
	}

	unleased := []string{}
	for i, cmd := range cmds {
		if !cmd.Val() {
			unleased = append(unleased, hostIDs[i])
		}
	}
	return unleased, nil
}

// MarkReferenced records that active work claims the given hosts, shielding
// them from release. Called by the job layer when a job or task starts.
func (store *RedisLeaseStore) MarkReferenced(hostIDs ...string) error {
	if len(hostIDs) == 0 {
		return nil
	}
	err := store.db.SAdd(referencedHostsKey, toInterfaces(hostIDs)...).Err()
	return store.wrap(err, "MarkReferenced")
}

// ClearReferenced drops the active-work claim on the given hosts, making
// them eligible for release on the next tick.
func (store *RedisLeaseStore) ClearReferenced(hostIDs ...string) error {
	if len(hostIDs) == 0 {
		return nil
	}
	err := store.db.SRem(referencedHostsKey, toInterfaces(hostIDs)...).Err()
	return store.wrap(err, "ClearReferenced")
}

// MarkUnhealthy excludes hosts from release until repaired.
func (store *RedisLeaseStore) MarkUnhealthy(hostIDs ...string) error {
	if len(hostIDs) == 0 {
		return nil
	}
	err := store.db.SAdd(unhealthyHostsKey, toInterfaces(hostIDs)...).Err()
	return store.wrap(err, "MarkUnhealthy")
}

// MarkHealthy returns hosts to normal release handling.
func (store *RedisLeaseStore) MarkHealthy(hostIDs ...string) error {
	if len(hostIDs) == 0 {
		return nil
	}
	err := store.db.SRem(unhealthyHostsKey, toInterfaces(hostIDs)...).Err()
	return store.wrap(err, "MarkHealthy")
}

// Hosts returns every registered host.
func (store *RedisLeaseStore) Hosts() ([]string, error) {
	hostIDs, err := store.db.SMembers(allHostsKey).Result()
	if err != nil {
		return nil, store.wrap(err, "Hosts")
	}
	return hostIDs, nil
}

// LeasedHosts returns every host currently holding a lease.
func (store *RedisLeaseStore) LeasedHosts() ([]string, error) {
	hostIDs, err := store.db.SMembers(leasedHostsKey).Result()
	if err != nil {
		return nil, store.wrap(err, "LeasedHosts")
	}
	return hostIDs, nil
}

func (store *RedisLeaseStore) wrap(err error, method string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&fleeterrors.ErrInfra{
		Service: "leasestore",
		Method:  method,
		Message: err.Error(),
	})
}

func toInterfaces(values []string) []interface{} {
	result := make([]interface{}, len(values))
	for i, value := range values {
		result[i] = value
	}
	return result
}
