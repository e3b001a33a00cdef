package cms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paddockdb/paddock/pkg/types"
)

const (
	uniqueViolation     = "23505"
	dnsUniqueConstraint = "idx_instances_dns_name_unique"
)

const instanceColumns = `id, user_name, k8s_name, dns_name,
       state::text AS state, health_status::text AS health_status, message,
       namespace, postgres_version, storage_size_gb, use_load_balancer,
       ip_connection_string, dns_connection_string, external_ip,
       create_orchestration_id, delete_orchestration_id, instance_actor_orchestration_id,
       created_at, updated_at, deleted_at`

// ReserveInstanceParams identifies the row to insert and the
// orchestration claiming it.
type ReserveInstanceParams struct {
	UserName        string
	K8sName         string
	Namespace       string
	PostgresVersion string
	StorageSizeGB   int
	UseLoadBalancer bool
	DNSName         *string
	OrchestrationID string
}

const reserveInstanceSQL = `
INSERT INTO paddock_cms.instances
    (user_name, k8s_name, namespace, postgres_version, storage_size_gb,
     use_load_balancer, dns_name, state, create_orchestration_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'creating', $8)
ON CONFLICT (k8s_name) DO UPDATE
SET user_name         = EXCLUDED.user_name,
    namespace         = EXCLUDED.namespace,
    postgres_version  = EXCLUDED.postgres_version,
    storage_size_gb   = EXCLUDED.storage_size_gb,
    use_load_balancer = EXCLUDED.use_load_balancer,
    dns_name          = EXCLUDED.dns_name,
    updated_at        = NOW()
WHERE paddock_cms.instances.create_orchestration_id = EXCLUDED.create_orchestration_id
RETURNING id`

const dnsOwnerSQL = `
SELECT id, user_name, k8s_name, create_orchestration_id
FROM paddock_cms.instances
WHERE dns_name = $1
  AND dns_name NOT LIKE '\_\_deleted\_%'
  AND state IN ('creating', 'running')`

// ReserveInstance claims a catalog row for a create orchestration. The
// row is keyed by k8s_name; a replayed or retried reserve from the same
// orchestration updates the existing row and returns its id, while a
// claim on a k8s_name held by a different orchestration matches nothing.
//
// A unique-violation on the live-DNS partial index means the requested
// DNS name is taken. The owner row is then inspected outside the failed
// statement: if it belongs to the same orchestration the reservation is
// a replay and its id is reused, otherwise a DNSConflictError names the
// holder.
func (s *Store) ReserveInstance(ctx context.Context, params ReserveInstanceParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowxContext(ctx, reserveInstanceSQL,
		params.UserName, params.K8sName, params.Namespace, params.PostgresVersion,
		params.StorageSizeGB, params.UseLoadBalancer, params.DNSName, params.OrchestrationID,
	).Scan(&id)
	if err == nil {
		s.logger.Info().
			Str("k8s_name", params.K8sName).
			Str("instance_id", id.String()).
			Msg("Reserved instance record")
		return id, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("instance '%s' is already owned by another orchestration", params.K8sName)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == dnsUniqueConstraint {
		return s.resolveDNSConflict(ctx, params)
	}
	return uuid.Nil, fmt.Errorf("reserve instance record: %w", err)
}

func (s *Store) resolveDNSConflict(ctx context.Context, params ReserveInstanceParams) (uuid.UUID, error) {
	if params.DNSName == nil {
		return uuid.Nil, errors.New("dns unique violation without a dns name")
	}
	owner, err := s.GetDNSOwner(ctx, *params.DNSName)
	switch {
	case errors.Is(err, ErrNotFound):
		// The holder vanished between the insert and the inspection.
		return uuid.Nil, fmt.Errorf("dns name '%s' conflicted but the holder is gone, retry", *params.DNSName)
	case err != nil:
		return uuid.Nil, err
	}
	if owner.CreateOrchestrationID == params.OrchestrationID {
		// Replayed reserve for the same workflow; the row already exists.
		return owner.ID, nil
	}
	return uuid.Nil, &DNSConflictError{DNSName: *params.DNSName, K8sName: owner.K8sName, UserName: owner.UserName}
}

// DNSOwner identifies the live instance holding a DNS reservation.
type DNSOwner struct {
	ID                    uuid.UUID `db:"id"`
	UserName              string    `db:"user_name"`
	K8sName               string    `db:"k8s_name"`
	CreateOrchestrationID string    `db:"create_orchestration_id"`
}

// GetDNSOwner returns the creating or running instance that holds
// dnsName. Returns ErrNotFound when the name is free.
func (s *Store) GetDNSOwner(ctx context.Context, dnsName string) (*DNSOwner, error) {
	var owner DNSOwner
	err := s.db.GetContext(ctx, &owner, dnsOwnerSQL, dnsName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("inspect dns owner: %w", err)
	}
	return &owner, nil
}

// UpdateInstanceStateParams carries the target state and any columns to
// overwrite alongside it. Nil optional fields keep the stored value.
type UpdateInstanceStateParams struct {
	K8sName               string
	State                 types.InstanceState
	Message               *string
	IPConnectionString    *string
	DNSConnectionString   *string
	ExternalIP            *string
	DeleteOrchestrationID *string
}

const lockInstanceSQL = `
SELECT id, state::text AS state
FROM paddock_cms.instances
WHERE k8s_name = $1
FOR UPDATE`

const updateStateSQL = `
UPDATE paddock_cms.instances
SET state                   = $2::paddock_cms.instance_state,
    message                 = COALESCE($3, message),
    ip_connection_string    = COALESCE($4, ip_connection_string),
    dns_connection_string   = COALESCE($5, dns_connection_string),
    external_ip             = COALESCE($6, external_ip),
    delete_orchestration_id = COALESCE($7, delete_orchestration_id),
    updated_at              = NOW(),
    deleted_at              = CASE WHEN $2 = 'deleted' THEN NOW() ELSE deleted_at END
WHERE id = $1`

const insertStateEventSQL = `
INSERT INTO paddock_cms.instance_events
    (instance_id, event_type, old_state, new_state, message)
VALUES ($1, 'state_change', $2, $3, $4)`

// UpdateInstanceState moves an instance to a new state and records the
// transition in instance_events when the state actually changed. The row
// is locked for the duration so concurrent transitions serialize.
//
// A missing row is not an error: the record may already be deleted, and
// state updates from stale orchestrations must not fail their callers.
func (s *Store) UpdateInstanceState(ctx context.Context, params UpdateInstanceStateParams) (bool, types.InstanceState, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, "", fmt.Errorf("begin state update: %w", err)
	}
	defer tx.Rollback()

	var row struct {
		ID    uuid.UUID `db:"id"`
		State string    `db:"state"`
	}
	err = tx.GetContext(ctx, &row, lockInstanceSQL, params.K8sName)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn().
			Str("k8s_name", params.K8sName).
			Str("state", string(params.State)).
			Msg("State update skipped, no catalog record")
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("lock instance row: %w", err)
	}

	previous := types.InstanceState(row.State)
	if !previous.CanTransitionTo(params.State) {
		// Still applied: crash repair may re-walk a stranded row's states.
		s.logger.Warn().
			Str("k8s_name", params.K8sName).
			Str("from", row.State).
			Str("to", string(params.State)).
			Msg("State change leaves the allowed lifecycle")
	}

	if _, err := tx.ExecContext(ctx, updateStateSQL,
		row.ID, string(params.State), params.Message,
		params.IPConnectionString, params.DNSConnectionString,
		params.ExternalIP, params.DeleteOrchestrationID,
	); err != nil {
		return false, "", fmt.Errorf("update instance state: %w", err)
	}

	if previous != params.State {
		if _, err := tx.ExecContext(ctx, insertStateEventSQL,
			row.ID, row.State, string(params.State), params.Message,
		); err != nil {
			return false, "", fmt.Errorf("record state event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, "", fmt.Errorf("commit state update: %w", err)
	}
	s.logger.Info().
		Str("k8s_name", params.K8sName).
		Str("from", row.State).
		Str("to", string(params.State)).
		Msg("Updated instance state")
	return true, previous, nil
}

const selectDNSNameSQL = `
SELECT dns_name FROM paddock_cms.instances WHERE k8s_name = $1`

const freeDNSNameSQL = `
UPDATE paddock_cms.instances
SET dns_name   = CONCAT('__deleted_', dns_name),
    updated_at = NOW()
WHERE k8s_name = $1`

// FreeDNSName releases an instance's DNS reservation by prefixing the
// stored name, which removes it from the live-DNS unique index. Returns
// whether a name was actually freed; already-freed and missing rows are
// no-ops.
func (s *Store) FreeDNSName(ctx context.Context, k8sName string) (bool, error) {
	var dnsName *string
	err := s.db.QueryRowxContext(ctx, selectDNSNameSQL, k8sName).Scan(&dnsName)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up dns name: %w", err)
	}
	if dnsName == nil || strings.HasPrefix(*dnsName, types.DeletedDNSPrefix) {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, freeDNSNameSQL, k8sName); err != nil {
		return false, fmt.Errorf("free dns name: %w", err)
	}
	s.logger.Info().Str("k8s_name", k8sName).Str("dns_name", *dnsName).Msg("Freed DNS name")
	return true, nil
}

const getInstanceByK8sNameSQL = `
SELECT ` + instanceColumns + `
FROM paddock_cms.instances
WHERE k8s_name = $1`

// GetInstanceByK8sName fetches the full catalog row, in any state.
// Returns ErrNotFound when no row exists.
func (s *Store) GetInstanceByK8sName(ctx context.Context, k8sName string) (*types.Instance, error) {
	var inst types.Instance
	err := s.db.GetContext(ctx, &inst, getInstanceByK8sNameSQL, k8sName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance '%s': %w", k8sName, err)
	}
	return &inst, nil
}

// ConnectionInfo is the slice of an instance row the health actor needs.
type ConnectionInfo struct {
	ConnectionString *string `db:"connection_string"`
	State            string  `db:"state"`
}

const getConnectionSQL = `
SELECT COALESCE(dns_connection_string, ip_connection_string) AS connection_string,
       state::text AS state
FROM paddock_cms.instances
WHERE k8s_name = $1
LIMIT 1`

// GetInstanceConnection returns the preferred connection string (DNS
// over IP) and current state. Returns ErrNotFound when no row exists.
func (s *Store) GetInstanceConnection(ctx context.Context, k8sName string) (*ConnectionInfo, error) {
	var info ConnectionInfo
	err := s.db.GetContext(ctx, &info, getConnectionSQL, k8sName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance connection '%s': %w", k8sName, err)
	}
	return &info, nil
}

// HealthCheckParams is one probe observation to append to the history.
type HealthCheckParams struct {
	K8sName         string
	Status          types.HealthStatus
	PostgresVersion *string
	ResponseTimeMS  *int64
	ErrorMessage    *string
}

const recordHealthCheckSQL = `
INSERT INTO paddock_cms.instance_health_checks
    (instance_id, status, postgres_version, response_time_ms, error_message, checked_at)
SELECT i.id, $2::paddock_cms.health_status, $3, $4, $5, NOW()
FROM paddock_cms.instances i
WHERE i.k8s_name = $1
RETURNING id`

// RecordHealthCheck appends one row to the health-check history. The
// insert resolves the instance id in the same statement, so a vanished
// instance records nothing and reports recorded=false.
func (s *Store) RecordHealthCheck(ctx context.Context, params HealthCheckParams) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, recordHealthCheckSQL,
		params.K8sName, string(params.Status),
		params.PostgresVersion, params.ResponseTimeMS, params.ErrorMessage,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("record health check: %w", err)
	}
	return id, true, nil
}

const updateHealthSQL = `
UPDATE paddock_cms.instances
SET health_status = $2::paddock_cms.health_status,
    updated_at    = NOW()
WHERE k8s_name = $1
  AND state = 'running'`

// UpdateInstanceHealth writes the rolled-up health column. Only running
// instances carry live health; rows in any other state are left alone
// and the update reports false.
func (s *Store) UpdateInstanceHealth(ctx context.Context, k8sName string, status types.HealthStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, updateHealthSQL, k8sName, string(status))
	if err != nil {
		return false, fmt.Errorf("update instance health: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update instance health: %w", err)
	}
	return n > 0, nil
}

const recordActorSQL = `
UPDATE paddock_cms.instances
SET instance_actor_orchestration_id = $2,
    updated_at                      = NOW()
WHERE k8s_name = $1`

// RecordInstanceActor stores the id of the health actor watching this
// instance so deletion can signal it later.
func (s *Store) RecordInstanceActor(ctx context.Context, k8sName, orchestrationID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, recordActorSQL, k8sName, orchestrationID)
	if err != nil {
		return false, fmt.Errorf("record instance actor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record instance actor: %w", err)
	}
	return n > 0, nil
}

const deleteInstanceSQL = `
DELETE FROM paddock_cms.instances WHERE k8s_name = $1`

// DeleteInstanceRecord removes the catalog row. Health checks and events
// follow via cascade. Missing rows report false without error.
func (s *Store) DeleteInstanceRecord(ctx context.Context, k8sName string) (bool, error) {
	res, err := s.db.ExecContext(ctx, deleteInstanceSQL, k8sName)
	if err != nil {
		return false, fmt.Errorf("delete instance record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete instance record: %w", err)
	}
	if n > 0 {
		s.logger.Info().Str("k8s_name", k8sName).Msg("Deleted instance record")
	}
	return n > 0, nil
}

const listInstancesSQL = `
SELECT ` + instanceColumns + `
FROM paddock_cms.instances
WHERE state != 'deleted'
ORDER BY created_at DESC`

// ListInstances returns every live catalog row, newest first.
func (s *Store) ListInstances(ctx context.Context) ([]types.Instance, error) {
	instances := []types.Instance{}
	if err := s.db.SelectContext(ctx, &instances, listInstancesSQL); err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return instances, nil
}

const findInstanceSQL = `
SELECT ` + instanceColumns + `
FROM paddock_cms.instances
WHERE (k8s_name = $1 OR user_name = $1)
  AND state != 'deleted'
ORDER BY (k8s_name = $1) DESC, created_at DESC
LIMIT 1`

// FindInstance resolves a user-facing name to a live row. An exact
// k8s_name match wins; otherwise the newest instance with that
// user_name. Returns ErrNotFound when neither matches.
func (s *Store) FindInstance(ctx context.Context, name string) (*types.Instance, error) {
	var inst types.Instance
	err := s.db.GetContext(ctx, &inst, findInstanceSQL, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find instance '%s': %w", name, err)
	}
	return &inst, nil
}

const countByStateSQL = `
SELECT state::text AS state, COUNT(*) AS count
FROM paddock_cms.instances
GROUP BY state`

// CountInstancesByState returns row counts keyed by state, feeding the
// instance gauge exported on /metrics.
func (s *Store) CountInstancesByState(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		State string `db:"state"`
		Count int    `db:"count"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, countByStateSQL); err != nil {
		return nil, fmt.Errorf("count instances by state: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}
