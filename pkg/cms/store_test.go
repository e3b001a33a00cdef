package cms

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockdb/paddock/pkg/types"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func str(s string) *string { return &s }

func TestReserveInstance(t *testing.T) {
	params := ReserveInstanceParams{
		UserName:        "mydb",
		K8sName:         "pg-mydb-a1b2c3d4",
		Namespace:       "paddock",
		PostgresVersion: "18",
		StorageSizeGB:   10,
		UseLoadBalancer: true,
		DNSName:         str("mydb"),
		OrchestrationID: "create-pg-mydb-a1b2c3d4",
	}

	t.Run("inserts new row", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(reserveInstanceSQL)).
			WithArgs("mydb", "pg-mydb-a1b2c3d4", "paddock", "18", 10, true, "mydb", "create-pg-mydb-a1b2c3d4").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))

		got, err := store.ReserveInstance(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, id, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reuses row on replay of the same orchestration", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(reserveInstanceSQL)).
			WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: dnsUniqueConstraint})
		mock.ExpectQuery(regexp.QuoteMeta(dnsOwnerSQL)).
			WithArgs("mydb").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_name", "k8s_name", "create_orchestration_id"}).
				AddRow(id.String(), "mydb", "pg-mydb-a1b2c3d4", "create-pg-mydb-a1b2c3d4"))

		got, err := store.ReserveInstance(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("reports conflict when another instance holds the name", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(reserveInstanceSQL)).
			WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: dnsUniqueConstraint})
		mock.ExpectQuery(regexp.QuoteMeta(dnsOwnerSQL)).
			WithArgs("mydb").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_name", "k8s_name", "create_orchestration_id"}).
				AddRow(uuid.New().String(), "otheruser", "pg-other-99999999", "create-pg-other-99999999"))

		_, err := store.ReserveInstance(context.Background(), params)
		require.Error(t, err)
		assert.True(t, IsDNSConflict(err))
		assert.EqualError(t, err, "DNS name 'mydb' is already reserved by instance 'pg-other-99999999' (user: otheruser)")
	})

	t.Run("rejects claim on a row owned by another orchestration", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(reserveInstanceSQL)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.ReserveInstance(context.Background(), params)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already owned by another orchestration")
	})
}

func TestUpdateInstanceState(t *testing.T) {
	t.Run("records transition event when state changes", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := uuid.New()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockInstanceSQL)).
			WithArgs("pg-mydb-a1b2c3d4").
			WillReturnRows(sqlmock.NewRows([]string{"id", "state"}).AddRow(id.String(), "creating"))
		mock.ExpectExec(regexp.QuoteMeta(updateStateSQL)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(insertStateEventSQL)).
			WithArgs(id.String(), "creating", "running", "Instance ready in 42 seconds").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		updated, previous, err := store.UpdateInstanceState(context.Background(), UpdateInstanceStateParams{
			K8sName: "pg-mydb-a1b2c3d4",
			State:   types.InstanceStateRunning,
			Message: str("Instance ready in 42 seconds"),
		})
		require.NoError(t, err)
		assert.True(t, updated)
		assert.Equal(t, types.InstanceStateCreating, previous)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips event when state is unchanged", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockInstanceSQL)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "state"}).AddRow(uuid.New().String(), "running"))
		mock.ExpectExec(regexp.QuoteMeta(updateStateSQL)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		updated, previous, err := store.UpdateInstanceState(context.Background(), UpdateInstanceStateParams{
			K8sName: "pg-mydb-a1b2c3d4",
			State:   types.InstanceStateRunning,
		})
		require.NoError(t, err)
		assert.True(t, updated)
		assert.Equal(t, types.InstanceStateRunning, previous)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tolerates a missing record", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockInstanceSQL)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "state"}))
		mock.ExpectRollback()

		updated, _, err := store.UpdateInstanceState(context.Background(), UpdateInstanceStateParams{
			K8sName: "pg-gone-00000000",
			State:   types.InstanceStateDeleting,
		})
		require.NoError(t, err)
		assert.False(t, updated)
	})

	t.Run("applies a lifecycle-violating repair write", func(t *testing.T) {
		// A crash between the deleted update and the record delete strands
		// the row; the retried delete re-walks deleted -> deleting.
		store, mock := newMockStore(t)
		id := uuid.New()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockInstanceSQL)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "state"}).AddRow(id.String(), "deleted"))
		mock.ExpectExec(regexp.QuoteMeta(updateStateSQL)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(insertStateEventSQL)).
			WithArgs(id.String(), "deleted", "deleting", nil).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		updated, previous, err := store.UpdateInstanceState(context.Background(), UpdateInstanceStateParams{
			K8sName: "pg-mydb-a1b2c3d4",
			State:   types.InstanceStateDeleting,
		})
		require.NoError(t, err)
		assert.True(t, updated)
		assert.Equal(t, types.InstanceStateDeleted, previous)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFreeDNSName(t *testing.T) {
	t.Run("frees an active name", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectDNSNameSQL)).
			WithArgs("pg-mydb-a1b2c3d4").
			WillReturnRows(sqlmock.NewRows([]string{"dns_name"}).AddRow("mydb"))
		mock.ExpectExec(regexp.QuoteMeta(freeDNSNameSQL)).
			WithArgs("pg-mydb-a1b2c3d4").
			WillReturnResult(sqlmock.NewResult(0, 1))

		freed, err := store.FreeDNSName(context.Background(), "pg-mydb-a1b2c3d4")
		require.NoError(t, err)
		assert.True(t, freed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ignores an already freed name", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectDNSNameSQL)).
			WillReturnRows(sqlmock.NewRows([]string{"dns_name"}).AddRow("__deleted_mydb"))

		freed, err := store.FreeDNSName(context.Background(), "pg-mydb-a1b2c3d4")
		require.NoError(t, err)
		assert.False(t, freed)
	})

	t.Run("ignores a missing record", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectDNSNameSQL)).
			WillReturnRows(sqlmock.NewRows([]string{"dns_name"}))

		freed, err := store.FreeDNSName(context.Background(), "pg-gone-00000000")
		require.NoError(t, err)
		assert.False(t, freed)
	})
}

func TestGetInstanceConnection(t *testing.T) {
	t.Run("prefers the dns connection string", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(getConnectionSQL)).
			WithArgs("pg-mydb-a1b2c3d4").
			WillReturnRows(sqlmock.NewRows([]string{"connection_string", "state"}).
				AddRow("postgresql://postgres:pw@mydb.westus3.cloudapp.azure.com:5432/postgres", "running"))

		info, err := store.GetInstanceConnection(context.Background(), "pg-mydb-a1b2c3d4")
		require.NoError(t, err)
		require.NotNil(t, info.ConnectionString)
		assert.Contains(t, *info.ConnectionString, "cloudapp.azure.com")
		assert.Equal(t, "running", info.State)
	})

	t.Run("reports not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(getConnectionSQL)).
			WillReturnRows(sqlmock.NewRows([]string{"connection_string", "state"}))

		_, err := store.GetInstanceConnection(context.Background(), "pg-gone-00000000")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRecordHealthCheck(t *testing.T) {
	t.Run("appends a check row", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(recordHealthCheckSQL)).
			WithArgs("pg-mydb-a1b2c3d4", "healthy", "PostgreSQL 18.1", int64(12), nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

		ms := int64(12)
		id, recorded, err := store.RecordHealthCheck(context.Background(), HealthCheckParams{
			K8sName:         "pg-mydb-a1b2c3d4",
			Status:          types.HealthHealthy,
			PostgresVersion: str("PostgreSQL 18.1"),
			ResponseTimeMS:  &ms,
		})
		require.NoError(t, err)
		assert.True(t, recorded)
		assert.Equal(t, int64(7), id)
	})

	t.Run("reports nothing recorded for a missing instance", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(recordHealthCheckSQL)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, recorded, err := store.RecordHealthCheck(context.Background(), HealthCheckParams{
			K8sName: "pg-gone-00000000",
			Status:  types.HealthUnhealthy,
		})
		require.NoError(t, err)
		assert.False(t, recorded)
	})
}

func TestUpdateInstanceHealth(t *testing.T) {
	t.Run("updates a running instance", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(updateHealthSQL)).
			WithArgs("pg-mydb-a1b2c3d4", "healthy").
			WillReturnResult(sqlmock.NewResult(0, 1))

		updated, err := store.UpdateInstanceHealth(context.Background(), "pg-mydb-a1b2c3d4", types.HealthHealthy)
		require.NoError(t, err)
		assert.True(t, updated)
	})

	t.Run("leaves non-running instances alone", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(updateHealthSQL)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		updated, err := store.UpdateInstanceHealth(context.Background(), "pg-mydb-a1b2c3d4", types.HealthUnhealthy)
		require.NoError(t, err)
		assert.False(t, updated)
	})
}

func TestRecordInstanceActor(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(recordActorSQL)).
		WithArgs("pg-mydb-a1b2c3d4", "actor-pg-mydb-a1b2c3d4").
		WillReturnResult(sqlmock.NewResult(0, 1))

	recorded, err := store.RecordInstanceActor(context.Background(), "pg-mydb-a1b2c3d4", "actor-pg-mydb-a1b2c3d4")
	require.NoError(t, err)
	assert.True(t, recorded)
}

func TestDeleteInstanceRecord(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteInstanceSQL)).
		WithArgs("pg-mydb-a1b2c3d4").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := store.DeleteInstanceRecord(context.Background(), "pg-mydb-a1b2c3d4")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestGetInstanceByK8sName(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(getInstanceByK8sNameSQL)).
		WithArgs("pg-mydb-a1b2c3d4").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_name", "k8s_name", "dns_name", "state", "health_status",
			"namespace", "postgres_version", "storage_size_gb", "use_load_balancer",
			"create_orchestration_id", "instance_actor_orchestration_id",
			"created_at", "updated_at",
		}).AddRow(
			id.String(), "mydb", "pg-mydb-a1b2c3d4", "mydb", "running", "healthy",
			"paddock", "18", 10, true,
			"create-pg-mydb-a1b2c3d4", "actor-pg-mydb-a1b2c3d4",
			now, now,
		))

	inst, err := store.GetInstanceByK8sName(context.Background(), "pg-mydb-a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, id, inst.ID)
	assert.Equal(t, types.InstanceStateRunning, inst.State)
	assert.Equal(t, types.HealthHealthy, inst.Health)
	require.NotNil(t, inst.InstanceActorOrchestrationID)
	assert.Equal(t, "actor-pg-mydb-a1b2c3d4", *inst.InstanceActorOrchestrationID)

	mock.ExpectQuery(regexp.QuoteMeta(getInstanceByK8sNameSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = store.GetInstanceByK8sName(context.Background(), "pg-gone-00000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindInstance(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(findInstanceSQL)).
		WithArgs("mydb").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_name", "k8s_name", "state", "health_status",
			"namespace", "postgres_version", "storage_size_gb", "use_load_balancer",
			"create_orchestration_id", "created_at", "updated_at",
		}).AddRow(
			uuid.New().String(), "mydb", "pg-mydb-a1b2c3d4", "running", "healthy",
			"paddock", "18", 10, false,
			"create-pg-mydb-a1b2c3d4", time.Now(), time.Now(),
		))

	inst, err := store.FindInstance(context.Background(), "mydb")
	require.NoError(t, err)
	assert.Equal(t, "pg-mydb-a1b2c3d4", inst.K8sName)

	mock.ExpectQuery(regexp.QuoteMeta(findInstanceSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = store.FindInstance(context.Background(), "nothere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetDNSOwner(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(dnsOwnerSQL)).
		WithArgs("mydb").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_name", "k8s_name", "create_orchestration_id"}).
			AddRow(uuid.New().String(), "mydb", "pg-mydb-a1b2c3d4", "create-pg-mydb-a1b2c3d4"))

	owner, err := store.GetDNSOwner(context.Background(), "mydb")
	require.NoError(t, err)
	assert.Equal(t, "pg-mydb-a1b2c3d4", owner.K8sName)
	assert.Equal(t, "mydb", owner.UserName)

	mock.ExpectQuery(regexp.QuoteMeta(dnsOwnerSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = store.GetDNSOwner(context.Background(), "freename")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListInstances(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(listInstancesSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_name", "k8s_name", "state", "health_status"}).
			AddRow(uuid.New().String(), "a", "pg-a-11111111", "running", "healthy").
			AddRow(uuid.New().String(), "b", "pg-b-22222222", "creating", "unknown"))

	instances, err := store.ListInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "pg-a-11111111", instances[0].K8sName)
}

func TestCountInstancesByState(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(countByStateSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).
			AddRow("running", 3).
			AddRow("failed", 1))

	counts, err := store.CountInstancesByState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"running": 3, "failed": 1}, counts)
}
