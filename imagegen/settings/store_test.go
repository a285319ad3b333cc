package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/database"
)

func setupTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: 数据库每个连接独立, 固定为单连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return NewStore(db, zap.NewNop()), db
}

func intPtr(v int) *int { return &v }

func newProfile(provider imagegen.ProviderID, name string, isDefault bool) *imagegen.SettingsProfile {
	return &imagegen.SettingsProfile{
		ProviderID: provider,
		Name:       name,
		IsActive:   true,
		IsDefault:  isDefault,
		Base:       imagegen.BaseSettings{InferenceSteps: intPtr(30)},
		CreatedBy:  "admin-1",
	}
}

func countDefaults(t *testing.T, db *gorm.DB, provider imagegen.ProviderID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&ProfileRecord{}).
		Where("provider_id = ? AND is_default = ?", string(provider), true).
		Count(&n).Error)
	return n
}

func TestUpsert_CreateAssignsIDAndVersion(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	p := newProfile(imagegen.ProviderFlux, "events", true)
	p.Specific = imagegen.FluxSettings{Model: "flux-dev", SafetyTolerance: intPtr(3)}

	saved, err := store.Upsert(ctx, p)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, "admin-1", saved.UpdatedBy)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, *got.Base.InferenceSteps)
	require.IsType(t, imagegen.FluxSettings{}, got.Specific)
	assert.Equal(t, "flux-dev", got.Specific.(imagegen.FluxSettings).Model)
	assert.Equal(t, 3, *got.Specific.(imagegen.FluxSettings).SafetyTolerance)
}

func TestUpsert_VersionIncrementsByOne(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	saved, err := store.Upsert(ctx, newProfile(imagegen.ProviderOpenAI, "v", false))
	require.NoError(t, err)

	const n = 7
	for i := 2; i <= n; i++ {
		saved.Description = fmt.Sprintf("edit %d", i)
		saved, err = store.Upsert(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, i, saved.Version)
	}

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.Version)
	assert.Equal(t, "edit 7", got.Description)
}

func TestUpsert_StaleVersionConflicts(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	saved, err := store.Upsert(ctx, newProfile(imagegen.ProviderOpenAI, "v", false))
	require.NoError(t, err)

	stale := *saved
	saved.Name = "first writer"
	_, err = store.Upsert(ctx, saved)
	require.NoError(t, err)

	stale.Name = "second writer"
	_, err = store.Upsert(ctx, &stale)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestUpsert_NewDefaultClearsPrevious(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	first, err := store.Upsert(ctx, newProfile(imagegen.ProviderIdeogram, "a", true))
	require.NoError(t, err)
	second, err := store.Upsert(ctx, newProfile(imagegen.ProviderIdeogram, "b", true))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, newProfile(imagegen.ProviderRecraft, "other", true))
	require.NoError(t, err)

	assert.Equal(t, int64(1), countDefaults(t, db, imagegen.ProviderIdeogram))
	assert.Equal(t, int64(1), countDefaults(t, db, imagegen.ProviderRecraft))

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)

	active, err := store.ActiveProfile(ctx, imagegen.ProviderIdeogram)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestUpsert_ConcurrentDefaultsKeepSingleDefault(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Upsert(ctx, newProfile(imagegen.ProviderFal, fmt.Sprintf("p%d", i), true))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), countDefaults(t, db, imagegen.ProviderFal))
	all, err := store.List(ctx, imagegen.ProfileFilter{ProviderID: imagegen.ProviderFal})
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestUpsert_DefaultMustBeActive(t *testing.T) {
	store, _ := setupTestStore(t)
	p := newProfile(imagegen.ProviderFlux, "inactive", true)
	p.IsActive = false

	_, err := store.Upsert(context.Background(), p)
	var verr *imagegen.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpsert_RejectsProviderChange(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	saved, err := store.Upsert(ctx, newProfile(imagegen.ProviderFlux, "x", false))
	require.NoError(t, err)
	saved.ProviderID = imagegen.ProviderFal
	_, err = store.Upsert(ctx, saved)
	var verr *imagegen.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSingleDefaultIndex(t *testing.T) {
	_, db := setupTestStore(t)

	insert := func(id string) error {
		return db.Create(&ProfileRecord{
			ID: id, ProviderID: "flux", Name: id, IsActive: true, IsDefault: true, Version: 1,
		}).Error
	}
	require.NoError(t, insert("a"))
	assert.Error(t, insert("b"), "second default for the same provider must violate the index")
}

func TestActiveProfile(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		p, err := store.ActiveProfile(ctx, imagegen.ProviderImagen)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("inactive profiles are ignored", func(t *testing.T) {
		p := newProfile(imagegen.ProviderImagen, "off", false)
		p.IsActive = false
		_, err := store.Upsert(ctx, p)
		require.NoError(t, err)

		got, err := store.ActiveProfile(ctx, imagegen.ProviderImagen)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("falls back to latest active", func(t *testing.T) {
		saved, err := store.Upsert(ctx, newProfile(imagegen.ProviderImagen, "on", false))
		require.NoError(t, err)

		got, err := store.ActiveProfile(ctx, imagegen.ProviderImagen)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, saved.ID, got.ID)
	})

	t.Run("default wins", func(t *testing.T) {
		def, err := store.Upsert(ctx, newProfile(imagegen.ProviderImagen, "default", true))
		require.NoError(t, err)
		_, err = store.Upsert(ctx, newProfile(imagegen.ProviderImagen, "newer", false))
		require.NoError(t, err)

		got, err := store.ActiveProfile(ctx, imagegen.ProviderImagen)
		require.NoError(t, err)
		assert.Equal(t, def.ID, got.ID)
	})
}

func TestDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	def, err := store.Upsert(ctx, newProfile(imagegen.ProviderStability, "default", true))
	require.NoError(t, err)
	other, err := store.Upsert(ctx, newProfile(imagegen.ProviderStability, "other", false))
	require.NoError(t, err)

	assert.ErrorIs(t, store.Delete(ctx, def.ID), ErrDefaultProfile)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrNotFound)

	require.NoError(t, store.Delete(ctx, other.ID))
	_, err = store.Get(ctx, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// 默认配置档仍然存在
	got, err := store.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
}

func TestList_Filters(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, newProfile(imagegen.ProviderFlux, "b", true))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, newProfile(imagegen.ProviderFlux, "a", false))
	require.NoError(t, err)
	inactive := newProfile(imagegen.ProviderOpenAI, "c", false)
	inactive.IsActive = false
	_, err = store.Upsert(ctx, inactive)
	require.NoError(t, err)

	all, err := store.List(ctx, imagegen.ProfileFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)

	active, err := store.List(ctx, imagegen.ProfileFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	defaults, err := store.List(ctx, imagegen.ProfileFilter{DefaultOnly: true})
	require.NoError(t, err)
	require.Len(t, defaults, 1)
	assert.Equal(t, "b", defaults[0].Name)

	openai, err := store.List(ctx, imagegen.ProfileFilter{ProviderID: imagegen.ProviderOpenAI})
	require.NoError(t, err)
	assert.Len(t, openai, 1)
}

type flakyTransactor struct {
	pool     *database.PoolManager
	failures int
	calls    int
}

func (f *flakyTransactor) WithTransactionRetry(ctx context.Context, maxRetries int, fn database.TransactionFunc) error {
	return f.pool.WithTransactionRetry(ctx, maxRetries, func(tx *gorm.DB) error {
		f.calls++
		if f.calls <= f.failures {
			return errors.New("deadlock detected")
		}
		return fn(tx)
	})
}

func TestStore_WithTransactorRetriesTransientErrors(t *testing.T) {
	_, db := setupTestStore(t)
	pool, err := database.NewPoolManager(db, database.PoolConfig{MaxIdleConns: 1, MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)

	tx := &flakyTransactor{pool: pool, failures: 2}
	store := NewStore(db, zap.NewNop(), WithTransactor(tx, 3))

	saved, err := store.Upsert(context.Background(), newProfile(imagegen.ProviderOpenAI, "retry", true))
	require.NoError(t, err)
	assert.Equal(t, 3, tx.calls)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, int64(1), countDefaults(t, db, imagegen.ProviderOpenAI))

	t.Run("gives up after max retries", func(t *testing.T) {
		tx := &flakyTransactor{pool: pool, failures: 10}
		store := NewStore(db, zap.NewNop(), WithTransactor(tx, 2))
		_, err := store.Upsert(context.Background(), newProfile(imagegen.ProviderOpenAI, "never", false))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "deadlock")
		assert.Equal(t, 2, tx.calls)
	})

	t.Run("domain errors are not retried", func(t *testing.T) {
		tx := &flakyTransactor{pool: pool}
		store := NewStore(db, zap.NewNop(), WithTransactor(tx, 5))
		assert.ErrorIs(t, store.Delete(context.Background(), "missing"), ErrNotFound)
		assert.Equal(t, 1, tx.calls)
	})
}
