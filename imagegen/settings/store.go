package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/database"
)

// 哨兵错误, 与 imagegen 中的定义相同以便 errors.Is 跨包匹配
var (
	ErrNotFound        = imagegen.ErrProfileNotFound
	ErrDefaultProfile  = imagegen.ErrDefaultProfile
	ErrVersionConflict = imagegen.ErrVersionConflict
)

// singleDefaultIndex enforces at most one default profile per provider.
const singleDefaultIndex = "idx_provider_settings_single_default"

// Transactor runs write transactions. *database.PoolManager implements it.
type Transactor interface {
	WithTransactionRetry(ctx context.Context, maxRetries int, fn database.TransactionFunc) error
}

// Store is the gorm-backed imagegen.SettingsStore.
type Store struct {
	db         *gorm.DB
	tx         Transactor
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

var _ imagegen.SettingsStore = (*Store)(nil)

// Option 配置 Store
type Option func(*Store)

// WithTransactor 让写操作经由 t 执行, 瞬时错误 (死锁、序列化失败) 最多
// 重试 maxRetries 次
func WithTransactor(t Transactor, maxRetries int) Option {
	return func(s *Store) {
		s.tx = t
		s.maxRetries = maxRetries
	}
}

// NewStore 创建配置档存储
func NewStore(db *gorm.DB, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:     db,
		logger: logger.With(zap.String("component", "settings_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.tx != nil {
		return s.tx.WithTransactionRetry(ctx, s.maxRetries, fn)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// AutoMigrate creates the profile table and the partial unique index that
// keeps a single default per provider. MySQL has no partial indexes; the SQL
// migrations emulate it there with a generated column.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ProfileRecord{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	switch db.Dialector.Name() {
	case "sqlite", "postgres":
		stmt := fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s ON provider_settings_profiles (provider_id) WHERE is_default",
			singleDefaultIndex)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create single default index: %w", err)
		}
	}
	return nil
}

// ActiveProfile returns the default active profile of provider, else the most
// recently updated active one, else nil.
func (s *Store) ActiveProfile(ctx context.Context, provider imagegen.ProviderID) (*imagegen.SettingsProfile, error) {
	var rec ProfileRecord
	err := s.db.WithContext(ctx).
		Where("provider_id = ? AND is_active = ?", string(provider), true).
		Order("is_default DESC").
		Order("updated_at DESC").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active profile for %s: %w", provider, err)
	}
	return rec.toProfile()
}

// Get returns a profile by id.
func (s *Store) Get(ctx context.Context, id string) (*imagegen.SettingsProfile, error) {
	var rec ProfileRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return rec.toProfile()
}

// List returns the profiles matching filter ordered by provider then name.
func (s *Store) List(ctx context.Context, filter imagegen.ProfileFilter) ([]*imagegen.SettingsProfile, error) {
	q := s.db.WithContext(ctx).Model(&ProfileRecord{})
	if filter.ProviderID != "" {
		q = q.Where("provider_id = ?", string(filter.ProviderID))
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if filter.DefaultOnly {
		q = q.Where("is_default = ?", true)
	}

	var recs []ProfileRecord
	if err := q.Order("provider_id").Order("name").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]*imagegen.SettingsProfile, 0, len(recs))
	for i := range recs {
		p, err := recs[i].toProfile()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Upsert creates p (Version 1) or updates it (Version + 1) in one
// transaction. Making p the default clears the flag on every other profile
// of the same provider inside that transaction.
//
// A non-zero p.Version on update must match the stored version, otherwise
// ErrVersionConflict is returned.
func (s *Store) Upsert(ctx context.Context, p *imagegen.SettingsProfile) (*imagegen.SettingsProfile, error) {
	if p.IsDefault && !p.IsActive {
		return nil, &imagegen.ValidationError{Provider: p.ProviderID, Field: "is_default", Reason: "a default profile must be active"}
	}

	var saved *ProfileRecord
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		saved = nil
		now := s.now()

		var existing ProfileRecord
		found := false
		if p.ID != "" {
			err := tx.Where("id = ?", p.ID).Take(&existing).Error
			switch {
			case err == nil:
				found = true
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}
		if found && existing.ProviderID != string(p.ProviderID) {
			return &imagegen.ValidationError{Provider: p.ProviderID, Field: "provider_id", Reason: "cannot move a profile to another provider"}
		}

		rec, err := toRecord(p)
		if err != nil {
			return err
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}

		if rec.IsDefault {
			if err := tx.Model(&ProfileRecord{}).
				Where("provider_id = ? AND id <> ? AND is_default = ?", rec.ProviderID, rec.ID, true).
				Updates(map[string]any{"is_default": false, "updated_at": now}).Error; err != nil {
				return fmt.Errorf("clear previous default: %w", err)
			}
		}

		if !found {
			rec.Version = 1
			rec.CreatedAt = now
			rec.UpdatedAt = now
			if rec.UpdatedBy == "" {
				rec.UpdatedBy = rec.CreatedBy
			}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("create profile: %w", err)
			}
			saved = rec
			return nil
		}

		if p.Version != 0 && p.Version != existing.Version {
			return ErrVersionConflict
		}
		res := tx.Model(&ProfileRecord{}).
			Where("id = ? AND version = ?", rec.ID, existing.Version).
			Updates(map[string]any{
				"name":              rec.Name,
				"description":       rec.Description,
				"base_settings":     rec.BaseSettings,
				"specific_settings": rec.SpecificSettings,
				"is_active":         rec.IsActive,
				"is_default":        rec.IsDefault,
				"updated_by":        rec.UpdatedBy,
				"updated_at":        now,
				"version":           gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("update profile: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		rec.Version = existing.Version + 1
		rec.CreatedAt = existing.CreatedAt
		rec.CreatedBy = existing.CreatedBy
		rec.UpdatedAt = now
		saved = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("profile upserted",
		zap.String("profile_id", saved.ID),
		zap.String("provider", saved.ProviderID),
		zap.Int("version", saved.Version))
	return saved.toProfile()
}

// Delete removes a profile. The default profile of a provider cannot be
// deleted; another profile has to be made default first.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		var rec ProfileRecord
		err := tx.Where("id = ?", id).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if rec.IsDefault {
			return ErrDefaultProfile
		}
		res := tx.Where("id = ? AND is_default = ?", id, false).Delete(&ProfileRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete profile %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			// 并发中被设为默认
			return ErrDefaultProfile
		}
		return nil
	})
}
