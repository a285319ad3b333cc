package settings

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
)

// ProfileRecord is the persisted row of a settings profile. Base and specific
// settings are stored as JSON text so every dialect can hold them.
type ProfileRecord struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	ProviderID       string    `gorm:"size:32;not null;index:idx_profiles_provider" json:"provider_id"`
	Name             string    `gorm:"size:128;not null" json:"name"`
	Description      string    `gorm:"size:1024" json:"description"`
	BaseSettings     string    `gorm:"type:text" json:"base_settings"`
	SpecificSettings string    `gorm:"type:text" json:"specific_settings"`
	IsActive         bool      `gorm:"not null" json:"is_active"`
	IsDefault        bool      `gorm:"not null;index:idx_profiles_default" json:"is_default"`
	Version          int       `gorm:"not null" json:"version"`
	CreatedBy        string    `gorm:"size:64" json:"created_by"`
	UpdatedBy        string    `gorm:"size:64" json:"updated_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ProfileRecord) TableName() string { return "provider_settings_profiles" }

func toRecord(p *imagegen.SettingsProfile) (*ProfileRecord, error) {
	base, err := json.Marshal(p.Base)
	if err != nil {
		return nil, fmt.Errorf("encode base settings: %w", err)
	}
	specific, err := imagegen.MarshalSpecific(p.Specific)
	if err != nil {
		return nil, fmt.Errorf("encode specific settings: %w", err)
	}
	return &ProfileRecord{
		ID:               p.ID,
		ProviderID:       string(p.ProviderID),
		Name:             p.Name,
		Description:      p.Description,
		BaseSettings:     string(base),
		SpecificSettings: string(specific),
		IsActive:         p.IsActive,
		IsDefault:        p.IsDefault,
		Version:          p.Version,
		CreatedBy:        p.CreatedBy,
		UpdatedBy:        p.UpdatedBy,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}, nil
}

func (r *ProfileRecord) toProfile() (*imagegen.SettingsProfile, error) {
	p := &imagegen.SettingsProfile{
		ID:          r.ID,
		ProviderID:  imagegen.ProviderID(r.ProviderID),
		Name:        r.Name,
		Description: r.Description,
		IsActive:    r.IsActive,
		IsDefault:   r.IsDefault,
		Version:     r.Version,
		CreatedBy:   r.CreatedBy,
		UpdatedBy:   r.UpdatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.BaseSettings != "" {
		if err := json.Unmarshal([]byte(r.BaseSettings), &p.Base); err != nil {
			return nil, fmt.Errorf("decode base settings of %s: %w", r.ID, err)
		}
	}
	specific, err := imagegen.UnmarshalSpecific([]byte(r.SpecificSettings))
	if err != nil {
		return nil, fmt.Errorf("decode specific settings of %s: %w", r.ID, err)
	}
	p.Specific = specific
	return p, nil
}
