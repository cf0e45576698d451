package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StorageSlot is one durable key/value slot of a visitor
type StorageSlot struct {
	Scope     string    `gorm:"primaryKey;size:64" json:"scope"`
	Key       string    `gorm:"column:slot_key;primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (StorageSlot) TableName() string {
	return "storage_slots"
}

// Gorm keeps slots in the storage_slots table
type Gorm struct {
	db *gorm.DB
}

// NewGorm creates a database-backed backend
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// Area returns the area for scope
func (g *Gorm) Area(scope string) Area {
	return &gormArea{db: g.db, scope: scope}
}

type gormArea struct {
	db    *gorm.DB
	scope string
}

func (a *gormArea) GetItem(ctx context.Context, key string) (string, error) {
	var slot StorageSlot
	err := a.db.WithContext(ctx).
		Where("scope = ? AND slot_key = ?", a.scope, key).
		Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read slot %q: %w", key, err)
	}
	return slot.Value, nil
}

func (a *gormArea) SetItem(ctx context.Context, key, value string) error {
	slot := StorageSlot{
		Scope:     a.scope,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}, {Name: "slot_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&slot).Error
	if err != nil {
		return fmt.Errorf("failed to write slot %q: %w", key, err)
	}
	return nil
}

func (a *gormArea) RemoveItem(ctx context.Context, key string) error {
	err := a.db.WithContext(ctx).
		Where("scope = ? AND slot_key = ?", a.scope, key).
		Delete(&StorageSlot{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove slot %q: %w", key, err)
	}
	return nil
}

func (a *gormArea) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := a.db.WithContext(ctx).
		Model(&StorageSlot{}).
		Where("scope = ?", a.scope).
		Order("slot_key").
		Pluck("slot_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return keys, nil
}
