package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Alwanly/cloud-sdk-go/internal/models"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("record not found")

type Repository struct {
	DB *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

type IRepository interface {
	GetSetting(ctx context.Context, key, label string) (*models.Setting, error)
	UpsertSetting(ctx context.Context, setting *models.Setting) error
	DeleteSetting(ctx context.Context, key, label string) (*models.Setting, error)
	SetSettingLocked(ctx context.Context, id int64, locked bool) error
	ListSettings(ctx context.Context, keyFilter, labelFilter string, offset, limit int) ([]models.Setting, bool, error)

	GetOrCreateLease(ctx context.Context, container, blob string) (*models.BlobLease, error)
	SaveLease(ctx context.Context, lease *models.BlobLease) error

	CreateOperation(ctx context.Context) (*models.Operation, error)
	GetOperation(ctx context.Context, id string) (*models.Operation, error)
	CompleteOperation(ctx context.Context, id, status, errCode, errMsg, result string) error
	PurgeOperations(ctx context.Context, before time.Time) (int64, error)
}

func (r *Repository) GetSetting(ctx context.Context, key, label string) (*models.Setting, error) {
	var setting models.Setting
	err := r.DB.WithContext(ctx).
		Where("key = ? AND label = ?", key, label).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return &setting, nil
}

// UpsertSetting writes the setting and stamps a fresh etag.
func (r *Repository) UpsertSetting(ctx context.Context, setting *models.Setting) error {
	setting.ETag = uuid.NewString()

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Setting
		err := tx.Where("key = ? AND label = ?", setting.Key, setting.Label).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(setting).Error
		}
		if err != nil {
			return err
		}
		setting.ID = existing.ID
		setting.CreatedAt = existing.CreatedAt
		return tx.Save(setting).Error
	})
}

// DeleteSetting removes the setting and returns its last state.
func (r *Repository) DeleteSetting(ctx context.Context, key, label string) (*models.Setting, error) {
	setting, err := r.GetSetting(ctx, key, label)
	if err != nil {
		return nil, err
	}
	if err := r.DB.WithContext(ctx).Delete(setting).Error; err != nil {
		return nil, fmt.Errorf("failed to delete setting: %w", err)
	}
	return setting, nil
}

// SetSettingLocked flips the read-only flag without touching the etag.
func (r *Repository) SetSettingLocked(ctx context.Context, id int64, locked bool) error {
	err := r.DB.WithContext(ctx).Model(&models.Setting{}).
		Where("id = ?", id).Update("locked", locked).Error
	if err != nil {
		return fmt.Errorf("failed to update lock: %w", err)
	}
	return nil
}

// ListSettings pages through settings ordered by key then label. Filters
// ending in "*" match by prefix, anything else matches exactly; empty
// filters match everything. The bool result reports whether more rows
// follow.
func (r *Repository) ListSettings(ctx context.Context, keyFilter, labelFilter string, offset, limit int) ([]models.Setting, bool, error) {
	q := r.DB.WithContext(ctx).Model(&models.Setting{})
	q = applyFilter(q, "key", keyFilter)
	q = applyFilter(q, "label", labelFilter)

	var settings []models.Setting
	// fetch one extra row to detect a following page
	err := q.Order("key, label").Offset(offset).Limit(limit + 1).Find(&settings).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to list settings: %w", err)
	}
	if len(settings) > limit {
		return settings[:limit], true, nil
	}
	return settings, false, nil
}

func applyFilter(q *gorm.DB, column, filter string) *gorm.DB {
	if filter == "" {
		return q
	}
	if strings.HasSuffix(filter, "*") {
		prefix := strings.TrimSuffix(filter, "*")
		return q.Where(column+" LIKE ?", prefix+"%")
	}
	return q.Where(column+" = ?", filter)
}

func (r *Repository) GetOrCreateLease(ctx context.Context, container, blob string) (*models.BlobLease, error) {
	var lease models.BlobLease
	err := r.DB.WithContext(ctx).
		Where("container = ? AND blob = ?", container, blob).
		First(&lease).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		lease = models.BlobLease{
			Container: container,
			Blob:      blob,
			State:     models.LeaseStateAvailable,
		}
		if err := r.DB.WithContext(ctx).Create(&lease).Error; err != nil {
			return nil, fmt.Errorf("failed to create lease: %w", err)
		}
		return &lease, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	return &lease, nil
}

func (r *Repository) SaveLease(ctx context.Context, lease *models.BlobLease) error {
	if err := r.DB.WithContext(ctx).Save(lease).Error; err != nil {
		return fmt.Errorf("failed to save lease: %w", err)
	}
	return nil
}

func (r *Repository) CreateOperation(ctx context.Context) (*models.Operation, error) {
	op := &models.Operation{
		ID:     uuid.NewString(),
		Status: models.OperationStatusInProgress,
	}
	if err := r.DB.WithContext(ctx).Create(op).Error; err != nil {
		return nil, fmt.Errorf("failed to create operation: %w", err)
	}
	return op, nil
}

func (r *Repository) GetOperation(ctx context.Context, id string) (*models.Operation, error) {
	var op models.Operation
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return &op, nil
}

func (r *Repository) CompleteOperation(ctx context.Context, id, status, errCode, errMsg, result string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_code":    errCode,
		"error_message": errMsg,
		"result":        result,
	}
	res := r.DB.WithContext(ctx).Model(&models.Operation{}).
		Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update operation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeOperations drops terminal operations finished before the cutoff.
func (r *Repository) PurgeOperations(ctx context.Context, before time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("status <> ? AND updated_at < ?", models.OperationStatusInProgress, before).
		Delete(&models.Operation{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge operations: %w", res.Error)
	}
	return res.RowsAffected, nil
}
