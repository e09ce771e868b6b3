package canvas

import (
	"collaborative-canvas/internal/domain"
	"context"

	"gorm.io/gorm"
)

type CanvasesMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

type CanvasRepository interface {
	Create(ctx context.Context, canvas *domain.Canvas) error
	FindByID(ctx context.Context, id string) (*domain.Canvas, error)
	ListByOwner(ctx context.Context, userID string, page, pageSize int) ([]domain.Canvas, CanvasesMeta, error)
	ListByOrganization(ctx context.Context, orgID string, page, pageSize int) ([]domain.Canvas, CanvasesMeta, error)
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

type CanvasRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new canvas repository
func NewRepository(db *gorm.DB) CanvasRepository {
	return &CanvasRepositoryImpl{db: db}
}

func (r *CanvasRepositoryImpl) Create(ctx context.Context, canvas *domain.Canvas) error {
	return r.db.WithContext(ctx).Create(canvas).Error
}

func (r *CanvasRepositoryImpl) FindByID(ctx context.Context, id string) (*domain.Canvas, error) {
	var canvas domain.Canvas
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&canvas).Error
	if err != nil {
		return nil, err
	}
	return &canvas, nil
}

// ListByOwner returns the personal canvases of a user (no organization),
// most recently updated first.
func (r *CanvasRepositoryImpl) ListByOwner(ctx context.Context, userID string, page, pageSize int) ([]domain.Canvas, CanvasesMeta, error) {
	scope := r.db.WithContext(ctx).Model(&domain.Canvas{}).
		Where("user_id = ? AND organization_id IS NULL", userID)
	return r.list(scope, page, pageSize)
}

// ListByOrganization returns all canvases of an organization, most
// recently updated first.
func (r *CanvasRepositoryImpl) ListByOrganization(ctx context.Context, orgID string, page, pageSize int) ([]domain.Canvas, CanvasesMeta, error) {
	scope := r.db.WithContext(ctx).Model(&domain.Canvas{}).
		Where("organization_id = ?", orgID)
	return r.list(scope, page, pageSize)
}

func (r *CanvasRepositoryImpl) list(scope *gorm.DB, page, pageSize int) ([]domain.Canvas, CanvasesMeta, error) {
	var canvases []domain.Canvas
	var totalRecords int64

	// Count total records
	if err := scope.Count(&totalRecords).Error; err != nil {
		return canvases, CanvasesMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := scope.
		Order("updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&canvases).Error

	totalPages := int((totalRecords + int64(pageSize) - 1) / int64(pageSize))

	return canvases, CanvasesMeta{
		Total:       totalRecords,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

// UpdateFields applies a partial update. Callers control which columns
// change; owner and organization are never part of the map.
func (r *CanvasRepositoryImpl) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&domain.Canvas{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *CanvasRepositoryImpl) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Canvas{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
