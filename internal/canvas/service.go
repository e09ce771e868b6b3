package canvas

import (
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/errors"
	"collaborative-canvas/internal/worker"
	"collaborative-canvas/redis"
	"context"
	"encoding/json"
	defError "errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const defaultCanvasName = "Untitled Canvas"

// UpdateFields is the partial-update contract of the store. Nil fields
// are left untouched. Owner and organization can never be changed.
type UpdateFields struct {
	Name      *string         `validate:"omitempty,min=1,max=200"`
	Content   json.RawMessage `validate:"-"`
	Thumbnail *string         `validate:"omitempty,max=700000"`
}

func (f UpdateFields) empty() bool {
	return f.Name == nil && f.Content == nil && f.Thumbnail == nil
}

type PaginatedCanvases struct {
	Data []domain.Canvas `json:"data"`
	Meta CanvasesMeta    `json:"meta"`
}

type Service interface {
	List(ctx context.Context, caller domain.Identity, page, pageSize int) (*PaginatedCanvases, error)
	Create(ctx context.Context, caller domain.Identity, name string) (*domain.Canvas, error)
	Get(ctx context.Context, caller domain.Identity, id string) (*domain.Canvas, error)
	Update(ctx context.Context, caller domain.Identity, id string, fields UpdateFields) error
	Delete(ctx context.Context, caller domain.Identity, id string) error
	Duplicate(ctx context.Context, caller domain.Identity, id string) (*domain.Canvas, error)
}

type DefaultService struct {
	repository CanvasRepository
	cache      *redis.Cache
	pool       *worker.WorkerPool
	validate   *validator.Validate
}

// NewService builds the store. The pool, when provided, runs cache
// fills off the request path; a nil pool falls back to plain goroutines.
func NewService(repository CanvasRepository, cache *redis.Cache, pool *worker.WorkerPool) Service {
	return &DefaultService{
		repository: repository,
		cache:      cache,
		pool:       pool,
		validate:   validator.New(),
	}
}

// List returns canvases scoped to the caller's organization when they
// are in one, otherwise to their personal documents.
func (s *DefaultService) List(ctx context.Context, caller domain.Identity, page, pageSize int) (*PaginatedCanvases, error) {
	versionKey := s.scopeVersionKey(caller.UserID, identityOrgID(caller))
	v := s.cache.GetVersion(ctx, versionKey)

	cacheKey := fmt.Sprintf("canvases:%s:v:%d:p:%d:ps:%d", scopeKey(caller), v, page, pageSize)

	var result PaginatedCanvases
	found, _ := s.cache.Get(ctx, cacheKey, &result)
	if found {
		return &result, nil
	}

	var canvases []domain.Canvas
	var meta CanvasesMeta
	var err error

	// Organization scope takes precedence when present
	if caller.InOrganization() {
		canvases, meta, err = s.repository.ListByOrganization(ctx, caller.OrganizationID, page, pageSize)
	} else {
		canvases, meta, err = s.repository.ListByOwner(ctx, caller.UserID, page, pageSize)
	}
	if err != nil {
		return nil, err
	}

	result = PaginatedCanvases{Data: canvases, Meta: meta}
	s.fillCache(cacheKey, result)

	return &result, nil
}

// fillCache stores a list page off the request path.
func (s *DefaultService) fillCache(key string, value PaginatedCanvases) {
	fill := func(ctx context.Context) error {
		return s.cache.Set(ctx, key, value, 24*time.Hour)
	}
	if s.pool != nil {
		s.pool.Submit(fill)
		return
	}
	go fill(context.Background())
}

func (s *DefaultService) Create(ctx context.Context, caller domain.Identity, name string) (*domain.Canvas, error) {
	if name == "" {
		name = defaultCanvasName
	}
	if len(name) > 200 {
		return nil, errors.UnprocessableEntity("Name must be less than 200 characters", nil)
	}

	canvas := &domain.Canvas{
		UserID: caller.UserID,
		Name:   name,
	}
	if caller.InOrganization() {
		orgID := caller.OrganizationID
		canvas.OrganizationID = &orgID
	}

	if err := s.repository.Create(ctx, canvas); err != nil {
		return nil, err
	}

	s.bumpVersion(ctx, canvas)
	return canvas, nil
}

func (s *DefaultService) Get(ctx context.Context, caller domain.Identity, id string) (*domain.Canvas, error) {
	return s.findAccessible(ctx, caller, id)
}

func (s *DefaultService) Update(ctx context.Context, caller domain.Identity, id string, fields UpdateFields) error {
	if fields.empty() {
		return errors.BadRequest("Nothing to update", nil)
	}
	if err := s.validate.Struct(fields); err != nil {
		return errors.NewValidationError(err)
	}
	if fields.Name != nil && len(*fields.Name) == 0 {
		return errors.UnprocessableEntity("Name cannot be empty", nil)
	}

	canvas, err := s.findAccessible(ctx, caller, id)
	if err != nil {
		return err
	}

	// Owner and organization are deliberately absent here.
	columns := map[string]any{"updated_at": time.Now().UTC()}
	if fields.Name != nil {
		columns["name"] = *fields.Name
	}
	if fields.Content != nil {
		columns["content"] = fields.Content
	}
	if fields.Thumbnail != nil {
		columns["thumbnail"] = *fields.Thumbnail
	}

	if err := s.repository.UpdateFields(ctx, canvas.ID, columns); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Canvas not found", err)
		}
		return err
	}

	s.bumpVersion(ctx, canvas)
	return nil
}

func (s *DefaultService) Delete(ctx context.Context, caller domain.Identity, id string) error {
	canvas, err := s.findAccessible(ctx, caller, id)
	if err != nil {
		return err
	}

	if err := s.repository.Delete(ctx, canvas.ID); err != nil {
		return err
	}

	s.bumpVersion(ctx, canvas)
	return nil
}

// Duplicate copies name (suffixed), content and thumbnail into a fresh
// record owned by the caller's current scope.
func (s *DefaultService) Duplicate(ctx context.Context, caller domain.Identity, id string) (*domain.Canvas, error) {
	source, err := s.findAccessible(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	copyCanvas := &domain.Canvas{
		UserID:    caller.UserID,
		Name:      source.Name + " (Copy)",
		Content:   source.Content,
		Thumbnail: source.Thumbnail,
	}
	if caller.InOrganization() {
		orgID := caller.OrganizationID
		copyCanvas.OrganizationID = &orgID
	}

	if err := s.repository.Create(ctx, copyCanvas); err != nil {
		return nil, err
	}

	s.bumpVersion(ctx, copyCanvas)
	return copyCanvas, nil
}

// findAccessible loads a canvas and enforces the ownership rule: the
// caller must be the personal owner or share the owning organization.
func (s *DefaultService) findAccessible(ctx context.Context, caller domain.Identity, id string) (*domain.Canvas, error) {
	canvas, err := s.repository.FindByID(ctx, id)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Canvas not found", err)
		}
		return nil, err
	}

	if !canvas.OwnedBy(caller) {
		return nil, errors.Forbidden("Access denied", nil)
	}

	return canvas, nil
}

// bumpVersion invalidates list caches for the scope owning the canvas.
func (s *DefaultService) bumpVersion(ctx context.Context, canvas *domain.Canvas) {
	var orgID string
	if canvas.OrganizationID != nil {
		orgID = *canvas.OrganizationID
	}
	s.cache.IncrementVersion(ctx, s.scopeVersionKey(canvas.UserID, orgID))
}

func (s *DefaultService) scopeVersionKey(userID, orgID string) string {
	if orgID != "" {
		return fmt.Sprintf("org:%s:canvases:version", orgID)
	}
	return fmt.Sprintf("user:%s:canvases:version", userID)
}

func identityOrgID(caller domain.Identity) string {
	return caller.OrganizationID
}

func scopeKey(caller domain.Identity) string {
	if caller.InOrganization() {
		return "o:" + caller.OrganizationID
	}
	return "u:" + caller.UserID
}
