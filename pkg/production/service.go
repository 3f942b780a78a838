package production

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wisbric/dramaforge/internal/db"
	"github.com/wisbric/dramaforge/pkg/artifact"
	"github.com/wisbric/dramaforge/pkg/stage"
)

// Service encapsulates production lifecycle business logic that sits above
// plain persistence: creation, retrieval and listing. Stage advancement
// lives in pkg/workflow, which holds its own Store handle and the
// per-production lock.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a production Service backed by the given database
// connection.
func NewService(dbtx db.DBTX, logger *slog.Logger) *Service {
	return &Service{store: NewStore(dbtx), logger: logger}
}

// CreateRequest is the JSON body for POST /api/v1/productions.
type CreateRequest struct {
	Script        string   `json:"script" validate:"required,min=1"`
	CharacterRefs []string `json:"character_refs"`
	NarrationRef  *string  `json:"narration_ref"`
	Config        struct {
		Aspect        string  `json:"aspect" validate:"required,oneof=9:16 16:9 1:1"`
		Quality       string  `json:"quality" validate:"required,oneof=720p 1080p 4K"`
		Format        string  `json:"format" validate:"required,oneof=mp4 mov"`
		TargetMinutes float64 `json:"target_minutes" validate:"required,min=0.5,max=10"`
	} `json:"config" validate:"required"`
}

// Create validates and persists a new production owned by tenantID.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req CreateRequest) (Production, error) {
	refs := make([]artifact.Ref, len(req.CharacterRefs))
	for i, r := range req.CharacterRefs {
		refs[i] = artifact.Ref(r)
	}
	var narrationRef *artifact.Ref
	if req.NarrationRef != nil && *req.NarrationRef != "" {
		r := artifact.Ref(*req.NarrationRef)
		narrationRef = &r
	}

	p, err := s.store.Create(ctx, CreateParams{
		ID:            uuid.New(),
		TenantID:      tenantID,
		ScriptText:    req.Script,
		CharacterRefs: refs,
		NarrationRef:  narrationRef,
		Config: stage.Config{
			Aspect:        stage.Aspect(req.Config.Aspect),
			Quality:       stage.Quality(req.Config.Quality),
			Format:        stage.Format(req.Config.Format),
			TargetMinutes: req.Config.TargetMinutes,
		},
	})
	if err != nil {
		return Production{}, fmt.Errorf("creating production: %w", err)
	}
	return p, nil
}

// Get returns a single production by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Production, error) {
	p, err := s.store.Load(ctx, id)
	if err != nil {
		return Production{}, err
	}
	return p, nil
}

// List returns a tenant's productions, optionally filtered by status.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter Filter, limit, offset int) ([]Production, int, error) {
	items, total, err := s.store.List(ctx, tenantID, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing productions: %w", err)
	}
	return items, total, nil
}

// Delete removes a production and its dependent rows.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting production: %w", err)
	}
	return nil
}
