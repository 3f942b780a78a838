package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wisbric/dramaforge/internal/db"
	"github.com/wisbric/dramaforge/pkg/artifact"
	"github.com/wisbric/dramaforge/pkg/stage"
)

// Store provides database operations for productions.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a production Store backed by the given database
// connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const productionColumns = `id, tenant_id, script, character_refs, narration_ref,
	config_aspect, config_quality, config_format, config_target_minutes,
	status, current_stage, stage_outputs, version, last_error, last_render_cost,
	created_at, updated_at`

func scanProductionRow(row pgx.Row) (Production, error) {
	var (
		p             Production
		characterRefs []string
		narrationRef  *string
		stageOutputs  []byte
		lastError     []byte
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.ScriptText, &characterRefs, &narrationRef,
		&p.Config.Aspect, &p.Config.Quality, &p.Config.Format, &p.Config.TargetMinutes,
		&p.Status, &p.CurrentStage, &stageOutputs, &p.Version, &lastError, &p.LastRenderCost,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Production{}, err
	}

	p.CharacterRefs = toRefs(characterRefs)
	if narrationRef != nil {
		ref := artifact.Ref(*narrationRef)
		p.NarrationRef = &ref
	}
	if len(stageOutputs) > 0 {
		if err := json.Unmarshal(stageOutputs, &p.StageOutputs); err != nil {
			return Production{}, fmt.Errorf("production: unmarshalling stage_outputs: %w", err)
		}
	}
	if len(lastError) > 0 {
		var le ErrorInfo
		if err := json.Unmarshal(lastError, &le); err != nil {
			return Production{}, fmt.Errorf("production: unmarshalling last_error: %w", err)
		}
		p.LastError = &le
	}
	return p, nil
}

func toRefs(ss []string) []artifact.Ref {
	refs := make([]artifact.Ref, len(ss))
	for i, s := range ss {
		refs[i] = artifact.Ref(s)
	}
	return refs
}

func fromRefs(refs []artifact.Ref) []string {
	ss := make([]string, len(refs))
	for i, r := range refs {
		ss[i] = string(r)
	}
	return ss
}

// CreateParams holds the parameters to create a production.
type CreateParams struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ScriptText    string
	CharacterRefs []artifact.Ref
	NarrationRef  *artifact.Ref
	Config        stage.Config
}

// Create inserts a new production in CREATED status with an empty
// stage_outputs. Fails with ErrConflict if id already exists.
func (s *Store) Create(ctx context.Context, p CreateParams) (Production, error) {
	var narrationRef *string
	if p.NarrationRef != nil {
		v := string(*p.NarrationRef)
		narrationRef = &v
	}
	emptyOutputs, _ := json.Marshal(StageOutputs{})

	query := `INSERT INTO productions (
		id, tenant_id, script, character_refs, narration_ref,
		config_aspect, config_quality, config_format, config_target_minutes,
		status, current_stage, stage_outputs, version
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
	RETURNING ` + productionColumns

	row := s.dbtx.QueryRow(ctx, query,
		p.ID, p.TenantID, p.ScriptText, fromRefs(p.CharacterRefs), narrationRef,
		p.Config.Aspect, p.Config.Quality, p.Config.Format, p.Config.TargetMinutes,
		StatusCreated, stage.ScriptParse, emptyOutputs,
	)
	row2, err := scanProductionRow(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Production{}, ErrConflict
		}
		return Production{}, fmt.Errorf("production: creating: %w", err)
	}
	return row2, nil
}

// Load returns a single production by id.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (Production, error) {
	query := `SELECT ` + productionColumns + ` FROM productions WHERE id = $1`
	p, err := scanProductionRow(s.dbtx.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return Production{}, ErrNotFound
		}
		return Production{}, fmt.Errorf("production: loading: %w", err)
	}
	return p, nil
}

// Filter holds the optional filters for listing productions.
type Filter struct {
	Status Status
}

// List returns a tenant's productions matching filter, newest first,
// offset-paginated, along with the total matching count.
func (s *Store) List(ctx context.Context, tenantID uuid.UUID, filter Filter, limit, offset int) ([]Production, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	whereClause := where[0]
	for _, w := range where[1:] {
		whereClause += " AND " + w
	}

	countQuery := `SELECT count(*) FROM productions WHERE ` + whereClause
	var total int
	if err := s.dbtx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("production: counting: %w", err)
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	listQuery := fmt.Sprintf(
		`SELECT %s FROM productions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		productionColumns, whereClause, len(args)+1, len(args)+2,
	)
	rows, err := s.dbtx.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("production: listing: %w", err)
	}
	defer rows.Close()

	var items []Production
	for rows.Next() {
		p, err := scanProductionRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("production: scanning row: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("production: iterating rows: %w", err)
	}
	return items, total, nil
}

// Update persists p using compare-and-swap on p.Version: the stored row
// must currently have version = p.Version, and the stored version becomes
// p.Version+1. Returns ErrVersionConflict if the row's version has moved
//, or ErrNotFound if the row no longer exists.
func (s *Store) Update(ctx context.Context, p Production) (Production, error) {
	var narrationRef *string
	if p.NarrationRef != nil {
		v := string(*p.NarrationRef)
		narrationRef = &v
	}
	stageOutputs, err := json.Marshal(p.StageOutputs)
	if err != nil {
		return Production{}, fmt.Errorf("production: marshalling stage_outputs: %w", err)
	}
	var lastError []byte
	if p.LastError != nil {
		lastError, err = json.Marshal(p.LastError)
		if err != nil {
			return Production{}, fmt.Errorf("production: marshalling last_error: %w", err)
		}
	}

	query := `UPDATE productions SET
		status = $3, current_stage = $4, stage_outputs = $5, last_error = $6,
		last_render_cost = $7, narration_ref = $8, version = version + 1, updated_at = now()
	WHERE id = $1 AND version = $2
	RETURNING ` + productionColumns

	row := s.dbtx.QueryRow(ctx, query,
		p.ID, p.Version, p.Status, p.CurrentStage, stageOutputs, lastError,
		p.LastRenderCost, narrationRef,
	)
	updated, err := scanProductionRow(row)
	if err != nil {
		if isNoRows(err) {
			// Ambiguous between "row gone" and "version moved"; a live
			// check distinguishes the two for a clearer error to the caller.
			if _, loadErr := s.Load(ctx, p.ID); loadErr != nil {
				return Production{}, ErrNotFound
			}
			return Production{}, ErrVersionConflict
		}
		return Production{}, fmt.Errorf("production: updating: %w", err)
	}
	return updated, nil
}

// Delete removes a production and cascades to its invitations and
// collaborator grants.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM productions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("production: deleting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
