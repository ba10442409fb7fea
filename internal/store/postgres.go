package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal string list: %w", err)
	}
	return string(raw), nil
}

// --- users and auth ---

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, avatar_url, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.FullName, user.AvatarURL, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, COALESCE(avatar_url, ''), password_hash, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.FullName, &user.AvatarURL, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, COALESCE(avatar_url, ''), password_hash, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.FullName, &user.AvatarURL, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, userID, fullName, avatarURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET full_name=$2, avatar_url=NULLIF($3, ''), updated_at=NOW()
		WHERE id=$1
	`, userID, fullName, avatarURL)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, used_at=NULL
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.full_name, COALESCE(u.avatar_url, '')
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.FullName, &user.AvatarURL)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- workspaces ---

func (s *PostgresStore) ListWorkspaces(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, COALESCE(description, ''), created_at, updated_at
		FROM workspaces
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		var item Workspace
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.Description, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

// GetWorkspace is scoped by owner so a valid workspace id belonging to
// someone else reads the same as a missing one.
func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID, userID string) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, COALESCE(description, ''), created_at, updated_at
		FROM workspaces
		WHERE id=$1 AND user_id=$2
	`, workspaceID, userID).Scan(&item.ID, &item.UserID, &item.Name, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertWorkspace(ctx context.Context, item Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, user_id, name, description)
		VALUES ($1, $2, $3, NULLIF($4, ''))
	`, item.ID, item.UserID, item.Name, item.Description)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateWorkspace(ctx context.Context, workspaceID, userID, name, description string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspaces SET name=$3, description=NULLIF($4, ''), updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, workspaceID, userID, name, description)
	if err != nil {
		return false, fmt.Errorf("update workspace: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update workspace rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1 AND user_id=$2`, workspaceID, userID)
	if err != nil {
		return false, fmt.Errorf("delete workspace: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete workspace rows: %w", err)
	}
	return affected > 0, nil
}

// --- personas ---

const personaColumns = `id, workspace_id, name, COALESCE(role, ''), age, COALESCE(bio, ''), COALESCE(avatar_url, ''), goals, frustrations, tools, created_at, updated_at`

func scanPersona(scan func(dest ...any) error) (Persona, error) {
	var item Persona
	var goalsRaw, frustrationsRaw, toolsRaw []byte
	if err := scan(
		&item.ID,
		&item.WorkspaceID,
		&item.Name,
		&item.Role,
		&item.Age,
		&item.Bio,
		&item.AvatarURL,
		&goalsRaw,
		&frustrationsRaw,
		&toolsRaw,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return Persona{}, err
	}
	_ = json.Unmarshal(goalsRaw, &item.Goals)
	_ = json.Unmarshal(frustrationsRaw, &item.Frustrations)
	_ = json.Unmarshal(toolsRaw, &item.Tools)
	return item, nil
}

func (s *PostgresStore) ListPersonas(ctx context.Context, workspaceID string) ([]Persona, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+personaColumns+`
		FROM personas
		WHERE workspace_id=$1
		ORDER BY created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	items := make([]Persona, 0)
	for rows.Next() {
		item, err := scanPersona(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personas: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPersona(ctx context.Context, personaID, workspaceID string) (Persona, error) {
	item, err := scanPersona(s.db.QueryRowContext(ctx, `
		SELECT `+personaColumns+`
		FROM personas
		WHERE id=$1 AND workspace_id=$2
	`, personaID, workspaceID).Scan)
	if err != nil {
		return Persona{}, err
	}
	return item, nil
}

// GetPersonasByIDs returns the personas of the workspace whose ids are in
// the given list. Unknown ids are simply absent from the result; callers
// compare lengths to detect them.
func (s *PostgresStore) GetPersonasByIDs(ctx context.Context, workspaceID string, ids []string) ([]Persona, error) {
	if len(ids) == 0 {
		return []Persona{}, nil
	}
	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, workspaceID)
	for i, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, id)
	}
	query := `
		SELECT ` + personaColumns + `
		FROM personas
		WHERE workspace_id=$1 AND id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get personas by ids: %w", err)
	}
	defer rows.Close()

	items := make([]Persona, 0, len(ids))
	for rows.Next() {
		item, err := scanPersona(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personas: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertPersona(ctx context.Context, item Persona) error {
	goals, err := encodeStrings(item.Goals)
	if err != nil {
		return err
	}
	frustrations, err := encodeStrings(item.Frustrations)
	if err != nil {
		return err
	}
	tools, err := encodeStrings(item.Tools)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (id, workspace_id, name, role, age, bio, avatar_url, goals, frustrations, tools)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), $8::jsonb, $9::jsonb, $10::jsonb)
	`, item.ID, item.WorkspaceID, item.Name, item.Role, item.Age, item.Bio, item.AvatarURL, goals, frustrations, tools)
	if err != nil {
		return fmt.Errorf("insert persona: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePersona(ctx context.Context, item Persona) (bool, error) {
	goals, err := encodeStrings(item.Goals)
	if err != nil {
		return false, err
	}
	frustrations, err := encodeStrings(item.Frustrations)
	if err != nil {
		return false, err
	}
	tools, err := encodeStrings(item.Tools)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE personas
		SET name=$3, role=NULLIF($4, ''), age=$5, bio=NULLIF($6, ''), avatar_url=NULLIF($7, ''),
			goals=$8::jsonb, frustrations=$9::jsonb, tools=$10::jsonb, updated_at=NOW()
		WHERE id=$1 AND workspace_id=$2
	`, item.ID, item.WorkspaceID, item.Name, item.Role, item.Age, item.Bio, item.AvatarURL, goals, frustrations, tools)
	if err != nil {
		return false, fmt.Errorf("update persona: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update persona rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeletePersona(ctx context.Context, personaID, workspaceID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM personas WHERE id=$1 AND workspace_id=$2`, personaID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("delete persona: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete persona rows: %w", err)
	}
	return affected > 0, nil
}

// --- problem canvases ---

const canvasColumns = `id, workspace_id, name, pain_points, opportunities, current_behaviors, COALESCE(canvas_data::text, '{}'), created_at, updated_at`

func scanCanvas(scan func(dest ...any) error) (ProblemCanvas, error) {
	var item ProblemCanvas
	var painPointsRaw, opportunitiesRaw, behaviorsRaw []byte
	var canvasData string
	if err := scan(
		&item.ID,
		&item.WorkspaceID,
		&item.Name,
		&painPointsRaw,
		&opportunitiesRaw,
		&behaviorsRaw,
		&canvasData,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return ProblemCanvas{}, err
	}
	_ = json.Unmarshal(painPointsRaw, &item.PainPoints)
	_ = json.Unmarshal(opportunitiesRaw, &item.Opportunities)
	_ = json.Unmarshal(behaviorsRaw, &item.CurrentBehaviors)
	item.CanvasData = json.RawMessage(canvasData)
	return item, nil
}

func (s *PostgresStore) ListCanvases(ctx context.Context, workspaceID string) ([]ProblemCanvas, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+canvasColumns+`
		FROM problem_canvases
		WHERE workspace_id=$1
		ORDER BY created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}
	defer rows.Close()

	items := make([]ProblemCanvas, 0)
	for rows.Next() {
		item, err := scanCanvas(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan canvas: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canvases: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCanvas(ctx context.Context, canvasID, workspaceID string) (ProblemCanvas, error) {
	item, err := scanCanvas(s.db.QueryRowContext(ctx, `
		SELECT `+canvasColumns+`
		FROM problem_canvases
		WHERE id=$1 AND workspace_id=$2
	`, canvasID, workspaceID).Scan)
	if err != nil {
		return ProblemCanvas{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertCanvas(ctx context.Context, item ProblemCanvas) error {
	painPoints, err := encodeStrings(item.PainPoints)
	if err != nil {
		return err
	}
	opportunities, err := encodeStrings(item.Opportunities)
	if err != nil {
		return err
	}
	behaviors, err := encodeStrings(item.CurrentBehaviors)
	if err != nil {
		return err
	}
	canvasData := string(item.CanvasData)
	if canvasData == "" {
		canvasData = "{}"
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO problem_canvases (id, workspace_id, name, pain_points, opportunities, current_behaviors, canvas_data)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb)
	`, item.ID, item.WorkspaceID, item.Name, painPoints, opportunities, behaviors, canvasData)
	if err != nil {
		return fmt.Errorf("insert canvas: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCanvas(ctx context.Context, item ProblemCanvas) (bool, error) {
	painPoints, err := encodeStrings(item.PainPoints)
	if err != nil {
		return false, err
	}
	opportunities, err := encodeStrings(item.Opportunities)
	if err != nil {
		return false, err
	}
	behaviors, err := encodeStrings(item.CurrentBehaviors)
	if err != nil {
		return false, err
	}
	canvasData := string(item.CanvasData)
	if canvasData == "" {
		canvasData = "{}"
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE problem_canvases
		SET name=$3, pain_points=$4::jsonb, opportunities=$5::jsonb, current_behaviors=$6::jsonb, canvas_data=$7::jsonb, updated_at=NOW()
		WHERE id=$1 AND workspace_id=$2
	`, item.ID, item.WorkspaceID, item.Name, painPoints, opportunities, behaviors, canvasData)
	if err != nil {
		return false, fmt.Errorf("update canvas: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update canvas rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteCanvas(ctx context.Context, canvasID, workspaceID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM problem_canvases WHERE id=$1 AND workspace_id=$2`, canvasID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("delete canvas: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete canvas rows: %w", err)
	}
	return affected > 0, nil
}

// --- generated documents ---

const documentColumns = `id, workspace_id, document_type, title, content, source_personas, source_canvas, created_at, updated_at`

func scanGeneratedDocument(scan func(dest ...any) error) (GeneratedDocument, error) {
	var item GeneratedDocument
	var sourcePersonasRaw []byte
	var sourceCanvas sql.NullString
	if err := scan(
		&item.ID,
		&item.WorkspaceID,
		&item.DocumentType,
		&item.Title,
		&item.Content,
		&sourcePersonasRaw,
		&sourceCanvas,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return GeneratedDocument{}, err
	}
	_ = json.Unmarshal(sourcePersonasRaw, &item.SourcePersonas)
	if sourceCanvas.Valid {
		item.SourceCanvas = &sourceCanvas.String
	}
	return item, nil
}

func (s *PostgresStore) ListGeneratedDocuments(ctx context.Context, workspaceID string) ([]GeneratedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM generated_documents
		WHERE workspace_id=$1
		ORDER BY created_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list generated documents: %w", err)
	}
	defer rows.Close()

	items := make([]GeneratedDocument, 0)
	for rows.Next() {
		item, err := scanGeneratedDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan generated document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generated documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetGeneratedDocument(ctx context.Context, documentID, workspaceID string) (GeneratedDocument, error) {
	item, err := scanGeneratedDocument(s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM generated_documents
		WHERE id=$1 AND workspace_id=$2
	`, documentID, workspaceID).Scan)
	if err != nil {
		return GeneratedDocument{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertGeneratedDocument(ctx context.Context, item GeneratedDocument) error {
	sourcePersonas, err := encodeStrings(item.SourcePersonas)
	if err != nil {
		return err
	}
	var sourceCanvas any
	if item.SourceCanvas != nil {
		sourceCanvas = *item.SourceCanvas
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generated_documents (id, workspace_id, document_type, title, content, source_personas, source_canvas)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, item.ID, item.WorkspaceID, item.DocumentType, item.Title, item.Content, sourcePersonas, sourceCanvas)
	if err != nil {
		return fmt.Errorf("insert generated document: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteGeneratedDocument(ctx context.Context, documentID, workspaceID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM generated_documents WHERE id=$1 AND workspace_id=$2`, documentID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("delete generated document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete generated document rows: %w", err)
	}
	return affected > 0, nil
}

// IsNotFound reports whether err is the driver's no-rows error.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
