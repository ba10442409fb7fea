package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"prodstack/api/internal/aigateway"
	"prodstack/api/internal/auth"
	"prodstack/api/internal/authpw"
	"prodstack/api/internal/config"
	"prodstack/api/internal/search"
	"prodstack/api/internal/store"
	"prodstack/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	FullName     string
	JTI          string
	ExpiresAt    time.Time
}

type WorkspaceInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type PersonaInput struct {
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Age          *int     `json:"age"`
	Bio          string   `json:"bio"`
	AvatarURL    string   `json:"avatarUrl"`
	Goals        []string `json:"goals"`
	Frustrations []string `json:"frustrations"`
	Tools        []string `json:"tools"`
}

type CanvasInput struct {
	Name             string          `json:"name"`
	PainPoints       []string        `json:"painPoints"`
	Opportunities    []string        `json:"opportunities"`
	CurrentBehaviors []string        `json:"currentBehaviors"`
	CanvasData       json.RawMessage `json:"canvasData"`
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	UpdateUserProfile(context.Context, string, string, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	ListWorkspaces(context.Context, string) ([]store.Workspace, error)
	GetWorkspace(context.Context, string, string) (store.Workspace, error)
	InsertWorkspace(context.Context, store.Workspace) error
	UpdateWorkspace(context.Context, string, string, string, string) (bool, error)
	DeleteWorkspace(context.Context, string, string) (bool, error)
	ListPersonas(context.Context, string) ([]store.Persona, error)
	GetPersona(context.Context, string, string) (store.Persona, error)
	GetPersonasByIDs(context.Context, string, []string) ([]store.Persona, error)
	InsertPersona(context.Context, store.Persona) error
	UpdatePersona(context.Context, store.Persona) (bool, error)
	DeletePersona(context.Context, string, string) (bool, error)
	ListCanvases(context.Context, string) ([]store.ProblemCanvas, error)
	GetCanvas(context.Context, string, string) (store.ProblemCanvas, error)
	InsertCanvas(context.Context, store.ProblemCanvas) error
	UpdateCanvas(context.Context, store.ProblemCanvas) (bool, error)
	DeleteCanvas(context.Context, string, string) (bool, error)
	ListGeneratedDocuments(context.Context, string) ([]store.GeneratedDocument, error)
	GetGeneratedDocument(context.Context, string, string) (store.GeneratedDocument, error)
	InsertGeneratedDocument(context.Context, store.GeneratedDocument) error
	DeleteGeneratedDocument(context.Context, string, string) (bool, error)
	Ping(ctx context.Context) error
}

// refreshStore holds refresh sessions. Redis serves it in production and
// the Postgres store serves it when Redis is not configured.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	IndexPersona(p search.PersonaRecord)
	DeleteDocument(id string)
	DeletePersona(id string)
}

type aiClient interface {
	Completion(ctx context.Context, messages []aigateway.Message) (string, error)
	StreamCompletion(ctx context.Context, messages []aigateway.Message, onDelta func(string)) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	authpw   *authpw.Service
	search   searchIndex
	ai       aiClient
	limiter  *generationLimiter
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions refreshStore, searchSvc *search.Service, ai *aigateway.Client) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   authpw.NewService(dataStore),
		search:   searchSvc,
		ai:       ai,
		limiter:  newGenerationLimiter(cfg.GeneratePerMinute, cfg.GenerateBurst),
	}
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// Refresh records carry only the user id; the user row is the source
	// of truth for everything minted into the new access token.
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID, fullName, avatarURL string) (map[string]any, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Full name is required", nil)
	}
	if err := s.store.UpdateUserProfile(ctx, userID, fullName, strings.TrimSpace(avatarURL)); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"fullName":  user.FullName,
		"avatarUrl": user.AvatarURL,
	}, nil
}

func (s *Service) ListWorkspaces(ctx context.Context, userID string) ([]map[string]any, error) {
	workspaces, err := s.store.ListWorkspaces(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(workspaces))
	for _, workspace := range workspaces {
		items = append(items, workspacePayload(workspace))
	}
	return items, nil
}

func (s *Service) GetWorkspace(ctx context.Context, workspaceID, userID string) (map[string]any, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Workspace not found or access denied", nil)
		}
		return nil, err
	}
	return workspacePayload(workspace), nil
}

func (s *Service) CreateWorkspace(ctx context.Context, userID string, input WorkspaceInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Workspace name is required", nil)
	}
	workspace := store.Workspace{
		ID:          util.NewID("ws"),
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.store.InsertWorkspace(ctx, workspace); err != nil {
		return nil, err
	}
	return s.GetWorkspace(ctx, workspace.ID, userID)
}

func (s *Service) UpdateWorkspace(ctx context.Context, workspaceID, userID string, input WorkspaceInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Workspace name is required", nil)
	}
	updated, err := s.store.UpdateWorkspace(ctx, workspaceID, userID, name, strings.TrimSpace(input.Description))
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Workspace not found or access denied", nil)
	}
	return s.GetWorkspace(ctx, workspaceID, userID)
}

func (s *Service) DeleteWorkspace(ctx context.Context, workspaceID, userID string) error {
	// Collect child ids before the cascade removes the rows, so the search
	// index can be cleaned up afterwards.
	documents, err := s.store.ListGeneratedDocuments(ctx, workspaceID)
	if err != nil {
		return err
	}
	personas, err := s.store.ListPersonas(ctx, workspaceID)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Workspace not found or access denied", nil)
	}
	for _, doc := range documents {
		s.search.DeleteDocument(doc.ID)
	}
	for _, persona := range personas {
		s.search.DeletePersona(persona.ID)
	}
	return nil
}

func (s *Service) ListPersonas(ctx context.Context, workspaceID, userID string) ([]map[string]any, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	personas, err := s.store.ListPersonas(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(personas))
	for _, persona := range personas {
		items = append(items, personaPayload(persona))
	}
	return items, nil
}

func (s *Service) GetPersona(ctx context.Context, workspaceID, personaID, userID string) (map[string]any, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	persona, err := s.store.GetPersona(ctx, personaID, workspaceID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Persona not found", nil)
		}
		return nil, err
	}
	return personaPayload(persona), nil
}

func (s *Service) CreatePersona(ctx context.Context, workspaceID, userID string, input PersonaInput) (map[string]any, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Workspace not found or access denied", nil)
		}
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Persona name is required", nil)
	}
	persona := store.Persona{
		ID:           util.NewID("per"),
		WorkspaceID:  workspace.ID,
		Name:         name,
		Role:         strings.TrimSpace(input.Role),
		Age:          input.Age,
		Bio:          strings.TrimSpace(input.Bio),
		AvatarURL:    strings.TrimSpace(input.AvatarURL),
		Goals:        input.Goals,
		Frustrations: input.Frustrations,
		Tools:        input.Tools,
	}
	if err := s.store.InsertPersona(ctx, persona); err != nil {
		return nil, err
	}
	s.indexPersona(persona, userID)
	return s.GetPersona(ctx, workspaceID, persona.ID, userID)
}

func (s *Service) UpdatePersona(ctx context.Context, workspaceID, personaID, userID string, input PersonaInput) (map[string]any, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Persona name is required", nil)
	}
	persona := store.Persona{
		ID:           personaID,
		WorkspaceID:  workspaceID,
		Name:         name,
		Role:         strings.TrimSpace(input.Role),
		Age:          input.Age,
		Bio:          strings.TrimSpace(input.Bio),
		AvatarURL:    strings.TrimSpace(input.AvatarURL),
		Goals:        input.Goals,
		Frustrations: input.Frustrations,
		Tools:        input.Tools,
	}
	updated, err := s.store.UpdatePersona(ctx, persona)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Persona not found", nil)
	}
	s.indexPersona(persona, userID)
	return s.GetPersona(ctx, workspaceID, personaID, userID)
}

func (s *Service) DeletePersona(ctx context.Context, workspaceID, personaID, userID string) error {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return err
	}
	deleted, err := s.store.DeletePersona(ctx, personaID, workspaceID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Persona not found", nil)
	}
	s.search.DeletePersona(personaID)
	return nil
}

func (s *Service) ListCanvases(ctx context.Context, workspaceID, userID string) ([]map[string]any, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	canvases, err := s.store.ListCanvases(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(canvases))
	for _, canvas := range canvases {
		items = append(items, canvasPayload(canvas))
	}
	return items, nil
}

func (s *Service) GetCanvas(ctx context.Context, workspaceID, canvasID, userID string) (map[string]any, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	canvas, err := s.store.GetCanvas(ctx, canvasID, workspaceID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Canvas not found", nil)
		}
		return nil, err
	}
	return canvasPayload(canvas), nil
}

func (s *Service) CreateCanvas(ctx context.Context, workspaceID, userID string, input CanvasInput) (map[string]any, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Canvas name is required", nil)
	}
	canvas := store.ProblemCanvas{
		ID:               util.NewID("cnv"),
		WorkspaceID:      workspaceID,
		Name:             name,
		PainPoints:       input.PainPoints,
		Opportunities:    input.Opportunities,
		CurrentBehaviors: input.CurrentBehaviors,
		CanvasData:       input.CanvasData,
	}
	if err := s.store.InsertCanvas(ctx, canvas); err != nil {
		return nil, err
	}
	return s.GetCanvas(ctx, workspaceID, canvas.ID, userID)
}

func (s *Service) UpdateCanvas(ctx context.Context, workspaceID, canvasID, userID string, input CanvasInput) (map[string]any, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Canvas name is required", nil)
	}
	canvas := store.ProblemCanvas{
		ID:               canvasID,
		WorkspaceID:      workspaceID,
		Name:             name,
		PainPoints:       input.PainPoints,
		Opportunities:    input.Opportunities,
		CurrentBehaviors: input.CurrentBehaviors,
		CanvasData:       input.CanvasData,
	}
	updated, err := s.store.UpdateCanvas(ctx, canvas)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Canvas not found", nil)
	}
	return s.GetCanvas(ctx, workspaceID, canvasID, userID)
}

func (s *Service) DeleteCanvas(ctx context.Context, workspaceID, canvasID, userID string) error {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteCanvas(ctx, canvasID, workspaceID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Canvas not found", nil)
	}
	return nil
}

func (s *Service) ListGeneratedDocuments(ctx context.Context, workspaceID, userID string) ([]map[string]any, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	documents, err := s.store.ListGeneratedDocuments(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		items = append(items, documentPayload(doc))
	}
	return items, nil
}

func (s *Service) GetGeneratedDocument(ctx context.Context, workspaceID, documentID, userID string) (map[string]any, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	doc, err := s.store.GetGeneratedDocument(ctx, documentID, workspaceID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Document not found", nil)
		}
		return nil, err
	}
	return documentPayload(doc), nil
}

func (s *Service) DeleteGeneratedDocument(ctx context.Context, workspaceID, documentID, userID string) error {
	if _, err := s.GetWorkspace(ctx, workspaceID, userID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteGeneratedDocument(ctx, documentID, workspaceID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Document not found", nil)
	}
	s.search.DeleteDocument(documentID)
	return nil
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) indexPersona(persona store.Persona, userID string) {
	s.search.IndexPersona(search.PersonaRecord{
		ID:          persona.ID,
		Name:        persona.Name,
		Role:        persona.Role,
		Bio:         persona.Bio,
		WorkspaceID: persona.WorkspaceID,
		UserID:      userID,
	})
}

func workspacePayload(workspace store.Workspace) map[string]any {
	return map[string]any{
		"id":          workspace.ID,
		"name":        workspace.Name,
		"description": workspace.Description,
		"createdAt":   workspace.CreatedAt,
		"updatedAt":   workspace.UpdatedAt,
	}
}

func personaPayload(persona store.Persona) map[string]any {
	return map[string]any{
		"id":           persona.ID,
		"workspaceId":  persona.WorkspaceID,
		"name":         persona.Name,
		"role":         persona.Role,
		"age":          persona.Age,
		"bio":          persona.Bio,
		"avatarUrl":    persona.AvatarURL,
		"goals":        nonNilStrings(persona.Goals),
		"frustrations": nonNilStrings(persona.Frustrations),
		"tools":        nonNilStrings(persona.Tools),
		"createdAt":    persona.CreatedAt,
		"updatedAt":    persona.UpdatedAt,
	}
}

func canvasPayload(canvas store.ProblemCanvas) map[string]any {
	payload := map[string]any{
		"id":               canvas.ID,
		"workspaceId":      canvas.WorkspaceID,
		"name":             canvas.Name,
		"painPoints":       nonNilStrings(canvas.PainPoints),
		"opportunities":    nonNilStrings(canvas.Opportunities),
		"currentBehaviors": nonNilStrings(canvas.CurrentBehaviors),
		"createdAt":        canvas.CreatedAt,
		"updatedAt":        canvas.UpdatedAt,
	}
	if len(canvas.CanvasData) > 0 {
		payload["canvasData"] = canvas.CanvasData
	}
	return payload
}

func documentPayload(doc store.GeneratedDocument) map[string]any {
	return map[string]any{
		"id":             doc.ID,
		"workspaceId":    doc.WorkspaceID,
		"documentType":   doc.DocumentType,
		"title":          doc.Title,
		"content":        doc.Content,
		"sourcePersonas": nonNilStrings(doc.SourcePersonas),
		"sourceCanvas":   doc.SourceCanvas,
		"createdAt":      doc.CreatedAt,
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
