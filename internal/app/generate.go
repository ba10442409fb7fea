package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"prodstack/api/internal/aigateway"
	"prodstack/api/internal/search"
	"prodstack/api/internal/store"
	"prodstack/api/internal/util"
)

const (
	DocumentTypePRD       = "prd"
	DocumentTypeUserStory = "user_story"
)

const generationSystemPrompt = "You are a senior product manager creating professional product documentation."

type GenerateInput struct {
	WorkspaceID      string   `json:"workspaceId"`
	DocumentType     string   `json:"documentType"`
	SelectedPersonas []string `json:"selectedPersonas"`
	SelectedCanvas   *string  `json:"selectedCanvas"`
}

type preparedGeneration struct {
	workspace      store.Workspace
	personas       []store.Persona
	canvas         *store.ProblemCanvas
	title          string
	documentType   string
	messages       []aigateway.Message
	sourcePersonas []string
	sourceCanvas   *string
	userID         string
}

// PrepareGeneration validates a generation request against the caller's own
// data and assembles the prompt. All failures surface as DomainError so the
// handler can reject before any stream bytes are written.
func (s *Service) PrepareGeneration(ctx context.Context, session Session, input GenerateInput) (*preparedGeneration, error) {
	if !s.limiter.Allow(session.UserID) {
		return nil, domainError(http.StatusTooManyRequests, "RATE_LIMIT", "Too many requests. Please try again in a moment.", nil)
	}

	if strings.TrimSpace(input.WorkspaceID) == "" || strings.TrimSpace(input.DocumentType) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required parameters", nil)
	}

	if input.DocumentType != DocumentTypePRD && input.DocumentType != DocumentTypeUserStory {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid document type", nil)
	}

	workspace, err := s.store.GetWorkspace(ctx, input.WorkspaceID, session.UserID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Workspace not found or access denied", nil)
		}
		return nil, err
	}

	var personas []store.Persona
	if len(input.SelectedPersonas) > 0 {
		personas, err = s.store.GetPersonasByIDs(ctx, workspace.ID, input.SelectedPersonas)
		if err != nil {
			return nil, fmt.Errorf("fetch selected personas: %w", err)
		}
		if len(personas) == 0 {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "No valid personas found. Please create personas first.", nil)
		}
		if len(personas) < len(input.SelectedPersonas) {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Some selected personas are invalid", nil)
		}
	}

	var canvas *store.ProblemCanvas
	if input.SelectedCanvas != nil && *input.SelectedCanvas != "" {
		found, err := s.store.GetCanvas(ctx, *input.SelectedCanvas, workspace.ID)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Selected canvas is invalid", nil)
			}
			return nil, err
		}
		canvas = &found
	}

	if input.DocumentType == DocumentTypeUserStory && len(personas) == 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "User story generation requires at least one persona", nil)
	}
	if input.DocumentType == DocumentTypePRD && len(personas) == 0 && canvas == nil {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "PRD generation requires at least one persona or problem canvas", nil)
	}

	contextBlob := buildGenerationContext(workspace, personas, canvas)
	title := "PRD for " + workspace.Name
	userPrompt := prdPrompt(contextBlob)
	if input.DocumentType == DocumentTypeUserStory {
		title = "User Stories for " + workspace.Name
		userPrompt = userStoryPrompt(contextBlob)
	}

	sourcePersonas := make([]string, 0, len(personas))
	for _, persona := range personas {
		sourcePersonas = append(sourcePersonas, persona.ID)
	}
	var sourceCanvas *string
	if canvas != nil {
		id := canvas.ID
		sourceCanvas = &id
	}

	return &preparedGeneration{
		workspace:      workspace,
		personas:       personas,
		canvas:         canvas,
		title:          title,
		documentType:   input.DocumentType,
		sourcePersonas: sourcePersonas,
		sourceCanvas:   sourceCanvas,
		userID:         session.UserID,
		messages: []aigateway.Message{
			{Role: "system", Content: generationSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}, nil
}

// StreamGeneration relays completion deltas to onDelta and persists the
// finished document. A persist failure does not fail the stream; the caller
// already received the full content.
func (s *Service) StreamGeneration(ctx context.Context, prep *preparedGeneration, onDelta func(string)) error {
	content, err := s.ai.StreamCompletion(ctx, prep.messages, onDelta)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return aigateway.ErrEmptyResponse
	}
	if _, err := s.persistGeneratedDocument(ctx, prep, content); err != nil {
		log.Printf(`{"event":"generated_document_persist_failed","workspace_id":"%s","error":"%s"}`, prep.workspace.ID, err)
	}
	return nil
}

// GenerateSync runs the same pipeline without streaming and returns the
// stored document payload.
func (s *Service) GenerateSync(ctx context.Context, prep *preparedGeneration) (map[string]any, error) {
	content, err := s.ai.Completion(ctx, prep.messages)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, aigateway.ErrEmptyResponse
	}
	return s.persistGeneratedDocument(ctx, prep, content)
}

func (s *Service) persistGeneratedDocument(ctx context.Context, prep *preparedGeneration, content string) (map[string]any, error) {
	doc := store.GeneratedDocument{
		ID:             util.NewID("doc"),
		WorkspaceID:    prep.workspace.ID,
		DocumentType:   prep.documentType,
		Title:          prep.title,
		Content:        content,
		SourcePersonas: prep.sourcePersonas,
		SourceCanvas:   prep.sourceCanvas,
	}
	if err := s.store.InsertGeneratedDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:           doc.ID,
		Title:        doc.Title,
		Content:      doc.Content,
		DocumentType: doc.DocumentType,
		WorkspaceID:  doc.WorkspaceID,
		UserID:       prep.userID,
	})
	stored, err := s.store.GetGeneratedDocument(ctx, doc.ID, doc.WorkspaceID)
	if err != nil {
		return documentPayload(doc), nil
	}
	return documentPayload(stored), nil
}

func buildGenerationContext(workspace store.Workspace, personas []store.Persona, canvas *store.ProblemCanvas) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workspace: %s\n", workspace.Name)
	if workspace.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", workspace.Description)
	}

	if len(personas) > 0 {
		b.WriteString("\nPersonas:\n")
		for _, persona := range personas {
			fmt.Fprintf(&b, "- %s", persona.Name)
			if persona.Role != "" {
				fmt.Fprintf(&b, " (%s)", persona.Role)
			}
			if persona.Age != nil {
				fmt.Fprintf(&b, ", age %d", *persona.Age)
			}
			if persona.Bio != "" {
				fmt.Fprintf(&b, ": %s", persona.Bio)
			}
			b.WriteString("\n")
			if len(persona.Goals) > 0 {
				fmt.Fprintf(&b, "  Goals: %s\n", strings.Join(persona.Goals, "; "))
			}
			if len(persona.Frustrations) > 0 {
				fmt.Fprintf(&b, "  Frustrations: %s\n", strings.Join(persona.Frustrations, "; "))
			}
			if len(persona.Tools) > 0 {
				fmt.Fprintf(&b, "  Tools: %s\n", strings.Join(persona.Tools, "; "))
			}
		}
	}

	if canvas != nil {
		fmt.Fprintf(&b, "\nProblem Canvas: %s\n", canvas.Name)
		if len(canvas.PainPoints) > 0 {
			fmt.Fprintf(&b, "  Pain Points: %s\n", strings.Join(canvas.PainPoints, "; "))
		}
		if len(canvas.CurrentBehaviors) > 0 {
			fmt.Fprintf(&b, "  Current Behaviors: %s\n", strings.Join(canvas.CurrentBehaviors, "; "))
		}
		if len(canvas.Opportunities) > 0 {
			fmt.Fprintf(&b, "  Opportunities: %s\n", strings.Join(canvas.Opportunities, "; "))
		}
	}

	return b.String()
}

func prdPrompt(contextBlob string) string {
	return "Create a Product Requirements Document (PRD) for the following product context.\n\n" +
		contextBlob +
		"\nThe PRD must include these sections: Executive Summary, Problem Statement, Target Users, " +
		"Product Goals, Features and Requirements, Success Metrics, Timeline and Milestones. " +
		"Format the document in Markdown."
}

func userStoryPrompt(contextBlob string) string {
	return "Create user stories for the following product context.\n\n" +
		contextBlob +
		"\nWrite 3-5 user stories per persona in the format \"As a [persona], I want [goal] so that [benefit]\". " +
		"Each story needs acceptance criteria, a priority (High/Medium/Low) and an effort estimate (Small/Medium/Large). " +
		"Format the document in Markdown."
}

func mapAIError(err error) (int, string, string) {
	switch {
	case errors.Is(err, aigateway.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMIT", "Too many requests. Please try again in a moment."
	case errors.Is(err, aigateway.ErrPaymentRequired):
		return http.StatusPaymentRequired, "PAYMENT_REQUIRED", "AI usage limit reached"
	case errors.Is(err, aigateway.ErrUnauthorized):
		return http.StatusInternalServerError, "AI_AUTH_FAILED", "AI service authentication failed"
	case errors.Is(err, aigateway.ErrUnavailable):
		return http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI service temporarily unavailable"
	case errors.Is(err, aigateway.ErrEmptyResponse):
		return http.StatusInternalServerError, "EMPTY_RESPONSE", "No content received from AI service"
	default:
		return http.StatusInternalServerError, "SERVER_ERROR", "Document generation failed"
	}
}
