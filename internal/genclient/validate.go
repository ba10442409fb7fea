// Package genclient implements the client side of the document generation
// pipeline: request validation, transport, stream decoding, retry, and the
// stateful orchestrator that ties them together.
package genclient

import "errors"

// Document types accepted by the generation endpoint.
const (
	DocTypePRD       = "prd"
	DocTypeUserStory = "user_story"
)

// Request describes one generation attempt. It is built fresh per attempt
// and never mutated mid-flight.
type Request struct {
	WorkspaceID        string
	DocumentType       string
	SelectedPersonaIDs []string
	SelectedCanvasID   string // empty means no canvas selected
}

// Catalog holds the ids the caller currently knows about, used to validate
// a request before it goes on the wire.
type Catalog struct {
	WorkspaceIDs []string
	PersonaIDs   []string
	CanvasIDs    []string
}

// Validate checks a generation request against the known catalog. Rules run
// in order and the first failure wins. It is pure: no side effects, same
// inputs give the same answer.
func Validate(req Request, catalog Catalog) error {
	if req.WorkspaceID == "" {
		return errors.New("Please select a workspace")
	}
	if !contains(catalog.WorkspaceIDs, req.WorkspaceID) {
		return errors.New("Selected workspace is invalid")
	}

	switch req.DocumentType {
	case DocTypeUserStory:
		if len(req.SelectedPersonaIDs) == 0 {
			return errors.New("User story generation requires at least one persona")
		}
	case DocTypePRD:
		if len(req.SelectedPersonaIDs) == 0 && req.SelectedCanvasID == "" {
			return errors.New("PRD generation requires at least one persona or problem canvas")
		}
	}

	for _, id := range req.SelectedPersonaIDs {
		if !contains(catalog.PersonaIDs, id) {
			return errors.New("Some selected personas are invalid")
		}
	}

	if req.SelectedCanvasID != "" && !contains(catalog.CanvasIDs, req.SelectedCanvasID) {
		return errors.New("Selected canvas is invalid")
	}

	return nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
