package genclient

import "testing"

func testCatalog() Catalog {
	return Catalog{
		WorkspaceIDs: []string{"W1", "W2"},
		PersonaIDs:   []string{"P1", "P2"},
		CanvasIDs:    []string{"C1"},
	}
}

func TestValidateRequiresWorkspace(t *testing.T) {
	err := Validate(Request{DocumentType: DocTypePRD}, testCatalog())
	if err == nil || err.Error() != "Please select a workspace" {
		t.Fatalf("expected workspace-required error, got %v", err)
	}
}

func TestValidateRejectsUnknownWorkspace(t *testing.T) {
	err := Validate(Request{WorkspaceID: "W9", DocumentType: DocTypePRD, SelectedCanvasID: "C1"}, testCatalog())
	if err == nil || err.Error() != "Selected workspace is invalid" {
		t.Fatalf("expected invalid-workspace error, got %v", err)
	}
}

func TestValidateUserStoryNeedsPersona(t *testing.T) {
	err := Validate(Request{WorkspaceID: "W1", DocumentType: DocTypeUserStory}, testCatalog())
	if err == nil || err.Error() != "User story generation requires at least one persona" {
		t.Fatalf("expected persona-required error, got %v", err)
	}
}

func TestValidatePRDNeedsPersonaOrCanvas(t *testing.T) {
	err := Validate(Request{WorkspaceID: "W1", DocumentType: DocTypePRD}, testCatalog())
	if err == nil || err.Error() != "PRD generation requires at least one persona or problem canvas" {
		t.Fatalf("expected persona-or-canvas error, got %v", err)
	}
}

func TestValidatePRDAcceptsCanvasOnly(t *testing.T) {
	err := Validate(Request{WorkspaceID: "W1", DocumentType: DocTypePRD, SelectedCanvasID: "C1"}, testCatalog())
	if err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestValidateRejectsUnknownPersona(t *testing.T) {
	req := Request{
		WorkspaceID:        "W1",
		DocumentType:       DocTypeUserStory,
		SelectedPersonaIDs: []string{"P1", "P9"},
	}
	err := Validate(req, testCatalog())
	if err == nil || err.Error() != "Some selected personas are invalid" {
		t.Fatalf("expected invalid-personas error, got %v", err)
	}
}

func TestValidateRejectsUnknownCanvas(t *testing.T) {
	req := Request{
		WorkspaceID:        "W1",
		DocumentType:       DocTypePRD,
		SelectedPersonaIDs: []string{"P1"},
		SelectedCanvasID:   "C9",
	}
	err := Validate(req, testCatalog())
	if err == nil || err.Error() != "Selected canvas is invalid" {
		t.Fatalf("expected invalid-canvas error, got %v", err)
	}
}

func TestValidateAcceptsCompleteRequest(t *testing.T) {
	req := Request{
		WorkspaceID:        "W1",
		DocumentType:       DocTypeUserStory,
		SelectedPersonaIDs: []string{"P1", "P2"},
		SelectedCanvasID:   "C1",
	}
	if err := Validate(req, testCatalog()); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	req := Request{WorkspaceID: "W1", DocumentType: DocTypeUserStory}
	catalog := testCatalog()

	first := Validate(req, catalog)
	second := Validate(req, catalog)
	if first == nil || second == nil {
		t.Fatal("expected both calls to fail")
	}
	if first.Error() != second.Error() {
		t.Errorf("expected identical results, got %q and %q", first.Error(), second.Error())
	}
}
