package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	Email        string
	FullName     string
	AvatarURL    string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Workspace struct {
	ID          string
	UserID      string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Persona struct {
	ID           string
	WorkspaceID  string
	Name         string
	Role         string
	Age          *int
	Bio          string
	AvatarURL    string
	Goals        []string
	Frustrations []string
	Tools        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ProblemCanvas struct {
	ID               string
	WorkspaceID      string
	Name             string
	PainPoints       []string
	Opportunities    []string
	CurrentBehaviors []string
	CanvasData       json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// GeneratedDocument is written exactly once per successful generation;
// there is no update path.
type GeneratedDocument struct {
	ID             string
	WorkspaceID    string
	DocumentType   string
	Title          string
	Content        string
	SourcePersonas []string
	SourceCanvas   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
