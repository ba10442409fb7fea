package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"prodstack/api/internal/genclient"
)

type documentTransport interface {
	GenerateDocument(ctx context.Context, req genclient.Request, catalog genclient.Catalog, onChunk func(string)) (string, error)
}

// echoTransport mirrors every streamed chunk to out as it arrives.
type echoTransport struct {
	next documentTransport
	out  io.Writer
}

func (t echoTransport) GenerateDocument(ctx context.Context, req genclient.Request, catalog genclient.Catalog, onChunk func(string)) (string, error) {
	return t.next.GenerateDocument(ctx, req, catalog, func(chunk string) {
		fmt.Fprint(t.out, chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	})
}

type stdoutNotifier struct{}

func (stdoutNotifier) Success(message string) {
	fmt.Fprintf(os.Stderr, "\n%s\n", message)
}

func (stdoutNotifier) Error(message string) {
	fmt.Fprintf(os.Stderr, "\nerror: %s\n", message)
}

func main() {
	apiURL := flag.String("api", "http://localhost:8790", "API base URL")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	workspaceID := flag.String("workspace", "", "workspace id (omit to list workspaces)")
	documentType := flag.String("type", genclient.DocTypePRD, "document type: prd or user_story")
	personas := flag.String("personas", "", "comma-separated persona ids")
	canvasID := flag.String("canvas", "", "problem canvas id")
	list := flag.Bool("list", false, "list personas, canvases and documents for the workspace and exit")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("both -email and -password are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := genclient.NewClient(*apiURL)
	if err := client.SignIn(ctx, *email, *password); err != nil {
		log.Fatalf("sign in: %v", err)
	}

	workspaces, err := client.ListWorkspaces(ctx)
	if err != nil {
		log.Fatalf("list workspaces: %v", err)
	}

	if *workspaceID == "" {
		for _, workspace := range workspaces {
			fmt.Printf("%s\t%s\n", workspace.ID, workspace.Name)
		}
		return
	}

	workspacePersonas, err := client.ListPersonas(ctx, *workspaceID)
	if err != nil {
		log.Fatalf("list personas: %v", err)
	}
	canvases, err := client.ListCanvases(ctx, *workspaceID)
	if err != nil {
		log.Fatalf("list canvases: %v", err)
	}

	if *list {
		for _, persona := range workspacePersonas {
			fmt.Printf("persona\t%s\t%s\n", persona.ID, persona.Name)
		}
		for _, canvas := range canvases {
			fmt.Printf("canvas\t%s\t%s\n", canvas.ID, canvas.Name)
		}
		documents, err := client.ListDocuments(ctx, *workspaceID)
		if err != nil {
			log.Fatalf("list documents: %v", err)
		}
		for _, doc := range documents {
			fmt.Printf("document\t%s\t%s\n", doc.ID, doc.Title)
		}
		return
	}

	catalog := genclient.Catalog{}
	for _, workspace := range workspaces {
		catalog.WorkspaceIDs = append(catalog.WorkspaceIDs, workspace.ID)
	}
	for _, persona := range workspacePersonas {
		catalog.PersonaIDs = append(catalog.PersonaIDs, persona.ID)
	}
	for _, canvas := range canvases {
		catalog.CanvasIDs = append(catalog.CanvasIDs, canvas.ID)
	}

	req := genclient.Request{
		WorkspaceID:      *workspaceID,
		DocumentType:     *documentType,
		SelectedCanvasID: *canvasID,
	}
	if *personas != "" {
		for _, id := range strings.Split(*personas, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.SelectedPersonaIDs = append(req.SelectedPersonaIDs, id)
			}
		}
	}

	generator := genclient.NewGenerator(echoTransport{next: client, out: os.Stdout}, stdoutNotifier{})
	if err := generator.Generate(ctx, req, catalog); err != nil {
		os.Exit(1)
	}
	fmt.Println()
}
