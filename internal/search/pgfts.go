package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL query across generated_documents and personas,
// joined through workspaces so results stay within the caller's ownership,
// using plainto_tsquery and ts_rank with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.UserID == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.UserID}
	argN := 3

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultDocument {
		docWhere := "gd.fts @@ " + tsQuery + " AND w.user_id = $2"
		if q.FilterWorkspaceID != "" {
			docWhere += fmt.Sprintf(" AND gd.workspace_id = $%d", argN)
			args = append(args, q.FilterWorkspaceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, gd.id, gd.title,
				ts_headline('english', coalesce(gd.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				gd.workspace_id,
				ts_rank(gd.fts, %s) AS rank
			FROM generated_documents gd
			JOIN workspaces w ON w.id = gd.workspace_id
			WHERE %s`, tsQuery, tsQuery, docWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultPersona {
		personaWhere := "p.fts @@ " + tsQuery + " AND w.user_id = $2"
		if q.FilterWorkspaceID != "" {
			personaWhere += fmt.Sprintf(" AND p.workspace_id = $%d", argN)
			args = append(args, q.FilterWorkspaceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'persona'::text AS type, p.id, p.name AS title,
				ts_headline('english', coalesce(p.bio, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.workspace_id,
				ts_rank(p.fts, %s) AS rank
			FROM personas p
			JOIN workspaces w ON w.id = p.workspace_id
			WHERE %s`, tsQuery, tsQuery, personaWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, workspace_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.WorkspaceID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, []PersonaRecord, error) {
	docRows, err := p.db.QueryContext(ctx, `
		SELECT gd.id, gd.title, gd.content, gd.document_type, gd.workspace_id, w.user_id
		FROM generated_documents gd
		JOIN workspaces w ON w.id = gd.workspace_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load generated documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.Title, &d.Content, &d.DocumentType, &d.WorkspaceID, &d.UserID); err != nil {
			return nil, nil, fmt.Errorf("scan generated document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate generated documents: %w", err)
	}

	personaRows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.name, COALESCE(p.role, ''), COALESCE(p.bio, ''), p.workspace_id, w.user_id
		FROM personas p
		JOIN workspaces w ON w.id = p.workspace_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load personas: %w", err)
	}
	defer personaRows.Close()

	personas := make([]PersonaRecord, 0)
	for personaRows.Next() {
		var pr PersonaRecord
		if err := personaRows.Scan(&pr.ID, &pr.Name, &pr.Role, &pr.Bio, &pr.WorkspaceID, &pr.UserID); err != nil {
			return nil, nil, fmt.Errorf("scan persona: %w", err)
		}
		personas = append(personas, pr)
	}
	if err := personaRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate personas: %w", err)
	}

	return documents, personas, nil
}
