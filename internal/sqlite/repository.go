package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"thumbgen/internal/thumbnails"
)

// Repository implements thumbnails.ExportRepository using SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository.
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS exports (
		id TEXT PRIMARY KEY,
		variation_id TEXT NOT NULL,
		format TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create exports table: %w", err)
	}

	createIndexesQuery := `
	CREATE INDEX IF NOT EXISTS idx_exports_created_at ON exports(created_at);
	CREATE INDEX IF NOT EXISTS idx_exports_variation_id ON exports(variation_id);
	`
	if _, err := r.db.Exec(createIndexesQuery); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create stores export metadata.
func (r *Repository) Create(export *thumbnails.StoredExport) error {
	query := `
	INSERT INTO exports (id, variation_id, format, file_name, file_path, size, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		export.ID,
		export.VariationID,
		string(export.Format),
		export.FileName,
		export.FilePath,
		export.Size,
		export.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create export record: %w", err)
	}
	return nil
}

// ListRecent retrieves the most recent export metadata, newest first.
func (r *Repository) ListRecent(limit int) ([]*thumbnails.StoredExport, error) {
	query := `
	SELECT id, variation_id, format, file_name, file_path, size, created_at
	FROM exports
	ORDER BY created_at DESC
	LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exports: %w", err)
	}
	defer rows.Close()

	var exports []*thumbnails.StoredExport
	for rows.Next() {
		var export thumbnails.StoredExport
		var format string
		err := rows.Scan(
			&export.ID,
			&export.VariationID,
			&format,
			&export.FileName,
			&export.FilePath,
			&export.Size,
			&export.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export row: %w", err)
		}
		export.Format = thumbnails.Format(format)
		exports = append(exports, &export)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating export rows: %w", err)
	}
	return exports, nil
}

// DeleteOlderThan removes metadata for exports created before cutoff. Called
// after the retention sweeper prunes the output directory.
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int, error) {
	result, err := r.db.Exec(`DELETE FROM exports WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete export records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}
