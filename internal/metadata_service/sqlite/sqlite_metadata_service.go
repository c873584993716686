package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
)

// SQLiteMetadataService persists the registry in a SQLite database. File
// ids are the decimal form of the files.id row id.
type SQLiteMetadataService struct {
	db *sql.DB
	ls log_service.LogService
}

func NewSQLiteMetadataService(ctx context.Context, dbPath string, ls log_service.LogService) (*SQLiteMetadataService, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection serializes writers and keeps per-connection pragmas
	// in force.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}
	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	ls.Info(log_service.LogEvent{
		Message:  "SQLite metadata registry opened",
		Metadata: map[string]any{"path": dbPath},
	})
	return &SQLiteMetadataService{db: db, ls: ls}, nil
}

func (ms *SQLiteMetadataService) Close() error {
	return ms.db.Close()
}

func parseID(fileID string) (int64, bool) {
	id, err := strconv.ParseInt(fileID, 10, 64)
	return id, err == nil && id > 0
}

const timeLayout = time.RFC3339Nano

// Rows written by the original service use SQLite's CURRENT_TIMESTAMP.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (ms *SQLiteMetadataService) CreateFile(ctx context.Context, name, digest string, size int64, chunkCount int) (string, error) {
	if err := metadata_service.ValidateNewFile(name, size, chunkCount); err != nil {
		return "", err
	}

	res, err := ms.db.ExecContext(ctx,
		`INSERT INTO files (filename, file_hash, file_size, total_chunks, created_at) VALUES (?, ?, ?, ?, ?)`,
		name, digest, size, chunkCount, time.Now().UTC().Format(timeLayout))
	if err != nil {
		ms.ls.Error(log_service.LogEvent{
			Message:  "Failed to register file",
			Metadata: map[string]any{"filename": name, "error": err.Error()},
		})
		return "", fmt.Errorf("inserting file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("reading file id: %w", err)
	}

	fileID := strconv.FormatInt(id, 10)
	ms.ls.Info(log_service.LogEvent{
		Message:  "File registered",
		Metadata: map[string]any{"fileID": fileID, "filename": name, "size": size, "chunks": chunkCount},
	})
	return fileID, nil
}

func (ms *SQLiteMetadataService) AppendChunks(ctx context.Context, fileID string, chunks []metadata_service.ChunkRecord) error {
	id, ok := parseID(fileID)
	if !ok {
		return metadata_service.ErrFileNotFound
	}

	tx, err := ms.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var total int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(total_chunks, 0) FROM files WHERE id = ?`, id).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata_service.ErrFileNotFound
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	recorded, err := recordedOrders(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := metadata_service.ValidateChunks(total, recorded, chunks); err != nil {
		ms.ls.Error(log_service.LogEvent{
			Message:  "Rejected chunk records",
			Metadata: map[string]any{"fileID": fileID, "error": err.Error()},
		})
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (file_id, chunk_order, storage_nodes, chunk_hash, chunk_key) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, id, c.Order, metadata_service.JoinHolders(c.Holders), c.Digest, c.Key); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Order, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}

	ms.ls.Debug(log_service.LogEvent{
		Message:  "Chunk records appended",
		Metadata: map[string]any{"fileID": fileID, "appended": len(chunks)},
	})
	return nil
}

func recordedOrders(ctx context.Context, tx *sql.Tx, id int64) (map[int]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT chunk_order FROM chunks WHERE file_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("reading chunk orders: %w", err)
	}
	defer rows.Close()

	out := make(map[int]struct{})
	for rows.Next() {
		var order int
		if err := rows.Scan(&order); err != nil {
			return nil, err
		}
		out[order] = struct{}{}
	}
	return out, rows.Err()
}

func (ms *SQLiteMetadataService) GetFile(ctx context.Context, fileID string) (*metadata_service.File, error) {
	id, ok := parseID(fileID)
	if !ok {
		return nil, metadata_service.ErrFileNotFound
	}

	tx, err := ms.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		f       metadata_service.File
		created string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, filename, COALESCE(file_hash, ''), COALESCE(file_size, 0), COALESCE(total_chunks, 0), COALESCE(created_at, '')
		 FROM files WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.Digest, &f.Size, &f.ChunkCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metadata_service.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	f.CreatedAt = parseTime(created)

	rows, err := tx.QueryContext(ctx,
		`SELECT chunk_order, COALESCE(storage_nodes, ''), COALESCE(chunk_hash, ''), chunk_key
		 FROM chunks WHERE file_id = ? ORDER BY chunk_order`, id)
	if err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	defer rows.Close()

	f.Chunks = make([]metadata_service.ChunkRecord, 0, f.ChunkCount)
	for rows.Next() {
		var (
			c       metadata_service.ChunkRecord
			holders string
		)
		if err := rows.Scan(&c.Order, &holders, &c.Digest, &c.Key); err != nil {
			return nil, err
		}
		c.Holders = metadata_service.SplitHolders(holders)
		f.Chunks = append(f.Chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !f.Complete() {
		return nil, metadata_service.ErrFileNotFound
	}
	return &f, nil
}

func (ms *SQLiteMetadataService) DeleteFile(ctx context.Context, fileID string) error {
	id, ok := parseID(fileID)
	if !ok {
		return metadata_service.ErrFileNotFound
	}

	tx, err := ms.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, id); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metadata_service.ErrFileNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	ms.ls.Info(log_service.LogEvent{
		Message:  "File metadata deleted",
		Metadata: map[string]any{"fileID": fileID},
	})
	return nil
}

func (ms *SQLiteMetadataService) ListFiles(ctx context.Context) ([]metadata_service.File, error) {
	rows, err := ms.db.QueryContext(ctx, `
		SELECT f.id, f.filename, COALESCE(f.file_hash, ''), COALESCE(f.file_size, 0),
		       COALESCE(f.total_chunks, 0), COALESCE(f.created_at, '')
		FROM files f
		WHERE COALESCE(f.total_chunks, 0) = (SELECT COUNT(*) FROM chunks c WHERE c.file_id = f.id)
		ORDER BY f.id`)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	files := make([]metadata_service.File, 0)
	for rows.Next() {
		var (
			f       metadata_service.File
			created string
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Digest, &f.Size, &f.ChunkCount, &created); err != nil {
			return nil, err
		}
		f.CreatedAt = parseTime(created)
		files = append(files, f)
	}
	return files, rows.Err()
}

var _ metadata_service.MetadataService = (*SQLiteMetadataService)(nil)
