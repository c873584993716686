package sqlite

// The files and chunks tables keep the layout of the original metadata
// service; chunk_key is an addition for the unique key scheme.
const schemaFiles = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	file_hash TEXT,
	file_size INTEGER,
	total_chunks INTEGER,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const schemaChunks = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER,
	chunk_order INTEGER,
	storage_nodes TEXT,
	chunk_hash TEXT,
	chunk_key TEXT NOT NULL DEFAULT '',
	FOREIGN KEY(file_id) REFERENCES files(id)
)`

const indexChunksFile = `CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_file_order ON chunks(file_id, chunk_order)`

const (
	pragmaWAL         = `PRAGMA journal_mode=WAL`
	pragmaFK          = `PRAGMA foreign_keys=ON`
	pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
)

func allPragmas() []string {
	return []string{pragmaWAL, pragmaFK, pragmaBusyTimeout}
}

func allSchemaStatements() []string {
	return []string{schemaFiles, schemaChunks, indexChunksFile}
}
