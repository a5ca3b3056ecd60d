// Package sqlite implements C1, the embedded relational store, on top
// of the pure-Go ncruces/go-sqlite3 driver.
package sqlite

// schema is the baseline structure created on a fresh database before
// any numbered migration runs. It holds every entity named in the data
// model: repositories, index jobs, indexed files/symbols/references/
// dependencies, the migrations ledger, and a small key-value config
// table reused by the sync exporter's policy settings.
const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	id              TEXT PRIMARY KEY,
	owner_scope     TEXT NOT NULL,
	full_name       TEXT NOT NULL,
	git_url         TEXT NOT NULL,
	default_branch  TEXT NOT NULL DEFAULT 'main',
	installation_id TEXT,
	last_push_at    TEXT,
	updated_at      TEXT NOT NULL,
	UNIQUE (owner_scope, full_name)
);

CREATE TABLE IF NOT EXISTS index_jobs (
	id                     TEXT PRIMARY KEY,
	repository_id          TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	ref                    TEXT NOT NULL,
	commit_sha             TEXT,
	status                 TEXT NOT NULL DEFAULT 'pending',
	requested_by           TEXT,
	started_at             TEXT,
	completed_at           TEXT,
	error_message          TEXT,
	retry_count            INTEGER NOT NULL DEFAULT 0,
	available_at           TEXT NOT NULL,
	cancelled              INTEGER NOT NULL DEFAULT 0,
	files_indexed          INTEGER NOT NULL DEFAULT 0,
	symbols_extracted      INTEGER NOT NULL DEFAULT 0,
	references_found       INTEGER NOT NULL DEFAULT 0,
	dependencies_extracted INTEGER NOT NULL DEFAULT 0,
	created_at             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_index_jobs_status ON index_jobs(status, created_at, id);
CREATE INDEX IF NOT EXISTS idx_index_jobs_repo_commit ON index_jobs(repository_id, commit_sha);
-- Enforces J1 (at most one pending job per repository+commit) at the
-- database layer: two concurrent enqueues race the same INSERT, and
-- EnqueuePending's ON CONFLICT ... DO NOTHING turns the loser's insert
-- into a no-op instead of a second pending row.
CREATE UNIQUE INDEX IF NOT EXISTS idx_index_jobs_pending_unique
	ON index_jobs(repository_id, commit_sha) WHERE status = 'pending' AND commit_sha IS NOT NULL;

CREATE TABLE IF NOT EXISTS indexed_files (
	id             TEXT PRIMARY KEY,
	repository_id  TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	path           TEXT NOT NULL,
	content        TEXT NOT NULL DEFAULT '',
	language       TEXT NOT NULL DEFAULT '',
	dependencies   TEXT NOT NULL DEFAULT '[]',
	content_hash   TEXT NOT NULL,
	indexed_at     TEXT NOT NULL,
	UNIQUE (repository_id, path)
);
CREATE INDEX IF NOT EXISTS idx_indexed_files_repo ON indexed_files(repository_id, indexed_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS indexed_files_fts USING fts5(
	content,
	content='indexed_files',
	content_rowid='rowid'
);

CREATE TABLE IF NOT EXISTS indexed_symbols (
	id            TEXT PRIMARY KEY,
	file_id       TEXT NOT NULL REFERENCES indexed_files(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	kind          TEXT NOT NULL,
	start_offset  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_indexed_symbols_file ON indexed_symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_indexed_symbols_name ON indexed_symbols(name);

CREATE TABLE IF NOT EXISTS indexed_references (
	id             TEXT PRIMARY KEY,
	from_file_id   TEXT NOT NULL REFERENCES indexed_files(id) ON DELETE CASCADE,
	to_symbol_id   TEXT NOT NULL REFERENCES indexed_symbols(id) ON DELETE CASCADE,
	position       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_indexed_references_from ON indexed_references(from_file_id);
CREATE INDEX IF NOT EXISTS idx_indexed_references_to ON indexed_references(to_symbol_id);

CREATE TABLE IF NOT EXISTS indexed_dependencies (
	id            TEXT PRIMARY KEY,
	from_file_id  TEXT NOT NULL REFERENCES indexed_files(id) ON DELETE CASCADE,
	to_file_id    TEXT NOT NULL REFERENCES indexed_files(id) ON DELETE CASCADE,
	kind          TEXT NOT NULL DEFAULT 'import'
);
CREATE INDEX IF NOT EXISTS idx_indexed_dependencies_from ON indexed_dependencies(from_file_id);
CREATE INDEX IF NOT EXISTS idx_indexed_dependencies_to ON indexed_dependencies(to_file_id);

CREATE TABLE IF NOT EXISTS migrations (
	name        TEXT PRIMARY KEY,
	applied_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_config (
	key    TEXT PRIMARY KEY,
	value  TEXT NOT NULL
);

-- projects/project_repositories are owned by an external collaborator
-- (the REST CRUD surface for projects is out of scope here); the
-- tables exist only so the sync exporter/importer have something to
-- read and write, since both are named in the export whitelist.
CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	owner_scope TEXT NOT NULL,
	name        TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_owner_scope ON projects(owner_scope);

CREATE TABLE IF NOT EXISTS project_repositories (
	id            TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL,
	repository_id TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE (project_id, repository_id)
);
CREATE INDEX IF NOT EXISTS idx_project_repositories_repository ON project_repositories(repository_id);

-- Deletions against a whitelisted table are logged here so the sync
-- exporter can append them to .deletions.jsonl; rows are cleared once
-- an export has flushed them (the fresh table body already omits the
-- deleted row by then).
CREATE TABLE IF NOT EXISTS sync_deletions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name  TEXT NOT NULL,
	row_id      TEXT NOT NULL,
	deleted_at  TEXT NOT NULL
);
`
