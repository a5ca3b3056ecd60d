// Package domain holds the data-model types shared across the store,
// query layer, job tracker, and MCP dispatcher: Repository, IndexJob,
// IndexedFile, Symbol, Reference, Dependency, and Migration.
package domain

import "time"

// JobStatus is one of the states an IndexJob may occupy. Transitions
// form the DAG pending -> processing -> {completed, failed, skipped},
// with failed able to re-enter pending via explicit retry (J2).
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobSkipped    JobStatus = "skipped"
)

// SymbolKind enumerates the recognized symbol kinds.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConstant  SymbolKind = "constant"
	KindVariable  SymbolKind = "variable"
	KindEnum      SymbolKind = "enum"
	KindModule    SymbolKind = "module"
)

// DependencyKind enumerates how one file depends on another.
type DependencyKind string

const (
	DepImport   DependencyKind = "import"
	DepReExport DependencyKind = "re-export"
	DepDynamic  DependencyKind = "dynamic"
)

// Repository is uniquely identified by (OwnerScope, FullName).
type Repository struct {
	ID             string
	OwnerScope     string
	FullName       string
	GitURL         string
	DefaultBranch  string
	InstallationID string
	LastPushAt     *time.Time
	UpdatedAt      time.Time
}

// IndexJobStats tracks the per-file counts reported while a job runs.
type IndexJobStats struct {
	FilesIndexed          int `json:"files_indexed"`
	SymbolsExtracted      int `json:"symbols_extracted"`
	ReferencesFound       int `json:"references_found"`
	DependenciesExtracted int `json:"dependencies_extracted"`
}

// IndexJob is a durable unit of indexing work tracked by the job
// tracker (C5).
type IndexJob struct {
	ID            string
	RepositoryID  string
	Ref           string
	CommitSHA     string
	Status        JobStatus
	RequestedBy   string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	ErrorMessage  string
	RetryCount    int
	AvailableAt   time.Time
	Cancelled     bool
	Stats         IndexJobStats
	CreatedAt     time.Time
}

// IndexedFile is the unique-by-(RepositoryID, Path) record of a parsed file.
type IndexedFile struct {
	ID           string
	RepositoryID string
	Path         string
	Content      string
	Language     string
	Dependencies []string
	ContentHash  string
	IndexedAt    time.Time
}

// Symbol is owned by its file; deleted and recreated whenever the file
// is re-indexed.
type Symbol struct {
	ID          string
	FileID      string
	Name        string
	Kind        SymbolKind
	StartOffset int
}

// Reference is a directed edge from a file to a symbol, recomputed per
// file on re-index.
type Reference struct {
	ID           string
	FromFileID   string
	ToSymbolID   string
	Position     int
}

// Dependency is a directed edge between two files, recomputed per file.
type Dependency struct {
	ID         string
	FromFileID string
	ToFileID   string
	Kind       DependencyKind
}

// Migration records a single applied migration in the ledger.
type Migration struct {
	Name      string
	AppliedAt time.Time
}

// Deletion records that a row was removed from a whitelisted table,
// pending being flushed into the sync export directory's
// .deletions.jsonl (C10).
type Deletion struct {
	ID        int64
	Table     string
	RowID     string
	DeletedAt time.Time
}
