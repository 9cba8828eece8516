package index

// AnnotationIndex defines the interface for annotation indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type AnnotationIndex interface {
	UpsertDocument(d DocumentRow, items []ItemRow) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*DocumentRow, error)
	ListDocuments(limit, offset int, taskType, sort string) ([]DocumentRow, int, error)
	ListItems(docPath, status string, limit, offset int) ([]ItemRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies AnnotationIndex at compile time.
var _ AnnotationIndex = (*DB)(nil)
