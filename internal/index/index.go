package index

// DocumentIndex defines the interface for index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type DocumentIndex interface {
	UpsertDocument(d DocumentRow, body string, refs []Ref) error
	UpsertAsset(a AssetRow) error
	Delete(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*DocumentRow, error)
	ListDocuments(model string) ([]DocumentRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]Ref, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
