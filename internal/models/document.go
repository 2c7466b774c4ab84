package models

import "time"

// Entity kinds.
const (
	EntityDocument = "document"
	EntityAsset    = "asset"
)

// StatusPublished is the only status a file-backed entity reports.
const StatusPublished = "published"

// Document is a content file converted against its model.
type Document struct {
	Type      string           `json:"type"`
	ID        string           `json:"id"`
	ModelName string           `json:"modelName"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	ManageURL string           `json:"manageUrl"`
	Status    string           `json:"status"`
	Context   map[string]any   `json:"context"`
	Fields    map[string]Field `json:"fields"`
	Checksum  string           `json:"checksum,omitempty"`
}

// Asset is a file under the assets directory.
type Asset struct {
	Type      string           `json:"type"`
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	ManageURL string           `json:"manageUrl"`
	Status    string           `json:"status"`
	Context   map[string]any   `json:"context"`
	Fields    map[string]Field `json:"fields"`
}

// FileMetadata is what the storage layer knows about a file.
type FileMetadata struct {
	Path       string    `json:"path"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ChangeOp is the kind of a content change.
type ChangeOp string

// Change kinds.
const (
	ChangeCreated ChangeOp = "created"
	ChangeUpdated ChangeOp = "updated"
	ChangeDeleted ChangeOp = "deleted"
)

// ChangeEvent reports that a document or asset file changed on disk.
type ChangeEvent struct {
	Op     ChangeOp `json:"op"`
	Entity string   `json:"entity"`
	ID     string   `json:"id"`
}
