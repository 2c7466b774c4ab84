package api

import (
	"github.com/starford/quill/internal/index"
	"github.com/starford/quill/internal/models"
)

// UpdateDocumentRequest is the request body for patching a document.
type UpdateDocumentRequest struct {
	Operations []models.UpdateOperation `json:"operations" validate:"required"`
}

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Model  string                  `json:"modelName" example:"post" validate:"required"`
	Fields map[string]models.Field `json:"fields"`
}

// PublishRequest lists the documents to publish.
type PublishRequest struct {
	IDs []string `json:"ids" example:"posts/hello.md" validate:"required"`
}

// ModelListResponse wraps the registered models.
type ModelListResponse struct {
	Models []*models.Model `json:"models" validate:"required"`
}

// DocumentListResponse wraps converted documents.
type DocumentListResponse struct {
	Documents []*models.Document `json:"documents" validate:"required"`
}

// AssetListResponse wraps converted assets.
type AssetListResponse struct {
	Assets []*models.Asset `json:"assets" validate:"required"`
}

// LocalesResponse wraps the content locales.
type LocalesResponse struct {
	Locales []string `json:"locales" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// Reference is one incoming reference to a document.
type Reference = index.Ref

// ReferencesResponse wraps the references pointing at a document.
type ReferencesResponse struct {
	References []Reference `json:"references" validate:"required"`
}
