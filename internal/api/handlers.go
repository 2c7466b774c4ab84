package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quill/internal/contentsource"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *contentsource.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *contentsource.Service) *Handler {
	return &Handler{svc: svc}
}

// documentID extracts the document id from the URL (everything after the
// route prefix). Supports encoded slashes from OpenAPI clients
// (e.g. posts%2Fhello.md).
func documentID(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListModels handles GET /api/models.
//
//	@Summary		List the registered content models
//	@Tags			models
//	@Produce		json
//	@Success		200	{object}	ModelListResponse
//	@Security		BearerAuth
//	@Router			/models [get]
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.Models(r.Context())
	if err != nil {
		writeError(w, "list models", "", err)
		return
	}
	writeJSON(w, http.StatusOK, ModelListResponse{Models: ms})
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List documents, optionally filtered by model
//	@Tags			documents
//	@Produce		json
//	@Param			model	query		string	false	"Model name"
//	@Success		200		{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	filter := contentsource.DocumentFilter{Model: r.URL.Query().Get("model")}
	docs, err := h.svc.GetDocuments(r.Context(), filter)
	if err != nil {
		writeError(w, "list documents", "", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a single document by id
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document id (path relative to the content root)"
//	@Success		200	{object}	models.Document
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := documentID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, "get document", id, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(doc.Checksum))
	writeJSON(w, http.StatusOK, doc)
}

// UpdateDocument handles PATCH /api/documents/*.
//
//	@Summary		Apply update operations to a document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string					true	"Document id"
//	@Param			If-Match	header		string					false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		UpdateDocumentRequest	true	"Operations applied in order"
//	@Success		200			{object}	models.Document
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [patch]
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := documentID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Operations) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("operations are required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	doc, err := h.svc.UpdateDocument(r.Context(), id, req.Operations, ifMatch)
	if err != nil {
		writeError(w, "update document", id, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(doc.Checksum))
	writeJSON(w, http.StatusOK, doc)
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create a document (not supported by file-backed content)
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Failure		501		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	doc, err := h.svc.CreateDocument(r.Context(), req.Model, req.Fields)
	if err != nil {
		writeError(w, "create document", req.Model, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// DeleteDocument handles DELETE /api/documents/*.
//
//	@Summary		Delete a document (not supported by file-backed content)
//	@Tags			documents
//	@Param			id	path		string	true	"Document id"
//	@Failure		501	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := documentID(r)
	if err := h.svc.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, "delete document", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAssets handles GET /api/assets.
//
//	@Summary		List assets
//	@Tags			assets
//	@Produce		json
//	@Success		200	{object}	AssetListResponse
//	@Security		BearerAuth
//	@Router			/assets [get]
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.svc.GetAssets(r.Context())
	if err != nil {
		writeError(w, "list assets", "", err)
		return
	}
	writeJSON(w, http.StatusOK, AssetListResponse{Assets: assets})
}

// Publish handles POST /api/publish.
//
//	@Summary		Publish documents (not supported: files are live once written)
//	@Tags			documents
//	@Accept			json
//	@Param			body	body		PublishRequest	true	"Documents to publish"
//	@Failure		501		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/publish [post]
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.PublishDocuments(r.Context(), req.IDs); err != nil {
		writeError(w, "publish", strings.Join(req.IDs, ","), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Locales handles GET /api/locales.
//
//	@Summary		List content locales
//	@Tags			models
//	@Produce		json
//	@Success		200	{object}	LocalesResponse
//	@Security		BearerAuth
//	@Router			/locales [get]
func (h *Handler) Locales(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LocalesResponse{Locales: h.svc.GetLocales(r.Context())})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across documents
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", q, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// References handles GET /api/references/*.
//
//	@Summary		List the documents referencing a document or asset
//	@Tags			search
//	@Produce		json
//	@Param			id	path		string	true	"Target id"
//	@Success		200	{object}	ReferencesResponse
//	@Security		BearerAuth
//	@Router			/references/{id} [get]
func (h *Handler) References(w http.ResponseWriter, r *http.Request) {
	id := documentID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	refs, err := h.svc.References(r.Context(), id)
	if err != nil {
		writeError(w, "references", id, err)
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{References: refs})
}
