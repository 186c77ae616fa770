package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/stevekb/steve/internal/search"
	"github.com/stevekb/steve/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// writeError maps domain errors to HTTP statuses.
func writeError(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func pathID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func (s *Server) health(c echo.Context) error {
	stats, err := s.store.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"collections": stats.Collections,
		"documents":   stats.Documents,
		"embeddings":  stats.Embeddings,
	})
}

type retrievalSettingsPayload struct {
	TopK  *int     `json:"top_k,omitempty"`
	Alpha *float64 `json:"alpha,omitempty"`
}

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.retrievalSettings())
}

// updateConfig applies a partial update of the runtime retrieval
// settings. Chunking parameters are intentionally not mutable here:
// changing them mid-flight would desynchronize new ingests from old.
func (s *Server) updateConfig(c echo.Context) error {
	var req retrievalSettingsPayload
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.TopK != nil && *req.TopK <= 0 {
		return badRequest(c, "top_k must be positive")
	}
	if req.Alpha != nil && (*req.Alpha < 0 || *req.Alpha > 1) {
		return badRequest(c, "alpha must be in [0,1]")
	}

	s.mu.Lock()
	if req.TopK != nil {
		s.retrieval.TopK = *req.TopK
	}
	if req.Alpha != nil {
		s.retrieval.Alpha = *req.Alpha
	}
	updated := s.retrieval
	s.mu.Unlock()

	return c.JSON(http.StatusOK, updated)
}

type createCollectionRequest struct {
	Name string `json:"name"`
}

func (s *Server) createCollection(c echo.Context) error {
	var req createCollectionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	col, err := s.store.CreateCollection(c.Request().Context(), req.Name)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(http.StatusCreated, col)
}

func (s *Server) listCollections(c echo.Context) error {
	cols, err := s.store.ListCollections(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if cols == nil {
		cols = []*store.Collection{}
	}
	return c.JSON(http.StatusOK, cols)
}

func (s *Server) deleteCollection(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "invalid collection id")
	}
	if err := s.manager.RemoveCollection(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listDocuments(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		docs []*store.Document
		err  error
	)
	if raw := c.QueryParam("collection_id"); raw != "" {
		colID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return badRequest(c, "invalid collection_id")
		}
		docs, err = s.store.ListDocuments(ctx, colID)
	} else {
		docs, err = s.store.ListAllDocuments(ctx)
	}
	if err != nil {
		return writeError(c, err)
	}
	if docs == nil {
		docs = []*store.Document{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (s *Server) getDocument(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "invalid document id")
	}
	doc, err := s.store.GetDocument(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) deleteDocument(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "invalid document id")
	}
	if err := s.manager.Remove(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type ingestTextRequest struct {
	CollectionID int64  `json:"collection_id"`
	Source       string `json:"source"`
	Title        string `json:"title"`
	Type         string `json:"type"`
	Content      string `json:"content"`
	FilePath     string `json:"file_path,omitempty"`
}

func (s *Server) ingestText(c echo.Context) error {
	var req ingestTextRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.CollectionID == 0 {
		return badRequest(c, "collection_id is required")
	}
	if req.Source == "" {
		return badRequest(c, "source is required")
	}
	if req.Content == "" {
		return badRequest(c, "content is required")
	}
	if req.Type == "" {
		req.Type = "text"
	}
	var meta *store.DocumentMeta
	if req.FilePath != "" {
		meta = &store.DocumentMeta{FilePath: req.FilePath}
	}

	res, err := s.manager.Ingest(c.Request().Context(), req.CollectionID,
		req.Source, req.Title, req.Type, req.Content, meta)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"document_id": res.DocumentID,
		"chunks":      res.Chunks,
		"degraded":    res.Degraded,
	})
}

type searchRequest struct {
	Query         string   `json:"query"`
	CollectionIDs []int64  `json:"collection_ids"`
	TopK          *int     `json:"top_k,omitempty"`
	Alpha         *float64 `json:"alpha,omitempty"`
	Mode          string   `json:"mode,omitempty"`
}

type searchResultPayload struct {
	DocumentID   int64   `json:"document_id"`
	ChunkIndex   int     `json:"chunk_index"`
	Text         string  `json:"text"`
	Source       string  `json:"source"`
	Title        string  `json:"title,omitempty"`
	CollectionID int64   `json:"collection_id"`
	FilePath     string  `json:"file_path,omitempty"`
	Score        float64 `json:"score"`
	SemScore     float64 `json:"sem_score"`
	KwScore      float64 `json:"kw_score"`
}

func (s *Server) searchHandler(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Query == "" {
		return badRequest(c, "query is required")
	}

	settings := s.retrievalSettings()
	opts := search.Options{
		TopK:  settings.TopK,
		Alpha: settings.Alpha,
		Mode:  search.ModeHybrid,
	}
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	if req.Alpha != nil {
		opts.Alpha = *req.Alpha
	}
	if req.Mode != "" {
		opts.Mode = search.Mode(req.Mode)
	}
	if err := opts.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	resp, err := s.engine.Search(c.Request().Context(), req.Query, req.CollectionIDs, opts)
	if err != nil {
		return writeError(c, err)
	}

	results := make([]searchResultPayload, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, searchResultPayload{
			DocumentID:   r.DocumentID,
			ChunkIndex:   r.ChunkIndex,
			Text:         r.Text,
			Source:       r.Source,
			Title:        r.Title,
			CollectionID: r.CollectionID,
			FilePath:     r.FilePath,
			Score:        r.Score,
			SemScore:     r.SemScore,
			KwScore:      r.KwScore,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"results":        results,
		"lexical_status": resp.LexicalStatus.String(),
		"took_ms":        resp.Took.Milliseconds(),
	})
}
