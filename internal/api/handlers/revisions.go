// revisions.go — обработчики ревизий: загрузка, список, скачивание, откат, сравнение.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/bigkaa/ncstore/internal/api/errors"
	"github.com/bigkaa/ncstore/internal/api/middleware"
	"github.com/bigkaa/ncstore/internal/service"
)

// UploadRevision — POST /api/v1/programs/{program_id}/revisions.
// Multipart form: file (обязательно), comment, bump (patch|minor|major), version, is_cam_original.
func (h *APIHandler) UploadRevision(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}

	file, cleanup, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	params := service.UploadRevisionParams{
		ProgramID: programID,
		File:      file,
		Comment:   formValue(r, "comment"),
		Bump:      r.FormValue("bump"),
		Version:   formValue(r, "version"),
		Author:    middleware.AuthorFromContext(r.Context()),
	}
	if raw := formValue(r, "is_cam_original"); raw != nil {
		v, err := strconv.ParseBool(strings.ToLower(*raw))
		if err != nil {
			apierrors.ValidationFields(w, "is_cam_original должен быть true или false", []string{"is_cam_original"})
			return
		}
		params.IsCAMOriginal = &v
	}

	rev, err := h.revisions.Upload(r.Context(), params)
	if err != nil {
		h.handleServiceError(w, err, "upload_revision")
		return
	}
	writeJSON(w, http.StatusCreated, toRevisionResponse(rev))
}

// ListRevisions — GET /api/v1/programs/{program_id}/revisions. Новые первыми.
func (h *APIHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}

	revs, err := h.revisions.List(r.Context(), programID)
	if err != nil {
		h.handleServiceError(w, err, "list_revisions")
		return
	}
	writeJSON(w, http.StatusOK, RevisionListResponse{Items: toRevisionList(revs)})
}

// GetRevision — GET /api/v1/programs/{program_id}/revisions/{revision_id}.
func (h *APIHandler) GetRevision(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}
	revisionID, ok := pathUUID(w, r, paramRevisionID)
	if !ok {
		return
	}

	rev, err := h.revisions.Get(r.Context(), programID, revisionID)
	if err != nil {
		h.handleServiceError(w, err, "get_revision")
		return
	}
	writeJSON(w, http.StatusOK, toRevisionResponse(rev))
}

// GetRevisionContent — GET /api/v1/programs/{program_id}/revisions/{revision_id}/content.
// Текст ревизии из кэша; content == null для бинарных файлов.
func (h *APIHandler) GetRevisionContent(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}
	revisionID, ok := pathUUID(w, r, paramRevisionID)
	if !ok {
		return
	}

	rev, err := h.revisions.Get(r.Context(), programID, revisionID)
	if err != nil {
		h.handleServiceError(w, err, "get_revision_content")
		return
	}
	content, err := h.revisions.Content(r.Context(), rev)
	if err != nil {
		h.handleServiceError(w, err, "get_revision_content")
		return
	}
	writeJSON(w, http.StatusOK, ComparedRevisionResponse{Revision: toRevisionResponse(rev), Content: content})
}

// DownloadRevision — GET /api/v1/programs/{program_id}/revisions/{revision_id}/download.
func (h *APIHandler) DownloadRevision(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}
	revisionID, ok := pathUUID(w, r, paramRevisionID)
	if !ok {
		return
	}

	rev, f, err := h.revisions.Open(r.Context(), programID, revisionID)
	if err != nil {
		h.handleServiceError(w, err, "download_revision")
		return
	}
	defer f.Close()

	serveRevision(w, r, rev, f)
}

// RollbackProgram — POST /api/v1/programs/{program_id}/rollback.
// Тело: {"version": "M.N.P"}. Повторный откат к текущей версии ничего не меняет.
func (h *APIHandler) RollbackProgram(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}

	var req RollbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.rollback.Rollback(r.Context(), programID, req.Version)
	if err != nil {
		h.handleServiceError(w, err, "rollback")
		return
	}
	writeJSON(w, http.StatusOK, toProgramResponse(p))
}

// CompareVersions — GET /api/v1/programs/{program_id}/compare?a=&b=.
func (h *APIHandler) CompareVersions(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}
	var params CompareVersionsParams
	if !bindRequiredQuery(w, r, &params.A, &params.B) {
		return
	}

	cmp, err := h.rollback.CompareVersions(r.Context(), programID, params.A, params.B)
	if err != nil {
		h.handleServiceError(w, err, "compare_versions")
		return
	}
	writeJSON(w, http.StatusOK, toComparisonResponse(cmp))
}

// CompareRevisions — GET /api/v1/revisions/compare?a=&b=.
// Ревизии могут принадлежать разным программам.
func (h *APIHandler) CompareRevisions(w http.ResponseWriter, r *http.Request) {
	var params CompareRevisionsParams
	if !bindRequiredQuery(w, r, &params.A, &params.B) {
		return
	}

	cmp, err := h.rollback.CompareRevisions(r.Context(), params.A.String(), params.B.String())
	if err != nil {
		h.handleServiceError(w, err, "compare_revisions")
		return
	}
	writeJSON(w, http.StatusOK, toComparisonResponse(cmp))
}
