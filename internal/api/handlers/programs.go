// programs.go — обработчики /api/v1/programs и создания программ в операции.
package handlers

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	apierrors "github.com/bigkaa/ncstore/internal/api/errors"
	"github.com/bigkaa/ncstore/internal/api/middleware"
	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/repository"
	"github.com/bigkaa/ncstore/internal/service"
)

// CreateProgram — POST /api/v1/operations/{operation_id}/programs.
// Multipart form: file (обязательно), name (обязательно), description, program_number, comment.
func (h *APIHandler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	operationID, ok := pathInt64(w, r, paramOperationID)
	if !ok {
		return
	}

	file, cleanup, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	result, err := h.programs.Create(r.Context(), service.CreateProgramParams{
		OperationID:   operationID,
		Name:          r.FormValue("name"),
		File:          file,
		Description:   formValue(r, "description"),
		ProgramNumber: formValue(r, "program_number"),
		Comment:       formValue(r, "comment"),
		Author:        middleware.AuthorFromContext(r.Context()),
	})
	if err != nil {
		h.handleServiceError(w, err, "create_program")
		return
	}

	writeJSON(w, http.StatusCreated, CreateProgramResponse{
		Program:  toProgramResponse(result.Program),
		Revision: toRevisionResponse(result.Revision),
	})
}

// ListPrograms — GET /api/v1/programs.
// Фильтры: operation_id, state, q. Сортировка: sort_by, sort_order. Пагинация: limit, offset.
func (h *APIHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	params, ok := bindListProgramsParams(w, r)
	if !ok {
		return
	}
	limit, offset := paginationDefaults(params.Limit, params.Offset)

	filters := repository.ProgramListFilters{
		OperationID: params.OperationID,
		State:       params.State,
		Query:       params.Query,
	}
	var sort repository.ProgramSort
	if params.SortBy != nil {
		sort.SortBy = *params.SortBy
	}
	if params.SortOrder != nil {
		sort.SortOrder = *params.SortOrder
	}

	programs, total, err := h.programs.List(r.Context(), filters, sort, limit, offset)
	if err != nil {
		h.handleServiceError(w, err, "list_programs")
		return
	}

	items := make([]ProgramResponse, 0, len(programs))
	for _, p := range programs {
		items = append(items, toProgramResponse(p))
	}

	writeJSON(w, http.StatusOK, ProgramListResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(items) < total,
	})
}

// GetProgram — GET /api/v1/programs/{program_id}.
func (h *APIHandler) GetProgram(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}

	p, err := h.programs.Get(r.Context(), programID)
	if err != nil {
		h.handleServiceError(w, err, "get_program")
		return
	}
	writeJSON(w, http.StatusOK, toProgramResponse(p))
}

// UpdateProgram — PATCH /api/v1/programs/{program_id}.
// Изменяются только program_number, name и description.
func (h *APIHandler) UpdateProgram(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}

	var req UpdateProgramRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.programs.Update(r.Context(), programID, service.UpdateProgramParams{
		ProgramNumber: req.ProgramNumber,
		Name:          req.Name,
		Description:   req.Description,
	})
	if err != nil {
		h.handleServiceError(w, err, "update_program")
		return
	}
	writeJSON(w, http.StatusOK, toProgramResponse(p))
}

// DeleteProgram — DELETE /api/v1/programs/{program_id}.
func (h *APIHandler) DeleteProgram(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}

	if err := h.programs.Delete(r.Context(), programID); err != nil {
		h.handleServiceError(w, err, "delete_program")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadProgram — GET /api/v1/programs/{program_id}/download.
// Отдаёт файл текущей ревизии.
func (h *APIHandler) DownloadProgram(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}

	rev, f, err := h.revisions.OpenCurrent(r.Context(), programID)
	if err != nil {
		h.handleServiceError(w, err, "download_program")
		return
	}
	defer f.Close()

	serveRevision(w, r, rev, f)
}

// --- Вспомогательные функции ---

// parseUpload разбирает multipart-форму и извлекает поле file.
// Отсутствующий файл не ошибка: сервис вернёт его в списке обязательных полей.
func (h *APIHandler) parseUpload(w http.ResponseWriter, r *http.Request) (*service.FileInput, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr), strings.Contains(err.Error(), "request body too large"):
			apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер запроса превышает лимит %d байт", h.maxUploadSize))
		case errors.Is(err, http.ErrNotMultipart):
			apierrors.ValidationError(w, "Ожидается multipart/form-data")
		default:
			apierrors.ValidationError(w, "Ошибка парсинга multipart: "+err.Error())
		}
		return nil, nil, false
	}
	removeForm := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, removeForm, true
		}
		removeForm()
		apierrors.ValidationFields(w, "Некорректное поле file: "+err.Error(), []string{"file"})
		return nil, nil, false
	}

	return &service.FileInput{
			Reader:      file,
			Filename:    header.Filename,
			ContentType: partContentType(header),
		}, func() {
			_ = file.Close()
			removeForm()
		}, true
}

// partContentType — Content-Type части multipart; application/octet-stream считается неуказанным.
func partContentType(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil && mediaType != "application/octet-stream" {
		return ct
	}
	return ""
}

// formValue возвращает необязательное поле формы; пустое значение — nil.
func formValue(r *http.Request, name string) *string {
	if _, ok := r.MultipartForm.Value[name]; !ok {
		return nil
	}
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return nil
	}
	return &v
}

// serveRevision отдаёт файл ревизии через http.ServeContent.
// ETag — SHA-256 содержимого; поддерживаются Range и If-None-Match.
func serveRevision(w http.ResponseWriter, r *http.Request, rev *model.Revision, f *os.File) {
	w.Header().Set("ETag", `"`+rev.Checksum+`"`)
	w.Header().Set("Content-Type", rev.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": rev.OriginalFilename,
	}))
	w.Header().Set("X-Revision-Version", rev.Version.String())

	http.ServeContent(w, r, rev.OriginalFilename, rev.CreatedAt, f)
}
