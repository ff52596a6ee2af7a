// handler.go — основной обработчик API ncstore.
// Объединяет health и бизнес-обработчики, делегируя запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/ncstore/internal/api/errors"
	"github.com/bigkaa/ncstore/internal/domain/workflow"
	"github.com/bigkaa/ncstore/internal/service"
)

// multipartMemory — часть multipart-формы, хранимая в памяти; остальное во временных файлах.
const multipartMemory = 32 << 20

// multipartOverhead — запас на заголовки и текстовые поля формы сверх лимита файла.
const multipartOverhead = 1 << 20

// Services — сервисы, используемые обработчиками.
type Services struct {
	Programs  *service.ProgramService
	Revisions *service.RevisionService
	Rollback  *service.RollbackService
	Workflow  *service.WorkflowService
}

// APIHandler — основной обработчик API ncstore.
type APIHandler struct {
	health        *HealthHandler
	openAPI       http.Handler
	programs      *service.ProgramService
	revisions     *service.RevisionService
	rollback      *service.RollbackService
	workflow      *service.WorkflowService
	maxUploadSize int64
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// openAPI — обработчик встроенного OpenAPI документа.
// maxUploadSize — NC_MAX_UPLOAD_SIZE, ограничивает тело multipart-запросов.
func NewAPIHandler(
	health *HealthHandler,
	openAPI http.Handler,
	svc Services,
	maxUploadSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		openAPI:       openAPI,
		programs:      svc.Programs,
		revisions:     svc.Revisions,
		rollback:      svc.Rollback,
		workflow:      svc.Workflow,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetOpenAPI — встроенный OpenAPI документ.
func (h *APIHandler) GetOpenAPI(w http.ResponseWriter, r *http.Request) {
	h.openAPI.ServeHTTP(w, r)
}

// --- Вспомогательные функции ---

// handleServiceError переводит ошибку сервиса в HTTP-ответ.
// Неизвестные ошибки и ошибки хранилища логируются, клиент получает общее сообщение.
func (h *APIHandler) handleServiceError(w http.ResponseWriter, err error, op string) {
	var verr *service.ValidationError
	var terr *workflow.TransitionError

	switch {
	case errors.As(err, &verr):
		apierrors.ValidationFields(w, verr.Error(), verr.Fields)
	case errors.As(err, &terr):
		apierrors.InvalidTransition(w, terr.Message)
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrTooLarge):
		apierrors.PayloadTooLarge(w, err.Error())
	case errors.Is(err, service.ErrStorage):
		h.logger.Error("Ошибка файлового хранилища",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.StorageError(w, "Ошибка файлового хранилища")
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON тело запроса. Неизвестные поля — ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, multipartOverhead))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса: "+err.Error())
		return false
	}
	return true
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit, offset *int) (limitVal, offsetVal int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}
