// params.go — привязка path и query параметров через oapi-codegen runtime.
// Те же вызовы, что делают сгенерированные chi-обёртки.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/ncstore/internal/api/errors"
)

// Имена path параметров.
const (
	paramOperationID = "operation_id"
	paramProgramID   = "program_id"
	paramRevisionID  = "revision_id"
)

// pathUUID извлекает UUID из path параметра. При ошибке пишет 400 и возвращает false.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationFields(w, fmt.Sprintf("Некорректный формат параметра %s: %s", name, err), []string{name})
		return "", false
	}
	return id.String(), true
}

// pathInt64 извлекает целочисленный path параметр.
func pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	var v int64
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationFields(w, fmt.Sprintf("Некорректный формат параметра %s: %s", name, err), []string{name})
		return 0, false
	}
	return v, true
}

// ListProgramsParams — query параметры GET /api/v1/programs.
type ListProgramsParams struct {
	OperationID *int64
	State       *string
	Query       *string
	SortBy      *string
	SortOrder   *string
	Limit       *int
	Offset      *int
}

// bindListProgramsParams разбирает query параметры списка программ.
func bindListProgramsParams(w http.ResponseWriter, r *http.Request) (*ListProgramsParams, bool) {
	var params ListProgramsParams
	query := r.URL.Query()

	bindings := []struct {
		name string
		dst  any
	}{
		{"operation_id", &params.OperationID},
		{"state", &params.State},
		{"q", &params.Query},
		{"sort_by", &params.SortBy},
		{"sort_order", &params.SortOrder},
		{"limit", &params.Limit},
		{"offset", &params.Offset},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dst); err != nil {
			apierrors.ValidationFields(w, fmt.Sprintf("Некорректный формат параметра %s: %s", b.name, err), []string{b.name})
			return nil, false
		}
	}

	if params.SortBy != nil {
		switch *params.SortBy {
		case "created_at", "updated_at", "program_number", "name":
		default:
			apierrors.ValidationFields(w, "Недопустимое значение sort_by: "+*params.SortBy, []string{"sort_by"})
			return nil, false
		}
	}
	if params.SortOrder != nil && *params.SortOrder != "asc" && *params.SortOrder != "desc" {
		apierrors.ValidationFields(w, "Недопустимое значение sort_order: "+*params.SortOrder, []string{"sort_order"})
		return nil, false
	}

	return &params, true
}

// CompareVersionsParams — query параметры сравнения по версиям.
type CompareVersionsParams struct {
	A string
	B string
}

// CompareRevisionsParams — query параметры сравнения по id ревизий.
type CompareRevisionsParams struct {
	A openapi_types.UUID
	B openapi_types.UUID
}

// bindRequiredQuery привязывает обязательные query параметры a и b.
func bindRequiredQuery(w http.ResponseWriter, r *http.Request, a, b any) bool {
	query := r.URL.Query()
	var missing []string
	for _, p := range []struct {
		name string
		dst  any
	}{{"a", a}, {"b", b}} {
		if err := runtime.BindQueryParameter("form", true, true, p.name, query, p.dst); err != nil {
			missing = append(missing, p.name)
		}
	}
	if len(missing) > 0 {
		apierrors.ValidationFields(w, "Параметры a и b обязательны и должны быть корректны", missing)
		return false
	}
	return true
}
