// types.go — JSON-представления ресурсов API и конвертация из доменных моделей.
package handlers

import (
	"time"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/domain/workflow"
	"github.com/bigkaa/ncstore/internal/service"
)

// ProgramResponse — программа в ответах API.
type ProgramResponse struct {
	ID                string    `json:"id"`
	OperationID       int64     `json:"operation_id"`
	ProgramNumber     string    `json:"program_number"`
	Name              string    `json:"name"`
	Description       *string   `json:"description"`
	State             string    `json:"state"`
	CurrentRevisionID *string   `json:"current_revision_id"`
	CurrentVersion    *string   `json:"current_version"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RevisionResponse — метаданные ревизии. Содержимое отдаётся через download и compare.
type RevisionResponse struct {
	ID               string    `json:"id"`
	ProgramID        string    `json:"program_id"`
	Version          string    `json:"version"`
	OriginalFilename string    `json:"original_filename"`
	FileSize         int64     `json:"file_size"`
	Checksum         string    `json:"checksum"`
	ContentType      string    `json:"content_type"`
	Comment          *string   `json:"comment"`
	IsCAMOriginal    bool      `json:"is_cam_original"`
	State            string    `json:"state"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// TransitionResponse — запись журнала переходов.
type TransitionResponse struct {
	ID         int64     `json:"id"`
	RevisionID string    `json:"revision_id"`
	Action     string    `json:"action"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Actor      string    `json:"actor"`
	Comment    *string   `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProgramListResponse — страница списка программ.
type ProgramListResponse struct {
	Items   []ProgramResponse `json:"items"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	HasMore bool              `json:"has_more"`
}

// CreateProgramResponse — программа и её первая ревизия.
type CreateProgramResponse struct {
	Program  ProgramResponse  `json:"program"`
	Revision RevisionResponse `json:"revision"`
}

// RevisionListResponse — ревизии программы, новые первыми.
type RevisionListResponse struct {
	Items []RevisionResponse `json:"items"`
}

// TransitionResultResponse — результат действия workflow.
type TransitionResultResponse struct {
	Revision     RevisionResponse   `json:"revision"`
	Transition   TransitionResponse `json:"transition"`
	ProgramState string             `json:"program_state"`
}

// TransitionListResponse — история переходов ревизии.
type TransitionListResponse struct {
	Items []TransitionResponse `json:"items"`
}

// ComparedRevisionResponse — сторона сравнения. Content == null для бинарных ревизий.
type ComparedRevisionResponse struct {
	Revision RevisionResponse `json:"revision"`
	Content  *string          `json:"content"`
}

// ComparisonResponse — пара ревизий для построения diff на клиенте.
type ComparisonResponse struct {
	A ComparedRevisionResponse `json:"a"`
	B ComparedRevisionResponse `json:"b"`
}

// WorkflowStateResponse — состояние каталога.
type WorkflowStateResponse struct {
	ID        int16    `json:"id"`
	Name      string   `json:"name"`
	Color     string   `json:"color"`
	SortOrder int      `json:"sort_order"`
	Terminal  bool     `json:"terminal"`
	Actions   []string `json:"actions"`
}

// WorkflowCatalogResponse — каталог состояний и таблица переходов.
type WorkflowCatalogResponse struct {
	States      []WorkflowStateResponse `json:"states"`
	Transitions []workflow.Rule         `json:"transitions"`
}

// UpdateProgramRequest — тело PATCH /api/v1/programs/{program_id}.
type UpdateProgramRequest struct {
	ProgramNumber *string `json:"program_number"`
	Name          *string `json:"name"`
	Description   *string `json:"description"`
}

// RollbackRequest — тело POST /api/v1/programs/{program_id}/rollback.
type RollbackRequest struct {
	Version string `json:"version"`
}

// TransitionRequest — тело POST .../transitions.
type TransitionRequest struct {
	Action  string  `json:"action"`
	Comment *string `json:"comment"`
}

func toProgramResponse(p *model.Program) ProgramResponse {
	return ProgramResponse{
		ID:                p.ID,
		OperationID:       p.OperationID,
		ProgramNumber:     p.ProgramNumber,
		Name:              p.Name,
		Description:       p.Description,
		State:             string(p.State),
		CurrentRevisionID: p.CurrentRevisionID,
		CurrentVersion:    p.CurrentVersion,
		CreatedBy:         p.CreatedBy,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toRevisionResponse(r *model.Revision) RevisionResponse {
	return RevisionResponse{
		ID:               r.ID,
		ProgramID:        r.ProgramID,
		Version:          r.Version.String(),
		OriginalFilename: r.OriginalFilename,
		FileSize:         r.FileSize,
		Checksum:         r.Checksum,
		ContentType:      r.ContentType,
		Comment:          r.Comment,
		IsCAMOriginal:    r.IsCAMOriginal,
		State:            string(r.State),
		CreatedBy:        r.CreatedBy,
		CreatedAt:        r.CreatedAt,
	}
}

func toTransitionResponse(t *model.Transition) TransitionResponse {
	return TransitionResponse{
		ID:         t.ID,
		RevisionID: t.RevisionID,
		Action:     string(t.Action),
		FromState:  string(t.FromState),
		ToState:    string(t.ToState),
		Actor:      t.Actor,
		Comment:    t.Comment,
		CreatedAt:  t.CreatedAt,
	}
}

func toRevisionList(revs []*model.Revision) []RevisionResponse {
	items := make([]RevisionResponse, 0, len(revs))
	for _, r := range revs {
		items = append(items, toRevisionResponse(r))
	}
	return items
}

func toComparisonResponse(c *service.Comparison) ComparisonResponse {
	return ComparisonResponse{
		A: ComparedRevisionResponse{Revision: toRevisionResponse(c.A.Revision), Content: c.A.Content},
		B: ComparedRevisionResponse{Revision: toRevisionResponse(c.B.Revision), Content: c.B.Content},
	}
}
