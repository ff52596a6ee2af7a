// workflow.go — обработчики workflow: каталог состояний, переходы, история.
package handlers

import (
	"net/http"

	"github.com/bigkaa/ncstore/internal/api/middleware"
	"github.com/bigkaa/ncstore/internal/service"
)

// GetWorkflowStates — GET /api/v1/workflow/states.
func (h *APIHandler) GetWorkflowStates(w http.ResponseWriter, r *http.Request) {
	cat, err := h.workflow.Catalog(r.Context())
	if err != nil {
		h.handleServiceError(w, err, "workflow_states")
		return
	}

	resp := WorkflowCatalogResponse{
		States:      make([]WorkflowStateResponse, 0, len(cat.States)),
		Transitions: cat.Rules,
	}
	for _, st := range cat.States {
		actions := make([]string, 0, len(st.Actions))
		for _, a := range st.Actions {
			actions = append(actions, string(a))
		}
		resp.States = append(resp.States, WorkflowStateResponse{
			ID:        st.ID,
			Name:      string(st.Name),
			Color:     st.Color,
			SortOrder: st.SortOrder,
			Terminal:  st.Terminal,
			Actions:   actions,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// TransitionRevision — POST /api/v1/programs/{program_id}/revisions/{revision_id}/transitions.
// Тело: {"action": "submit|approve|reject|retire", "comment": "..."}.
func (h *APIHandler) TransitionRevision(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}
	revisionID, ok := pathUUID(w, r, paramRevisionID)
	if !ok {
		return
	}

	var req TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.workflow.Transition(r.Context(), service.TransitionParams{
		ProgramID:  programID,
		RevisionID: revisionID,
		Action:     req.Action,
		Comment:    req.Comment,
		Actor:      middleware.AuthorFromContext(r.Context()),
	})
	if err != nil {
		h.handleServiceError(w, err, "transition")
		return
	}

	writeJSON(w, http.StatusOK, TransitionResultResponse{
		Revision:     toRevisionResponse(result.Revision),
		Transition:   toTransitionResponse(result.Transition),
		ProgramState: string(result.ProgramState),
	})
}

// ListTransitions — GET /api/v1/programs/{program_id}/revisions/{revision_id}/transitions.
func (h *APIHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	programID, ok := pathUUID(w, r, paramProgramID)
	if !ok {
		return
	}
	revisionID, ok := pathUUID(w, r, paramRevisionID)
	if !ok {
		return
	}

	history, err := h.workflow.History(r.Context(), programID, revisionID)
	if err != nil {
		h.handleServiceError(w, err, "transition_history")
		return
	}

	items := make([]TransitionResponse, 0, len(history))
	for _, t := range history {
		items = append(items, toTransitionResponse(t))
	}
	writeJSON(w, http.StatusOK, TransitionListResponse{Items: items})
}
