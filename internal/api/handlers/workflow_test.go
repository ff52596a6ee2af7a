package handlers

import (
	"net/http"
	"testing"
)

func TestWorkflowStates(t *testing.T) {
	srv := newTestServer(t, 1<<20)

	rec := srv.get("/api/v1/workflow/states")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d, тело: %s", rec.Code, rec.Body.String())
	}
	var cat WorkflowCatalogResponse
	decodeBody(t, rec, &cat)

	if len(cat.States) != 4 {
		t.Fatalf("состояний %d, ожидалось 4", len(cat.States))
	}
	byName := make(map[string]WorkflowStateResponse)
	for _, st := range cat.States {
		byName[st.Name] = st
	}
	if !byName["obsolete"].Terminal || len(byName["obsolete"].Actions) != 0 {
		t.Errorf("obsolete: %+v", byName["obsolete"])
	}
	if !containsAll(byName["review"].Actions, "approve", "reject") {
		t.Errorf("действия review: %v", byName["review"].Actions)
	}
	if len(cat.Transitions) == 0 {
		t.Error("пустая таблица переходов")
	}
}

func TestTransitions(t *testing.T) {
	srv := newTestServer(t, 1<<20)
	created := srv.createProgram(t, "Вал", "M30\n")
	base := "/api/v1/programs/" + created.Program.ID + "/revisions/" + created.Revision.ID + "/transitions"

	steps := []struct {
		action       string
		wantRevision string
	}{
		{"submit", "review"},
		{"reject", "draft"},
		{"submit", "review"},
		{"APPROVE", "released"},
	}
	for _, step := range steps {
		comment := "шаг " + step.action
		rec := srv.sendJSON(t, http.MethodPost, base, TransitionRequest{Action: step.action, Comment: &comment})
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: статус %d, тело: %s", step.action, rec.Code, rec.Body.String())
		}
		var res TransitionResultResponse
		decodeBody(t, rec, &res)
		if res.Revision.State != step.wantRevision || res.ProgramState != step.wantRevision {
			t.Errorf("%s: ревизия %s, программа %s; ожидалось %s",
				step.action, res.Revision.State, res.ProgramState, step.wantRevision)
		}
		if res.Transition.Actor != "anonymous" {
			t.Errorf("actor %q", res.Transition.Actor)
		}
	}

	// released → submit недопустим
	rec := srv.sendJSON(t, http.MethodPost, base, TransitionRequest{Action: "submit"})
	expectError(t, rec, http.StatusConflict, "INVALID_TRANSITION")

	rec = srv.get(base)
	if rec.Code != http.StatusOK {
		t.Fatalf("история: статус %d", rec.Code)
	}
	var history TransitionListResponse
	decodeBody(t, rec, &history)
	if len(history.Items) != 4 {
		t.Fatalf("записей %d, ожидалось 4", len(history.Items))
	}
	first := history.Items[0]
	if first.Action != "submit" || first.FromState != "draft" || first.ToState != "review" {
		t.Errorf("первая запись %+v", first)
	}
	if first.Comment == nil || *first.Comment != "шаг submit" {
		t.Errorf("комментарий %v", first.Comment)
	}
	if history.Items[3].Action != "approve" {
		t.Errorf("последнее действие %s", history.Items[3].Action)
	}
}

// TestTransitions_NotCurrent — переход старой ревизии не меняет состояние программы.
func TestTransitions_NotCurrent(t *testing.T) {
	srv := newTestServer(t, 1<<20)
	created := srv.createProgram(t, "Вал", "M30\n")
	srv.uploadRevision(t, created.Program.ID, "M30\n(v2)\n", nil)

	rec := srv.sendJSON(t, http.MethodPost,
		"/api/v1/programs/"+created.Program.ID+"/revisions/"+created.Revision.ID+"/transitions",
		TransitionRequest{Action: "submit"})
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d, тело: %s", rec.Code, rec.Body.String())
	}
	var res TransitionResultResponse
	decodeBody(t, rec, &res)
	if res.Revision.State != "review" || res.ProgramState != "draft" {
		t.Errorf("ревизия %s, программа %s; ожидалось review, draft", res.Revision.State, res.ProgramState)
	}
}

func TestTransitions_Errors(t *testing.T) {
	srv := newTestServer(t, 1<<20)
	created := srv.createProgram(t, "Вал", "M30\n")
	other := srv.createProgram(t, "Втулка", "M30\n")
	base := "/api/v1/programs/" + created.Program.ID + "/revisions/"

	tests := []struct {
		name    string
		path    string
		payload any
		status  int
		code    string
	}{
		{"пустое действие", base + created.Revision.ID + "/transitions", TransitionRequest{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"неизвестное действие", base + created.Revision.ID + "/transitions", TransitionRequest{Action: "publish"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"approve из draft", base + created.Revision.ID + "/transitions", TransitionRequest{Action: "approve"}, http.StatusConflict, "INVALID_TRANSITION"},
		{"ревизия другой программы", base + other.Revision.ID + "/transitions", TransitionRequest{Action: "submit"}, http.StatusNotFound, "NOT_FOUND"},
		{"лишнее поле", base + created.Revision.ID + "/transitions", map[string]string{"action": "submit", "to": "released"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, srv.sendJSON(t, http.MethodPost, tt.path, tt.payload), tt.status, tt.code)
		})
	}

	if n := srv.store.TransitionCount(); n != 0 {
		t.Errorf("записей журнала %d, ожидалось 0", n)
	}
}
