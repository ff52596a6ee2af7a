package repository

import (
	"strings"
	"testing"
)

// --- Тесты buildProgramWhere ---

func TestBuildProgramWhere_Empty(t *testing.T) {
	where, args := buildProgramWhere(ProgramListFilters{}, 1)

	if where != "" {
		t.Errorf("where = %q, ожидалась пустая строка", where)
	}
	if len(args) != 0 {
		t.Errorf("args count = %d, ожидался 0", len(args))
	}
}

func TestBuildProgramWhere_AllFilters(t *testing.T) {
	opID := int64(7)
	state := "released"
	query := "face"
	where, args := buildProgramWhere(ProgramListFilters{
		OperationID: &opID,
		State:       &state,
		Query:       &query,
	}, 1)

	for _, want := range []string{"p.operation_id = $1", "s.name = $2", "p.program_number ILIKE $3", "p.name ILIKE $3"} {
		if !strings.Contains(where, want) {
			t.Errorf("where = %q, ожидалось содержание %q", where, want)
		}
	}
	if strings.Count(where, " AND ") != 2 {
		t.Errorf("where = %q, ожидалось 2 AND", where)
	}
	if len(args) != 3 {
		t.Fatalf("args count = %d, ожидалось 3", len(args))
	}
	if args[0] != int64(7) || args[1] != "released" || args[2] != "%face%" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildProgramWhere_StartArg(t *testing.T) {
	state := "draft"
	where, _ := buildProgramWhere(ProgramListFilters{State: &state}, 4)
	if !strings.Contains(where, "$4") {
		t.Errorf("where = %q, ожидался $4", where)
	}
}

// TestBuildProgramWhere_QueryEscaped — спецсимволы LIKE экранируются.
func TestBuildProgramWhere_QueryEscaped(t *testing.T) {
	query := " 50%_off "
	_, args := buildProgramWhere(ProgramListFilters{Query: &query}, 1)
	if len(args) != 1 || args[0] != `%50\%\_off%` {
		t.Errorf("args = %v", args)
	}

	blank := "   "
	where, args := buildProgramWhere(ProgramListFilters{Query: &blank}, 1)
	if where != "" || len(args) != 0 {
		t.Errorf("пустой запрос не должен добавлять условие: %q %v", where, args)
	}
}

// --- Тесты buildProgramOrderBy ---

func TestBuildProgramOrderBy(t *testing.T) {
	tests := []struct {
		sort ProgramSort
		want string
	}{
		{ProgramSort{}, "ORDER BY p.created_at DESC, p.id DESC"},
		{ProgramSort{SortBy: "name", SortOrder: "asc"}, "ORDER BY p.name ASC, p.id ASC"},
		{ProgramSort{SortBy: "program_number", SortOrder: "ASC"}, "ORDER BY p.program_number ASC, p.id ASC"},
		{ProgramSort{SortBy: "updated_at"}, "ORDER BY p.updated_at DESC, p.id DESC"},
		// Недопустимые значения заменяются значениями по умолчанию
		{ProgramSort{SortBy: "id; DROP TABLE programs", SortOrder: "sideways"}, "ORDER BY p.created_at DESC, p.id DESC"},
	}

	for _, tt := range tests {
		if got := buildProgramOrderBy(tt.sort); got != tt.want {
			t.Errorf("buildProgramOrderBy(%+v) = %q, ожидалось %q", tt.sort, got, tt.want)
		}
	}
}
