// Пакет repotest — in-memory реализация repository.Store для тестов
// сервисов и HTTP-обработчиков без PostgreSQL.
//
// Эмулирует ограничения схемы: уникальность номера программы в операции
// и версии в программе, внешние ключи, каскадное удаление, принадлежность
// текущей ревизии программе. InTx удерживает мьютекс на всё время
// транзакции и откатывает снимок данных при ошибке.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/domain/version"
	"github.com/bigkaa/ncstore/internal/domain/workflow"
	"github.com/bigkaa/ncstore/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store — in-memory хранилище. Безопасно для конкурентного использования.
type Store struct {
	root *Store
	tx   bool

	mu   sync.Mutex
	data *state

	// FailRevisionCreate — если задано, Revisions().Create возвращает эту ошибку.
	FailRevisionCreate error
	// FailSetCurrentRevision — если задано, Programs().SetCurrentRevision возвращает эту ошибку.
	FailSetCurrentRevision error
}

type state struct {
	operations  map[int64]*model.Operation
	states      []model.WorkflowState
	programs    map[string]*model.Program
	revisions   map[string]*model.Revision
	contents    map[string]*string
	transitions []*model.Transition

	nextOperationID  int64
	nextTransitionID int64
	clock            time.Time
}

// New создаёт пустое хранилище с каталогом состояний workflow.
func New() *Store {
	s := &Store{
		data: &state{
			operations: make(map[int64]*model.Operation),
			programs:   make(map[string]*model.Program),
			revisions:  make(map[string]*model.Revision),
			contents:   make(map[string]*string),
			clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	s.root = s
	colors := map[workflow.State]string{
		workflow.StateDraft:    "#9e9e9e",
		workflow.StateReview:   "#ffb300",
		workflow.StateReleased: "#43a047",
		workflow.StateObsolete: "#e53935",
	}
	for i, name := range workflow.States() {
		s.data.states = append(s.data.states, model.WorkflowState{
			ID: int16(i + 1), Name: name, Color: colors[name], SortOrder: (i + 1) * 10,
		})
	}
	return s
}

// AddOperation добавляет операцию в реестр и возвращает её id.
func (s *Store) AddOperation(opNumber, name string) int64 {
	defer s.lock()()
	d := s.root.data
	d.nextOperationID++
	d.operations[d.nextOperationID] = &model.Operation{ID: d.nextOperationID, OpNumber: opNumber, Name: name}
	return d.nextOperationID
}

// AddOperationWithID добавляет операцию с заданным id.
func (s *Store) AddOperationWithID(id int64, opNumber, name string) {
	defer s.lock()()
	d := s.root.data
	d.operations[id] = &model.Operation{ID: id, OpNumber: opNumber, Name: name}
	if id > d.nextOperationID {
		d.nextOperationID = id
	}
}

// RemoveState удаляет состояние из каталога (для проверки сверки каталога).
func (s *Store) RemoveState(name workflow.State) {
	defer s.lock()()
	d := s.root.data
	kept := d.states[:0]
	for _, st := range d.states {
		if st.Name != name {
			kept = append(kept, st)
		}
	}
	d.states = kept
}

// RevisionCount — общее количество ревизий.
func (s *Store) RevisionCount() int {
	defer s.lock()()
	return len(s.root.data.revisions)
}

// ProgramCount — общее количество программ.
func (s *Store) ProgramCount() int {
	defer s.lock()()
	return len(s.root.data.programs)
}

// TransitionCount — общее количество записей журнала переходов.
func (s *Store) TransitionCount() int {
	defer s.lock()()
	return len(s.root.data.transitions)
}

// lock захватывает мьютекс вне транзакции и возвращает функцию освобождения.
func (s *Store) lock() func() {
	if s.tx {
		return func() {}
	}
	s.root.mu.Lock()
	return s.root.mu.Unlock
}

func (s *Store) Programs() repository.ProgramRepository     { return programRepo{s} }
func (s *Store) Revisions() repository.RevisionRepository   { return revisionRepo{s} }
func (s *Store) Operations() repository.OperationRepository { return operationRepo{s} }
func (s *Store) Workflow() repository.WorkflowRepository    { return workflowRepo{s} }

// InTx выполняет fn под мьютексом; при ошибке восстанавливает снимок данных.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.root.mu.Lock()
	defer s.root.mu.Unlock()

	snapshot := s.root.data.clone()
	txStore := &Store{root: s.root, tx: true}
	if err := fn(txStore); err != nil {
		s.root.data = snapshot
		return err
	}
	return nil
}

func (d *state) clone() *state {
	c := &state{
		operations:       make(map[int64]*model.Operation, len(d.operations)),
		states:           append([]model.WorkflowState(nil), d.states...),
		programs:         make(map[string]*model.Program, len(d.programs)),
		revisions:        make(map[string]*model.Revision, len(d.revisions)),
		contents:         make(map[string]*string, len(d.contents)),
		nextOperationID:  d.nextOperationID,
		nextTransitionID: d.nextTransitionID,
		clock:            d.clock,
	}
	for k, v := range d.operations {
		op := *v
		c.operations[k] = &op
	}
	for k, v := range d.programs {
		c.programs[k] = copyProgram(v)
	}
	for k, v := range d.revisions {
		r := *v
		c.revisions[k] = &r
	}
	for k, v := range d.contents {
		c.contents[k] = v
	}
	for _, t := range d.transitions {
		tr := *t
		c.transitions = append(c.transitions, &tr)
	}
	return c
}

// tick возвращает строго возрастающее время для created_at/updated_at.
func (d *state) tick() time.Time {
	d.clock = d.clock.Add(time.Millisecond)
	return d.clock
}

func (d *state) stateByID(id int16) (model.WorkflowState, bool) {
	for _, st := range d.states {
		if st.ID == id {
			return st, true
		}
	}
	return model.WorkflowState{}, false
}

func copyProgram(p *model.Program) *model.Program {
	c := *p
	if p.Description != nil {
		desc := *p.Description
		c.Description = &desc
	}
	if p.CurrentRevisionID != nil {
		id := *p.CurrentRevisionID
		c.CurrentRevisionID = &id
	}
	return &c
}

// --- programs ---

type programRepo struct{ s *Store }

func (r programRepo) d() *state { return r.s.root.data }

// view возвращает копию программы с вычисляемыми полями.
func (r programRepo) view(p *model.Program) *model.Program {
	c := copyProgram(p)
	if st, ok := r.d().stateByID(c.StateID); ok {
		c.State = st.Name
	}
	c.CurrentVersion = nil
	if c.CurrentRevisionID != nil {
		if rev, ok := r.d().revisions[*c.CurrentRevisionID]; ok {
			v := rev.Version.String()
			c.CurrentVersion = &v
		}
	}
	return c
}

func (r programRepo) Create(_ context.Context, p *model.Program) error {
	defer r.s.lock()()
	d := r.d()
	if _, ok := d.programs[p.ID]; ok {
		return fmt.Errorf("%w: программа %s", repository.ErrConflict, p.ID)
	}
	if _, ok := d.operations[p.OperationID]; !ok {
		return fmt.Errorf("%w: операция %d", repository.ErrNotFound, p.OperationID)
	}
	for _, other := range d.programs {
		if other.OperationID == p.OperationID && other.ProgramNumber == p.ProgramNumber {
			return fmt.Errorf("%w: программа %s уже существует в операции", repository.ErrConflict, p.ProgramNumber)
		}
	}
	now := d.tick()
	p.CreatedAt, p.UpdatedAt = now, now
	d.programs[p.ID] = copyProgram(p)
	return nil
}

func (r programRepo) GetByID(_ context.Context, id string) (*model.Program, error) {
	defer r.s.lock()()
	p, ok := r.d().programs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.view(p), nil
}

func (r programRepo) GetForUpdate(ctx context.Context, id string) (*model.Program, error) {
	return r.GetByID(ctx, id)
}

func (r programRepo) filter(f repository.ProgramListFilters) []*model.Program {
	var result []*model.Program
	for _, p := range r.d().programs {
		v := r.view(p)
		if f.OperationID != nil && v.OperationID != *f.OperationID {
			continue
		}
		if f.State != nil && string(v.State) != *f.State {
			continue
		}
		if f.Query != nil {
			q := strings.ToLower(strings.TrimSpace(*f.Query))
			if q != "" && !strings.Contains(strings.ToLower(v.ProgramNumber), q) &&
				!strings.Contains(strings.ToLower(v.Name), q) {
				continue
			}
		}
		result = append(result, v)
	}
	return result
}

func (r programRepo) List(_ context.Context, f repository.ProgramListFilters, srt repository.ProgramSort, limit, offset int) ([]*model.Program, error) {
	defer r.s.lock()()
	list := r.filter(f)

	less := func(a, b *model.Program) bool {
		switch srt.SortBy {
		case "program_number":
			return a.ProgramNumber < b.ProgramNumber
		case "name":
			return a.Name < b.Name
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	asc := strings.EqualFold(srt.SortOrder, "asc")
	sort.SliceStable(list, func(i, j int) bool {
		if asc {
			return less(list[i], list[j])
		}
		return less(list[j], list[i])
	})

	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if limit >= 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (r programRepo) Count(_ context.Context, f repository.ProgramListFilters) (int, error) {
	defer r.s.lock()()
	return len(r.filter(f)), nil
}

func (r programRepo) CountByOperation(_ context.Context, operationID int64) (int, error) {
	defer r.s.lock()()
	n := 0
	for _, p := range r.d().programs {
		if p.OperationID == operationID {
			n++
		}
	}
	return n, nil
}

func (r programRepo) UpdateMetadata(_ context.Context, p *model.Program) error {
	defer r.s.lock()()
	d := r.d()
	cur, ok := d.programs[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, other := range d.programs {
		if other.ID != p.ID && other.OperationID == cur.OperationID && other.ProgramNumber == p.ProgramNumber {
			return fmt.Errorf("%w: программа %s уже существует в операции", repository.ErrConflict, p.ProgramNumber)
		}
	}
	cur.ProgramNumber = p.ProgramNumber
	cur.Name = p.Name
	cur.Description = p.Description
	cur.UpdatedAt = d.tick()
	p.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r programRepo) SetCurrentRevision(_ context.Context, programID, revisionID string, stateID int16) error {
	defer r.s.lock()()
	if err := r.s.root.FailSetCurrentRevision; err != nil {
		return err
	}
	d := r.d()
	p, ok := d.programs[programID]
	if !ok {
		return repository.ErrNotFound
	}
	rev, ok := d.revisions[revisionID]
	if !ok || rev.ProgramID != programID {
		return fmt.Errorf("%w: ревизия %s не принадлежит программе %s", repository.ErrNotFound, revisionID, programID)
	}
	id := revisionID
	p.CurrentRevisionID = &id
	p.StateID = stateID
	p.UpdatedAt = d.tick()
	return nil
}

func (r programRepo) SetState(_ context.Context, programID string, stateID int16) error {
	defer r.s.lock()()
	d := r.d()
	p, ok := d.programs[programID]
	if !ok {
		return repository.ErrNotFound
	}
	p.StateID = stateID
	p.UpdatedAt = d.tick()
	return nil
}

func (r programRepo) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	d := r.d()
	if _, ok := d.programs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(d.programs, id)
	removed := make(map[string]bool)
	for rid, rev := range d.revisions {
		if rev.ProgramID == id {
			removed[rid] = true
			delete(d.revisions, rid)
			delete(d.contents, rid)
		}
	}
	kept := d.transitions[:0]
	for _, t := range d.transitions {
		if !removed[t.RevisionID] {
			kept = append(kept, t)
		}
	}
	d.transitions = kept
	return nil
}

// --- revisions ---

type revisionRepo struct{ s *Store }

func (r revisionRepo) d() *state { return r.s.root.data }

func (r revisionRepo) view(rev *model.Revision) *model.Revision {
	c := *rev
	c.Content = nil
	if st, ok := r.d().stateByID(c.StateID); ok {
		c.State = st.Name
	}
	return &c
}

func (r revisionRepo) Create(_ context.Context, rev *model.Revision) error {
	defer r.s.lock()()
	if err := r.s.root.FailRevisionCreate; err != nil {
		return err
	}
	d := r.d()
	if _, ok := d.programs[rev.ProgramID]; !ok {
		return fmt.Errorf("%w: программа %s", repository.ErrNotFound, rev.ProgramID)
	}
	if _, ok := d.revisions[rev.ID]; ok {
		return fmt.Errorf("%w: ревизия %s", repository.ErrConflict, rev.ID)
	}
	for _, other := range d.revisions {
		if other.ProgramID == rev.ProgramID && other.Version == rev.Version {
			return fmt.Errorf("%w: версия %s уже существует", repository.ErrConflict, rev.Version)
		}
	}
	rev.CreatedAt = d.tick()
	c := *rev
	c.Content = nil
	d.revisions[rev.ID] = &c
	d.contents[rev.ID] = rev.Content
	return nil
}

func (r revisionRepo) GetByID(_ context.Context, id string) (*model.Revision, error) {
	defer r.s.lock()()
	rev, ok := r.d().revisions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.view(rev), nil
}

func (r revisionRepo) GetByVersion(_ context.Context, programID string, v version.Version) (*model.Revision, error) {
	defer r.s.lock()()
	for _, rev := range r.d().revisions {
		if rev.ProgramID == programID && rev.Version == v {
			return r.view(rev), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r revisionRepo) Latest(_ context.Context, programID string) (*model.Revision, error) {
	defer r.s.lock()()
	var latest *model.Revision
	for _, rev := range r.d().revisions {
		if rev.ProgramID == programID && (latest == nil || latest.Version.Less(rev.Version)) {
			latest = rev
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return r.view(latest), nil
}

func (r revisionRepo) ListByProgram(_ context.Context, programID string) ([]*model.Revision, error) {
	defer r.s.lock()()
	var result []*model.Revision
	for _, rev := range r.d().revisions {
		if rev.ProgramID == programID {
			result = append(result, r.view(rev))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[j].Version.Less(result[i].Version)
	})
	return result, nil
}

func (r revisionRepo) ListAll(_ context.Context, afterID string, limit int) ([]*model.Revision, error) {
	defer r.s.lock()()
	var result []*model.Revision
	for _, rev := range r.d().revisions {
		if rev.ID > afterID {
			result = append(result, r.view(rev))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit >= 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (r revisionRepo) GetContent(_ context.Context, id string) (*string, error) {
	defer r.s.lock()()
	if _, ok := r.d().revisions[id]; !ok {
		return nil, repository.ErrNotFound
	}
	return r.d().contents[id], nil
}

func (r revisionRepo) SetState(_ context.Context, id string, stateID int16) error {
	defer r.s.lock()()
	rev, ok := r.d().revisions[id]
	if !ok {
		return repository.ErrNotFound
	}
	rev.StateID = stateID
	return nil
}

func (r revisionRepo) AddTransition(_ context.Context, t *model.Transition) error {
	defer r.s.lock()()
	d := r.d()
	if _, ok := d.revisions[t.RevisionID]; !ok {
		return fmt.Errorf("%w: ревизия %s", repository.ErrNotFound, t.RevisionID)
	}
	d.nextTransitionID++
	t.ID = d.nextTransitionID
	t.CreatedAt = d.tick()
	c := *t
	d.transitions = append(d.transitions, &c)
	return nil
}

func (r revisionRepo) ListTransitions(_ context.Context, revisionID string) ([]*model.Transition, error) {
	defer r.s.lock()()
	var result []*model.Transition
	for _, t := range r.d().transitions {
		if t.RevisionID == revisionID {
			c := *t
			result = append(result, &c)
		}
	}
	return result, nil
}

// --- catalog ---

type operationRepo struct{ s *Store }

func (r operationRepo) GetByID(_ context.Context, id int64) (*model.Operation, error) {
	defer r.s.lock()()
	op, ok := r.s.root.data.operations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *op
	return &c, nil
}

type workflowRepo struct{ s *Store }

func (r workflowRepo) ListStates(_ context.Context) ([]model.WorkflowState, error) {
	defer r.s.lock()()
	return append([]model.WorkflowState(nil), r.s.root.data.states...), nil
}

func (r workflowRepo) GetStateByName(_ context.Context, name string) (*model.WorkflowState, error) {
	defer r.s.lock()()
	for _, st := range r.s.root.data.states {
		if string(st.Name) == name {
			c := st
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}
