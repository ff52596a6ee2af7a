// Пакет workflow — конечный автомат состояний ревизий NC-программ.
//
// Жизненный цикл ревизии:
//
//	draft --submit--> review --approve--> released --retire--> obsolete
//	                  review --reject---> draft
//
// obsolete — конечное состояние. Недопустимые переходы отклоняются
// с кодом INVALID_TRANSITION.
package workflow

import (
	"fmt"
	"sort"
)

// State — состояние ревизии или программы.
type State string

const (
	StateDraft    State = "draft"
	StateReview   State = "review"
	StateReleased State = "released"
	StateObsolete State = "obsolete"
)

// InitialState — состояние новой программы.
const InitialState = StateDraft

// Action — действие, переводящее ревизию в другое состояние.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionRetire  Action = "retire"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
)

// transitions — таблица переходов: текущее состояние × действие → новое состояние.
var transitions = map[State]map[Action]State{
	StateDraft:    {ActionSubmit: StateReview},
	StateReview:   {ActionApprove: StateReleased, ActionReject: StateDraft},
	StateReleased: {ActionRetire: StateObsolete},
	StateObsolete: {},
}

// states — все состояния в порядке жизненного цикла.
var states = []State{StateDraft, StateReview, StateReleased, StateObsolete}

// Rule — строка таблицы переходов.
type Rule struct {
	From   State  `json:"from"`
	Action Action `json:"action"`
	To     State  `json:"to"`
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Next возвращает состояние после применения действия к from.
// Возвращает *TransitionError, если переход недопустим.
func Next(from State, action Action) (State, error) {
	actions, ok := transitions[from]
	if !ok {
		return "", &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("неизвестное состояние %q", from),
		}
	}
	to, ok := actions[action]
	if !ok {
		return "", &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("действие %q недопустимо в состоянии %s", action, from),
		}
	}
	return to, nil
}

// AllowedActions возвращает действия, допустимые в состоянии (отсортированы).
func AllowedActions(from State) []Action {
	actions := transitions[from]
	result := make([]Action, 0, len(actions))
	for a := range actions {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// IsTerminal — из состояния нет переходов.
func IsTerminal(s State) bool {
	return len(transitions[s]) == 0
}

// States возвращает все состояния автомата (копия).
func States() []State {
	result := make([]State, len(states))
	copy(result, states)
	return result
}

// Rules возвращает таблицу переходов в порядке жизненного цикла.
func Rules() []Rule {
	var rules []Rule
	for _, from := range states {
		for _, a := range AllowedActions(from) {
			rules = append(rules, Rule{From: from, Action: a, To: transitions[from][a]})
		}
	}
	return rules
}

// ParseState преобразует строку в State.
func ParseState(s string) (State, error) {
	st := State(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("недопустимое состояние: %q, допустимые: draft, review, released, obsolete", s)
	}
	return st, nil
}

// ParseAction преобразует строку в Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionSubmit, ActionApprove, ActionReject, ActionRetire:
		return a, nil
	default:
		return "", fmt.Errorf("недопустимое действие: %q, допустимые: submit, approve, reject, retire", s)
	}
}
