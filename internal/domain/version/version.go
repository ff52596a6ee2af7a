// Пакет version — семантические версии ревизий NC-программ (major.minor.patch)
// и вычисление следующей версии.
package version

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxComponent — предел компонента версии (столбцы version_* имеют тип INT).
const MaxComponent = math.MaxInt32

var (
	// ErrNotGreater — явно заданная версия не больше последней существующей.
	ErrNotGreater = errors.New("версия должна быть больше последней")
	// ErrOverflow — увеличение компонента выходит за MaxComponent.
	ErrOverflow = errors.New("компонент версии достиг максимума")
)

// Version — тройка major.minor.patch.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Initial — версия первой ревизии программы.
func Initial() Version {
	return Version{Major: 1, Minor: 0, Patch: 0}
}

// String возвращает отображаемую форму M.N.P.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare сравнивает версии покомпонентно: -1 если v < o, 0 если равны, 1 если v > o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Patch, o.Patch)
	}
}

// Less — v < o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// Next возвращает следующую версию для заданного типа увеличения.
func (v Version) Next(b Bump) Version {
	switch b {
	case BumpMajor:
		return Version{Major: v.Major + 1}
	case BumpMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

// Parse разбирает строку вида "1.2.3" (допускается префикс "v").
// Компоненты больше MaxComponent отклоняются.
func Parse(s string) (Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("некорректная версия %q: ожидается формат major.minor.patch", s)
	}

	var nums [3]int
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 32)
		if err != nil || n < 0 || p == "" || p[0] == '+' || (len(p) > 1 && p[0] == '0') {
			return Version{}, fmt.Errorf("некорректная версия %q: компонент %q (допустимо 0..%d)", s, p, MaxComponent)
		}
		nums[i] = int(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Bump — тип увеличения версии при загрузке новой ревизии.
type Bump string

const (
	BumpPatch Bump = "patch"
	BumpMinor Bump = "minor"
	BumpMajor Bump = "major"
)

// ParseBump преобразует строку в Bump. Пустая строка означает patch.
func ParseBump(s string) (Bump, error) {
	switch Bump(strings.ToLower(strings.TrimSpace(s))) {
	case "", BumpPatch:
		return BumpPatch, nil
	case BumpMinor:
		return BumpMinor, nil
	case BumpMajor:
		return BumpMajor, nil
	default:
		return "", fmt.Errorf("недопустимый тип увеличения версии %q, допустимые: patch, minor, major", s)
	}
}

// Sequence вычисляет версию новой ревизии.
//
//   - latest == nil (ревизий нет): explicit или 1.0.0
//   - explicit задан: должен быть строго больше latest, иначе ErrNotGreater
//   - иначе latest.Next(bump); компонент на MaxComponent даёт ErrOverflow
func Sequence(latest *Version, bump Bump, explicit *Version) (Version, error) {
	if explicit != nil {
		if latest != nil && !latest.Less(*explicit) {
			return Version{}, fmt.Errorf("%w: %s <= %s", ErrNotGreater, explicit, latest)
		}
		return *explicit, nil
	}
	if latest == nil {
		return Initial(), nil
	}
	if latest.atLimit(bump) {
		return Version{}, fmt.Errorf("%w: %s, увеличение %s", ErrOverflow, latest, bump)
	}
	return latest.Next(bump), nil
}

// atLimit — увеличиваемый компонент уже равен MaxComponent.
func (v Version) atLimit(b Bump) bool {
	switch b {
	case BumpMajor:
		return v.Major >= MaxComponent
	case BumpMinor:
		return v.Minor >= MaxComponent
	default:
		return v.Patch >= MaxComponent
	}
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}
