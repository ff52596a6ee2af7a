// Пакет model — доменные модели ncstore.
package model

import (
	"time"

	"github.com/bigkaa/ncstore/internal/domain/version"
	"github.com/bigkaa/ncstore/internal/domain/workflow"
)

// Operation — технологическая операция (таблица operations).
// Ведётся внешним реестром, ядро только читает.
type Operation struct {
	ID int64
	// OpNumber — номер операции, префикс автономера программ (например OP10)
	OpNumber string
	Name     string
}

// WorkflowState — строка каталога состояний (таблица workflow_states).
type WorkflowState struct {
	ID        int16
	Name      workflow.State
	Color     string
	SortOrder int
}

// Program — NC-программа, привязанная к операции.
// Хранится в таблице programs.
type Program struct {
	// ID — UUID программы
	ID string
	// OperationID — операция, к которой относится программа
	OperationID int64
	// ProgramNumber — номер программы, уникален в пределах операции
	ProgramNumber string
	Name          string
	Description   *string
	// StateID / State — текущее состояние программы
	StateID int16
	State   workflow.State
	// CurrentRevisionID — текущая ("живая") ревизия, nil до первой загрузки
	CurrentRevisionID *string
	// CurrentVersion — версия текущей ревизии (заполняется при чтении)
	CurrentVersion *string
	// CreatedBy — автор (sub из JWT)
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Revision — неизменяемый снимок содержимого программы.
// Хранится в таблице program_revisions. После создания меняется только состояние.
type Revision struct {
	// ID — UUID ревизии
	ID        string
	ProgramID string
	Version   version.Version
	// StoragePath — относительный путь файла в NC_DATA_DIR
	StoragePath      string
	OriginalFilename string
	FileSize         int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum    string
	ContentType string
	// Content — текст программы, nil для не-UTF-8 содержимого
	Content *string
	Comment *string
	// IsCAMOriginal — исходный экспорт из CAM-системы
	IsCAMOriginal bool
	StateID       int16
	State         workflow.State
	CreatedBy     string
	CreatedAt     time.Time
}

// Transition — запись журнала переходов ревизии (таблица revision_transitions).
type Transition struct {
	ID         int64
	RevisionID string
	Action     workflow.Action
	FromState  workflow.State
	ToState    workflow.State
	Actor      string
	Comment    *string
	CreatedAt  time.Time
}
