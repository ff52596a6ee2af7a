package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bigkaa/ncstore/internal/repository"
)

func TestMapRepoError(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", fmt.Errorf("%w: программа", repository.ErrNotFound), ErrNotFound},
		{"conflict", repository.ErrConflict, ErrConflict},
		{"прочая ошибка", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := mapRepoError(tt.err, "программа x"); !errors.Is(err, tt.want) {
				t.Errorf("mapRepoError(%v) = %v, ожидалось %v", tt.err, err, tt.want)
			}
		})
	}
	if mapRepoError(nil, "x") != nil {
		t.Error("nil должен оставаться nil")
	}
}

func TestValidateParams(t *testing.T) {
	type params struct {
		Name string `validate:"required" field:"name"`
		Mode string `validate:"omitempty,oneof=a b" field:"mode"`
	}

	if err := validateParams(params{Name: "x", Mode: "a"}); err != nil {
		t.Fatalf("корректные параметры: %v", err)
	}

	err := validateParams(params{})
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Fields) != 1 || ve.Fields[0] != "name" {
		t.Fatalf("ожидалось отсутствие name, получено: %v", err)
	}
	if ve.Error() != "отсутствуют обязательные поля: name" {
		t.Errorf("сообщение %q", ve.Error())
	}

	err = validateParams(params{Mode: "c"})
	if !errors.As(err, &ve) || len(ve.Fields) != 2 {
		t.Fatalf("ожидалось два поля, получено: %v", err)
	}
	if ve.Error() != "некорректные значения полей: name, mode" {
		t.Errorf("сообщение %q", ve.Error())
	}
}

func TestResolveContentType(t *testing.T) {
	tests := []struct {
		requested, filename string
		isText              bool
		want                string
	}{
		{"text/x-gcode", "a.nc", true, "text/x-gcode"},
		{"application/octet-stream", "a.nc", true, "text/plain; charset=utf-8"},
		{"", "a.nc", true, "text/plain; charset=utf-8"},
		{"", "dump.zzz", false, "application/octet-stream"},
		{"", "drawing.pdf", false, "application/pdf"},
	}
	for _, tt := range tests {
		if got := resolveContentType(tt.requested, tt.filename, tt.isText); got != tt.want {
			t.Errorf("resolveContentType(%q, %q, %v) = %q, ожидалось %q",
				tt.requested, tt.filename, tt.isText, got, tt.want)
		}
	}
}
