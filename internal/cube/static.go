package cube

import (
	"context"
	"sync"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// Static — in-memory реализация Repository для тестов и dev-режима
// (когда адрес куба не сконфигурирован). Пустая ячейка читается как NoData.
type Static struct {
	mu    sync.RWMutex
	cells map[string]float64

	// FailOn — координаты, по которым чтение возвращает принудительную ошибку.
	// Нужен для проверки деградации правил при сбое выборки.
	failOn map[string]error
}

func NewStatic() *Static {
	return &Static{
		cells:  make(map[string]float64),
		failOn: make(map[string]error),
	}
}

func (s *Static) Set(pov domain.POV, value float64) *Static {
	s.mu.Lock()
	s.cells[pov.String()] = value
	s.mu.Unlock()
	return s
}

func (s *Static) Fail(pov domain.POV, err error) *Static {
	s.mu.Lock()
	s.failOn[pov.String()] = err
	s.mu.Unlock()
	return s
}

func (s *Static) GetCell(ctx context.Context, pov domain.POV) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	key := pov.String()
	if err, ok := s.failOn[key]; ok {
		return 0, &FetchError{POV: pov, Err: err}
	}
	v, ok := s.cells[key]
	if !ok {
		return 0, ErrNoData
	}
	return v, nil
}
