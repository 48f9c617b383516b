package cube

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// ErrNoData — в кубе нет значения по координате. Это не сбой: правила
// читают такие ячейки как 0 (отсутствующие данные), а не как ошибку выборки.
var ErrNoData = errors.New("no data for coordinate")

// Repository — читающий слой финансового куба. Все числовые чтения
// правил и шлюзов идут только через него.
type Repository interface {
	GetCell(ctx context.Context, pov domain.POV) (float64, error)
}

// FetchError — транзиентный или постоянный сбой чтения координаты.
// Никогда не фатален: правило конвертирует его в Warning, шлюз — в
// документированную для него мягкую интерпретацию.
type FetchError struct {
	POV domain.POV
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.POV, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Value читает ячейку, трактуя NoData как ноль. Настоящие сбои заворачивает
// в FetchError с координатой — дальше их классифицирует вызывающий.
func Value(ctx context.Context, repo Repository, pov domain.POV) (float64, error) {
	v, err := repo.GetCell(ctx, pov)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, nil
		}
		var fe *FetchError
		if errors.As(err, &fe) {
			return 0, err
		}
		return 0, &FetchError{POV: pov, Err: err}
	}
	return v, nil
}
