package store

import (
	"context"
	"errors"
	"time"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// Flag — одно прочитанное состояние workflow. Флаги пишутся другими,
// отдельно запускаемыми правилами, поэтому между чтением и решением они
// могут устареть; ReadAt делает этот разрыв видимым в аудите.
type Flag struct {
	Value   string
	Present bool
	ReadAt  time.Time

	// Err != nil — стор недоступен. Шлюз качества данных трактует это
	// как pass-with-warning (fail-open на инфраструктурном сбое).
	Err error
}

// WorkflowFlags — типизированный снимок трех внешних флагов, снятый один раз
// на оценку. Логика шлюзов работает только с ним, не со строковыми ключами.
type WorkflowFlags struct {
	DataQuality     Flag
	ICRecon         Flag
	ManagerApproval Flag
}

// FlagLoader — адаптер над ConfigStore, собирающий снимок флагов для POV.
type FlagLoader struct {
	store ConfigStore
}

func NewFlagLoader(store ConfigStore) *FlagLoader {
	return &FlagLoader{store: store}
}

func (l *FlagLoader) Load(ctx context.Context, pov domain.POV) WorkflowFlags {
	return WorkflowFlags{
		DataQuality:     l.read(ctx, DataQualityKey(pov.Entity, pov.Period)),
		ICRecon:         l.read(ctx, ICReconKey(pov.Entity, pov.Period)),
		ManagerApproval: l.read(ctx, ApprovalKey(pov.Entity, pov.Scenario, pov.Period)),
	}
}

func (l *FlagLoader) read(ctx context.Context, key string) Flag {
	f := Flag{ReadAt: time.Now().UTC()}
	val, err := l.store.Get(ctx, key)
	switch {
	case err == nil:
		f.Value = val
		f.Present = true
	case errors.Is(err, ErrAbsent):
		// Бизнес-состояние "не выставлен", не сбой
	default:
		f.Err = err
	}
	return f
}
