package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrBadPOV = errors.New("malformed pov")

// POV (Point of View) — неизменяемая координата ячейки финансового куба.
// Передается по значению через все компоненты; после конструирования не мутирует.
type POV struct {
	Scenario string `json:"scenario"` // Actual, Budget, RF03...
	Period   string `json:"period"`   // Напр. "2025M12"
	Entity   string `json:"entity"`   // Код юрлица: US01, DE01...
	Account  string `json:"account,omitempty"`

	// Extra — дополнительные измерения куба (IC-контрагент, версия и т.д.)
	Extra map[string]string `json:"extra,omitempty"`
}

// Validate отсекает программные ошибки вызывающей стороны (ProgrammaticError).
// Пустые scenario/period/entity — это сломанный вызов, а не бизнес-отказ.
func (p POV) Validate() error {
	var missing []string
	if p.Scenario == "" {
		missing = append(missing, "scenario")
	}
	if p.Period == "" {
		missing = append(missing, "period")
	}
	if p.Entity == "" {
		missing = append(missing, "entity")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: empty %s", ErrBadPOV, strings.Join(missing, ", "))
	}
	return nil
}

// WithAccount возвращает копию координаты с подставленным счетом.
func (p POV) WithAccount(account string) POV {
	c := p.clone()
	c.Account = account
	return c
}

// WithEntity возвращает копию координаты для другого юрлица.
func (p POV) WithEntity(entity string) POV {
	c := p.clone()
	c.Entity = entity
	return c
}

// WithScenario возвращает копию координаты в другом сценарии
// (сравнение факта с бюджетом).
func (p POV) WithScenario(scenario string) POV {
	c := p.clone()
	c.Scenario = scenario
	return c
}

// WithIC помечает координату интеркомпани-контрагентом (измерение IC).
func (p POV) WithIC(partner string) POV {
	c := p.clone()
	c.Extra["IC"] = partner
	return c
}

// clone копирует POV вместе с мапой Extra, чтобы исходная координата не мутировала.
func (p POV) clone() POV {
	c := p
	c.Extra = make(map[string]string, len(p.Extra)+1)
	for k, v := range p.Extra {
		c.Extra[k] = v
	}
	return c
}

// String — каноническая форма координаты для логов и ключей кэша.
func (p POV) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s:%s", p.Scenario, p.Period, p.Entity)
	if p.Account != "" {
		b.WriteString(":" + p.Account)
	}
	if ic, ok := p.Extra["IC"]; ok {
		b.WriteString(":IC=" + ic)
	}
	return b.String()
}
