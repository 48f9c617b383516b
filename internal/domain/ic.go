package domain

import "fmt"

// PairType — тип сверяемой интеркомпани-пары.
type PairType string

const (
	PairARAP    PairType = "AR/AP"
	PairRevCOGS PairType = "REV/COGS"
)

// ICMismatch — расхождение взаимных балансов сверх допуска.
// Создается только когда ||entity| - |partner|| превышает допуск и суммы не обе нулевые.
type ICMismatch struct {
	Partner       string   `json:"partner"`
	PairType      PairType `json:"pair_type"`
	EntityAmount  float64  `json:"entity_amount"`
	PartnerAmount float64  `json:"partner_amount"`
	Difference    float64  `json:"difference"`
}

// String — строка для перечисления в причине отказа: каждое расхождение целиком,
// никогда не только первое.
func (m ICMismatch) String() string {
	return fmt.Sprintf("%s %s: entity=%.2f partner=%.2f diff=%.2f",
		m.Partner, m.PairType, m.EntityAmount, m.PartnerAmount, m.Difference)
}
