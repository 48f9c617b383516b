package rules

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/cube"
	"github.com/xela07ax/closegate-platform/internal/domain"
)

// ICTolerance — допустимое расхождение взаимных балансов, в валюте отчета.
const ICTolerance = 500.0

// maxParallelPartners ограничивает одновременные сверки, чтобы не
// зафлудить читающий слой куба при длинном списке контрагентов.
const maxParallelPartners = 4

// PartnerSource — источник списка IC-контрагентов юрлица
// (настроенный список либо фоллбэк «все остальные базовые юрлица»).
type PartnerSource interface {
	ICPartners(ctx context.Context, entity string) ([]string, error)
}

type Matcher struct {
	repo     cube.Repository
	partners PartnerSource
	logger   *zap.Logger
}

func NewMatcher(repo cube.Repository, partners PartnerSource, logger *zap.Logger) *Matcher {
	return &Matcher{
		repo:     repo,
		partners: partners,
		logger:   logger.Named("ic-matcher"),
	}
}

// Run сверяет взаимные балансы юрлица со всеми контрагентами по двум типам
// пар: AR против AP и IC-выручка против IC-себестоимости. Контрагенты
// проверяются конкурентно; итоговый список расхождений идет в порядке
// списка контрагентов, а не в порядке завершения горутин.
func (m *Matcher) Run(ctx context.Context, pov domain.POV) ([]domain.ICMismatch, error) {
	partners, err := m.partners.ICPartners(ctx, pov.Entity)
	if err != nil {
		return nil, fmt.Errorf("resolve ic partners for %s: %w", pov.Entity, err)
	}

	perPartner := make([][]domain.ICMismatch, len(partners))
	sem := make(chan struct{}, maxParallelPartners)
	var wg sync.WaitGroup

	for i, partner := range partners {
		wg.Add(1)
		go func(i int, partner string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			perPartner[i] = m.matchPartner(ctx, pov, partner)
		}(i, partner)
	}
	wg.Wait()

	var mismatches []domain.ICMismatch
	for _, mm := range perPartner {
		mismatches = append(mismatches, mm...)
	}
	return mismatches, nil
}

// matchPartner проверяет обе пары одного контрагента. Сбой чтения любой
// стороны логируется и пара пропускается — это не расхождение.
func (m *Matcher) matchPartner(ctx context.Context, pov domain.POV, partner string) []domain.ICMismatch {
	pairs := []struct {
		pairType    domain.PairType
		entityAcct  string
		partnerAcct string
	}{
		{domain.PairARAP, domain.AcctICReceivable, domain.AcctICPayable},
		{domain.PairRevCOGS, domain.AcctICRevenue, domain.AcctICCOGS},
	}

	var out []domain.ICMismatch
	for _, p := range pairs {
		// Обе стороны читаются с пометкой контрагента в IC-измерении
		entityAmt, err := cube.Value(ctx, m.repo, pov.WithAccount(p.entityAcct).WithIC(partner))
		if err != nil {
			m.logger.Warn("ic pair skipped: entity side unreadable",
				zap.String("partner", partner),
				zap.String("pair", string(p.pairType)),
				zap.Error(err))
			continue
		}
		partnerAmt, err := cube.Value(ctx, m.repo, pov.WithEntity(partner).WithAccount(p.partnerAcct).WithIC(pov.Entity))
		if err != nil {
			m.logger.Warn("ic pair skipped: partner side unreadable",
				zap.String("partner", partner),
				zap.String("pair", string(p.pairType)),
				zap.Error(err))
			continue
		}

		// Нет активности — нет сверки
		if entityAmt == 0 && partnerAmt == 0 {
			continue
		}

		diff := math.Abs(math.Abs(entityAmt) - math.Abs(partnerAmt))
		if diff > ICTolerance {
			out = append(out, domain.ICMismatch{
				Partner:       partner,
				PairType:      p.pairType,
				EntityAmount:  entityAmt,
				PartnerAmount: partnerAmt,
				Difference:    diff,
			})
		}
	}
	return out
}

// MismatchSummary перечисляет каждое расхождение целиком — контрагент,
// тип пары, обе суммы, разница. Никогда не только первое.
func MismatchSummary(mismatches []domain.ICMismatch) string {
	if len(mismatches) == 0 {
		return ""
	}
	s := fmt.Sprintf("%d intercompany mismatch(es) over %.0f tolerance: ", len(mismatches), ICTolerance)
	for i, mm := range mismatches {
		if i > 0 {
			s += "; "
		}
		s += mm.String()
	}
	return s
}
