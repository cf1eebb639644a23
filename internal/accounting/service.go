// Package accounting derives cost figures from the inventory transaction
// log. It is strictly read-only: the log is the book of record and this
// package never writes to it.
package accounting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// CostReport summarises cost of goods sold for one period.
type CostReport struct {
	CompanyID int64
	From      time.Time
	To        time.Time
	// COGS sums the cost snapshots of sale transactions, so the figure is
	// exactly what stock valuation gave up over the period.
	COGS decimal.Decimal
	// UnitsSold is the quantity behind the COGS figure.
	UnitsSold decimal.Decimal
}

// ValuationLine is one product's contribution to closing inventory value.
type ValuationLine struct {
	ProductID int64
	SKU       string
	Name      string
	OnHand    decimal.Decimal
	Value     decimal.Decimal
}

// ValuationReport is the closing inventory value at a point in time.
type ValuationReport struct {
	CompanyID int64
	AsOf      time.Time
	Lines     []ValuationLine
	Total     decimal.Decimal
}

// RepositoryPort reads aggregated figures off the transaction log.
type RepositoryPort interface {
	CostOfGoodsSold(ctx context.Context, companyID int64, from, to time.Time) (cogs, units decimal.Decimal, err error)
	ValuationAsOf(ctx context.Context, companyID int64, asOf time.Time) ([]ValuationLine, error)
}

// Service answers costing questions from the transaction log.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs accounting service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CostOfGoodsSold reports COGS over [from, to].
func (s *Service) CostOfGoodsSold(ctx context.Context, companyID int64, from, to time.Time) (CostReport, error) {
	if companyID == 0 {
		return CostReport{}, fmt.Errorf("accounting: company required")
	}
	if to.Before(from) {
		return CostReport{}, fmt.Errorf("accounting: period end before start")
	}
	cogs, units, err := s.repo.CostOfGoodsSold(ctx, companyID, from, to)
	if err != nil {
		return CostReport{}, err
	}
	return CostReport{CompanyID: companyID, From: from, To: to, COGS: cogs, UnitsSold: units}, nil
}

// InventoryValuation reports closing inventory value as of a point in time,
// replayed from signed transaction costs rather than the product head state,
// so historic dates value correctly.
func (s *Service) InventoryValuation(ctx context.Context, companyID int64, asOf time.Time) (ValuationReport, error) {
	if companyID == 0 {
		return ValuationReport{}, fmt.Errorf("accounting: company required")
	}
	lines, err := s.repo.ValuationAsOf(ctx, companyID, asOf)
	if err != nil {
		return ValuationReport{}, err
	}
	report := ValuationReport{CompanyID: companyID, AsOf: asOf, Lines: lines}
	for _, line := range lines {
		report.Total = report.Total.Add(line.Value)
	}
	return report, nil
}
