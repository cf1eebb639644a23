package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type repoStub struct {
	cogs  decimal.Decimal
	units decimal.Decimal
	lines []ValuationLine
}

func (r *repoStub) CostOfGoodsSold(_ context.Context, _ int64, _, _ time.Time) (decimal.Decimal, decimal.Decimal, error) {
	return r.cogs, r.units, nil
}

func (r *repoStub) ValuationAsOf(_ context.Context, _ int64, _ time.Time) ([]ValuationLine, error) {
	return r.lines, nil
}

func TestCostOfGoodsSold(t *testing.T) {
	svc := NewService(&repoStub{cogs: dec("450"), units: dec("3")}, nil)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	report, err := svc.CostOfGoodsSold(context.Background(), 1, from, to)
	require.NoError(t, err)
	require.True(t, report.COGS.Equal(dec("450")))
	require.True(t, report.UnitsSold.Equal(dec("3")))
}

func TestCostOfGoodsSoldRejectsInvertedPeriod(t *testing.T) {
	svc := NewService(&repoStub{}, nil)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.CostOfGoodsSold(context.Background(), 1, from, to)
	require.Error(t, err)
}

func TestInventoryValuationTotalsLines(t *testing.T) {
	svc := NewService(&repoStub{lines: []ValuationLine{
		{ProductID: 42, SKU: "W-1", OnHand: dec("20"), Value: dec("3000")},
		{ProductID: 43, SKU: "W-2", OnHand: dec("5"), Value: dec("125.50")},
	}}, nil)

	report, err := svc.InventoryValuation(context.Background(), 1, time.Now())
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)
	require.True(t, report.Total.Equal(dec("3125.50")), "got %s", report.Total)
}

func TestValuationRequiresCompany(t *testing.T) {
	svc := NewService(&repoStub{}, nil)
	_, err := svc.InventoryValuation(context.Background(), 0, time.Now())
	require.Error(t, err)
}
