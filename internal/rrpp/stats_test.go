package rrpp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamm-events/backend/internal/models"
)

func money(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func promoter() models.RRPP {
	return models.RRPP{ID: uuid.New(), Codigo: "ABC123", Nombre: "Ana", CreatorID: uuid.New()}
}

func TestBuildStatsTotalsAndSplit(t *testing.T) {
	byEvent := []EventRollup{
		{EventID: uuid.New(), EventName: "Fiesta A", Total: 10, Paid: 7, Free: 3, Revenue: money("385.00")},
		{EventID: uuid.New(), EventName: "Fiesta B", Total: 4, Paid: 4, Free: 0, Revenue: money("220.00")},
	}
	s := BuildStats(promoter(), byEvent, nil, 2, 28)

	assert.Equal(t, 14, s.TotalTickets)
	assert.Equal(t, 11, s.PaidTickets)
	assert.Equal(t, 3, s.FreeTickets)
	assert.True(t, s.Revenue.Equal(money("605.00")), "revenue %s", s.Revenue)
	// 14 of 28 confirmed tickets across the organizer's events.
	assert.True(t, s.PercentOfTotal.Equal(money("50.00")), "pct %s", s.PercentOfTotal)
}

func TestBuildStatsAverageCountsZeroSaleEvents(t *testing.T) {
	byEvent := []EventRollup{
		{EventID: uuid.New(), EventName: "Fiesta A", Total: 9, Paid: 6, Free: 3, Revenue: money("330.00")},
	}
	// Assigned to three events, only one with sales: the average divides
	// by 3, not by 1.
	s := BuildStats(promoter(), byEvent, nil, 3, 9)

	assert.True(t, s.AvgPerEvent.Equal(money("3.00")), "avg %s", s.AvgPerEvent)
	assert.True(t, s.AvgPaidPerEvent.Equal(money("2.00")), "avg paid %s", s.AvgPaidPerEvent)
}

func TestBuildStatsNoAssignments(t *testing.T) {
	s := BuildStats(promoter(), nil, nil, 0, 0)
	assert.Equal(t, 0, s.TotalTickets)
	assert.True(t, s.PercentOfTotal.IsZero())
	assert.True(t, s.AvgPerEvent.IsZero())
}

func TestBuildStatsPercentZeroWhenOrganizerHasNoSales(t *testing.T) {
	byEvent := []EventRollup{
		{EventID: uuid.New(), Total: 2, Free: 2, Revenue: decimal.Zero},
	}
	s := BuildStats(promoter(), byEvent, nil, 1, 0)
	require.Equal(t, 2, s.TotalTickets)
	assert.True(t, s.PercentOfTotal.IsZero())
}
