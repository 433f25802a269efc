package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRefundFraction(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		enrolledAt time.Time
		windowDays int
		want       string
	}{
		{"same day", now.Add(-2 * time.Hour), 7, "1"},
		{"within window", now.AddDate(0, 0, -3), 7, "1"},
		{"last day of window partial", now.Add(-7*24*time.Hour + time.Hour), 7, "1"},
		{"exactly window days", now.Add(-7 * 24 * time.Hour), 7, "1"},
		{"just past window", now.Add(-8 * 24 * time.Hour), 7, "0.5"},
		{"well past window", now.AddDate(0, 0, -30), 7, "0.5"},
		{"custom window inside", now.AddDate(0, 0, -10), 14, "1"},
		{"custom window outside", now.AddDate(0, 0, -15), 14, "0.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RefundFraction(tc.enrolledAt, now, tc.windowDays)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestRefundFractionAppliedToCharge(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	charged := decimal.RequireFromString("5.00")

	full := charged.Mul(RefundFraction(now.AddDate(0, 0, -2), now, 7)).Round(2)
	assert.True(t, full.Equal(decimal.RequireFromString("5.00")))

	half := charged.Mul(RefundFraction(now.AddDate(0, 0, -10), now, 7)).Round(2)
	assert.True(t, half.Equal(decimal.RequireFromString("2.50")))
}
