package service

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	fullRefund = decimal.NewFromInt(1)
	halfRefund = decimal.New(5, -1)
)

// RefundFraction computes the fraction of the charged credits returned on
// withdrawal. Withdrawing within the refund window (in whole days since
// enrollment, floor) yields a full refund; anything later yields half.
// The flat 50% late fraction is deliberate; it mirrors the published
// policy and is not tiered by how late the withdrawal is.
func RefundFraction(enrolledAt, now time.Time, refundWindowDays int) decimal.Decimal {
	days := int(now.Sub(enrolledAt).Hours() / 24)
	if days <= refundWindowDays {
		return fullRefund
	}
	return halfRefund
}
