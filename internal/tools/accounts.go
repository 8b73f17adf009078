package tools

import (
	"math"
	"strings"
)

// rewardMultipliers weight reward points by spending category. Categories
// not listed earn the base rate.
var rewardMultipliers = map[string]float64{
	"travel":    1.5,
	"dining":    1.25,
	"retail":    1.0,
	"gas":       1.0,
	"groceries": 1.0,
	"other":     0.5,
}

// minimumPaymentFloor is the smallest minimum payment charged.
const minimumPaymentFloor = 25.0

// RewardsValue is what a points balance is worth.
type RewardsValue struct {
	Points     int     `json:"points"`
	Category   string  `json:"category"`
	Multiplier float64 `json:"multiplier"`
	// CashValue is also the statement credit value.
	CashValue float64 `json:"cash_value"`
	Travel    float64 `json:"travel"`
	GiftCards float64 `json:"gift_cards"`
}

// Rewards values points redeemed in category. 100 points are worth $1
// before the category multiplier.
func Rewards(points int, category string) RewardsValue {
	multiplier, ok := rewardMultipliers[strings.ToLower(category)]
	if !ok {
		multiplier = 1.0
	}
	value := float64(points) * multiplier / 100
	return RewardsValue{
		Points:     points,
		Category:   category,
		Multiplier: multiplier,
		CashValue:  cents(value),
		Travel:     cents(value * 1.5),
		GiftCards:  cents(value * 0.9),
	}
}

// InterestCharge is simple daily interest on a balance.
type InterestCharge struct {
	Balance float64 `json:"balance"`
	APR     float64 `json:"apr"`
	Days    int     `json:"days"`
	// DailyRate is a percentage.
	DailyRate float64 `json:"daily_rate"`
	Interest  float64 `json:"interest_charge"`
	Total     float64 `json:"total_balance"`
}

// Interest charges balance at apr (0.18 for 18%) for days.
func Interest(balance, apr float64, days int) InterestCharge {
	daily := apr / 365
	interest := balance * daily * float64(days)
	return InterestCharge{
		Balance:   balance,
		APR:       apr,
		Days:      days,
		DailyRate: roundTo(daily*100, 4),
		Interest:  cents(interest),
		Total:     cents(balance + interest),
	}
}

// MinimumPayment is the smallest payment due for a statement.
type MinimumPayment struct {
	Balance         float64 `json:"balance"`
	APR             float64 `json:"apr"`
	MonthlyInterest float64 `json:"monthly_interest"`
	Payment         float64 `json:"minimum_payment"`
	// PercentOfBalance is zero for a zero balance.
	PercentOfBalance float64 `json:"percentage_of_balance"`
}

// MinimumPaymentDue is 1% of the balance plus a month's interest, and
// never less than $25.
func MinimumPaymentDue(balance, apr float64) MinimumPayment {
	monthly := balance * apr / 12
	payment := max(balance*0.01+monthly, minimumPaymentFloor)
	mp := MinimumPayment{
		Balance:         balance,
		APR:             apr,
		MonthlyInterest: cents(monthly),
		Payment:         cents(payment),
	}
	if balance > 0 {
		mp.PercentOfBalance = cents(payment / balance * 100)
	}
	return mp
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
