package tools

import (
	"math"
	"slices"
	"strings"
	"time"
)

// Transaction is one card transaction.
type Transaction struct {
	ID       string    `json:"transaction_id"`
	Merchant string    `json:"merchant"`
	Amount   float64   `json:"amount"`
	Category string    `json:"category"`
	Location string    `json:"location"`
	Date     time.Time `json:"date"`
}

// Risk levels and the action recommended for each.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"

	ActionApprove        = "approve"
	ActionFlagForReview  = "flag_for_review"
	ActionBlockAndReview = "block_and_review"
)

// HighRiskScore is the score at and above which a transaction is blocked
// and sent to a person.
const HighRiskScore = 70

// highVelocity is the number of recent transactions above which the
// account counts as unusually active.
const highVelocity = 10

var suspiciousMerchants = []string{"Unknown Merchant", "International Merchant"}

// RiskAssessment is the fraud score of a single transaction.
type RiskAssessment struct {
	Score      int      `json:"risk_score"`
	Level      string   `json:"risk_level"`
	Flags      []string `json:"flags"`
	Action     string   `json:"recommended_action"`
	Confidence float64  `json:"confidence"`
}

// ScoreRisk rates txn from 0 to 100 using its amount, merchant and location
// and the number of recent transactions on the account.
func ScoreRisk(txn Transaction, recent []Transaction) RiskAssessment {
	score := 0
	flags := []string{}

	switch {
	case txn.Amount > 1000:
		score += 30
		flags = append(flags, "high_amount")
	case txn.Amount > 500:
		score += 15
		flags = append(flags, "medium_amount")
	}

	if slices.ContainsFunc(suspiciousMerchants, func(m string) bool { return strings.Contains(txn.Merchant, m) }) {
		score += 25
		flags = append(flags, "suspicious_merchant")
	}

	if txn.Location == "" || strings.Contains(txn.Location, "International") {
		score += 20
		flags = append(flags, "unusual_location")
	}

	if len(recent) > highVelocity {
		score += 15
		flags = append(flags, "high_velocity")
	}

	score = min(score, 100)
	a := RiskAssessment{Score: score, Flags: flags, Confidence: float64(100 - score)}
	switch {
	case score >= HighRiskScore:
		a.Level, a.Action = RiskHigh, ActionBlockAndReview
	case score >= 40:
		a.Level, a.Action = RiskMedium, ActionFlagForReview
	default:
		a.Level, a.Action = RiskLow, ActionApprove
	}
	return a
}

// Anomaly is a transaction far above the account's average.
type Anomaly struct {
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Average       float64 `json:"average"`
}

// PatternReport summarises an account's spending.
type PatternReport struct {
	Transactions int                `json:"total_transactions"`
	Spending     float64            `json:"total_spending"`
	Average      float64            `json:"average_transaction"`
	Categories   map[string]float64 `json:"category_breakdown"`
	Anomalies    []Anomaly          `json:"anomalies"`
}

// AnalyzePatterns totals spending by category and flags transactions more
// than three times the average amount. Amounts are rounded to cents.
func AnalyzePatterns(txns []Transaction) PatternReport {
	report := PatternReport{Categories: map[string]float64{}, Anomalies: []Anomaly{}}
	if len(txns) == 0 {
		return report
	}

	for _, t := range txns {
		category := t.Category
		if category == "" {
			category = "other"
		}
		report.Categories[category] += t.Amount
		report.Spending += t.Amount
	}
	avg := report.Spending / float64(len(txns))
	for _, t := range txns {
		if t.Amount > 3*avg {
			report.Anomalies = append(report.Anomalies, Anomaly{TransactionID: t.ID, Amount: t.Amount, Average: cents(avg)})
		}
	}

	report.Transactions = len(txns)
	report.Spending = cents(report.Spending)
	report.Average = cents(avg)
	for k, v := range report.Categories {
		report.Categories[k] = cents(v)
	}
	return report
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
