package tools

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Ledger reads an account's card transactions.
type Ledger interface {
	// History returns transactions from the last days days, newest first.
	History(ctx context.Context, accountID string, days int) ([]Transaction, error)
	// Transaction returns a single transaction on the account.
	Transaction(ctx context.Context, accountID, transactionID string) (Transaction, error)
}

var (
	sampleMerchants  = []string{"Best Buy", "Amazon", "Starbucks", "Shell Gas", "Walmart", "Target", "Unknown Merchant", "International Merchant"}
	sampleCategories = []string{"electronics", "retail", "dining", "gas", "groceries", "travel"}
	sampleLocations  = []string{"New York, USA", "Los Angeles, USA", "Chicago, USA", "Houston, USA", "International"}
)

// SampleLedger generates plausible transactions for demos and tests. The
// same account and transaction IDs always produce the same data.
type SampleLedger struct {
	// Now anchors transaction dates. Defaults to time.Now.
	Now func() time.Time
}

func (l SampleLedger) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

func seeded(parts ...string) *rand.Rand {
	seed := xxhash.Sum64String(strings.Join(parts, "\x00"))
	return rand.New(rand.NewPCG(seed, seed>>1))
}

// History implements Ledger.
func (l SampleLedger) History(ctx context.Context, accountID string, days int) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days <= 0 {
		return []Transaction{}, nil
	}
	r := seeded("history", accountID)
	now := l.now()
	txns := make([]Transaction, 5+r.IntN(16))
	for i := range txns {
		txns[i] = Transaction{
			ID:       fmt.Sprintf("TXN%06d", 100000+r.IntN(900000)),
			Merchant: sampleMerchants[r.IntN(4)],
			Amount:   cents(5 + r.Float64()*195),
			Category: sampleCategories[r.IntN(len(sampleCategories))],
			Location: sampleLocations[r.IntN(4)],
			Date:     now.Add(-time.Duration(r.IntN(days*24)) * time.Hour),
		}
	}
	slices.SortFunc(txns, func(a, b Transaction) int { return b.Date.Compare(a.Date) })
	return txns, nil
}

// Transaction implements Ledger.
func (l SampleLedger) Transaction(ctx context.Context, accountID, transactionID string) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return Transaction{}, err
	}
	r := seeded("transaction", accountID, transactionID)
	return Transaction{
		ID:       transactionID,
		Merchant: sampleMerchants[r.IntN(len(sampleMerchants))],
		Amount:   cents(10 + r.Float64()*1990),
		Category: sampleCategories[r.IntN(len(sampleCategories))],
		Location: sampleLocations[r.IntN(len(sampleLocations))],
		Date:     l.now().Add(-time.Duration(r.IntN(30*24)) * time.Hour),
	}, nil
}

var transactionIDPattern = regexp.MustCompile(`(?i)\btxn[-_]?[0-9]+\b`)

// TransactionID returns the first transaction reference (TXN123456) in
// text, upper-cased, or "".
func TransactionID(text string) string {
	return strings.ToUpper(transactionIDPattern.FindString(text))
}
