package segment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-sentinel/internal/txn"
	"payment-sentinel/internal/window"
)

func TestAmountBucket(t *testing.T) {
	cases := map[string]string{
		"50":      "<100",
		"99.99":   "<100",
		"100":     "100-1000",
		"999.99":  "100-1000",
		"1000":    "1000-5000",
		"4999.99": "1000-5000",
		"5000":    ">5000",
		"7842.50": ">5000",
	}
	for amount, want := range cases {
		d, err := decimal.NewFromString(amount)
		require.NoError(t, err)
		assert.Equal(t, want, AmountBucket(d), "amount %s", amount)
	}
}

func testWindow() window.Window {
	return window.Of(time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC), 30*time.Minute)
}

func failedTxn(id, cp, instrument string, amount float64, minute int) txn.Transaction {
	return txn.Transaction{
		ID:             id,
		Timestamp:      time.Date(2026, 8, 24, 14, minute, 0, 0, time.UTC),
		Counterparty:   cp,
		InstrumentType: instrument,
		Amount:         decimal.NewFromFloat(amount),
		Outcome:        txn.OutcomeFailed,
		FailureCode:    "GATEWAY_TIMEOUT",
	}
}

func successTxn(id, cp, instrument string, amount float64, minute int) txn.Transaction {
	t := failedTxn(id, cp, instrument, amount, minute)
	t.Outcome = txn.OutcomeSuccess
	t.FailureCode = ""
	return t
}

func TestAggregateDropsSmallClusters(t *testing.T) {
	w := testWindow()
	var transactions []txn.Transaction
	for i := 0; i < 3; i++ {
		transactions = append(transactions, failedTxn(string(rune('a'+i)), "HDFC", "credit_card", 6000, 5))
	}

	clusters := NewAggregator(10).Aggregate(transactions, w)
	assert.Empty(t, clusters, "clusters below the minimum size are noise")

	clusters = NewAggregator(3).Aggregate(transactions, w)
	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].Count)
}

func TestAggregateFailureRateDenominatorIncludesSuccesses(t *testing.T) {
	w := testWindow()
	var transactions []txn.Transaction
	for i := 0; i < 2; i++ {
		transactions = append(transactions, failedTxn(string(rune('a'+i)), "HDFC", "credit_card", 6000, 5))
	}
	for i := 0; i < 8; i++ {
		transactions = append(transactions, successTxn(string(rune('m'+i)), "HDFC", "credit_card", 6000, 10))
	}

	clusters := NewAggregator(1).Aggregate(transactions, w)
	require.Len(t, clusters, 1)
	c := clusters[0]
	assert.Equal(t, 2, c.Count, "count covers failures only")
	assert.InDelta(t, 0.2, c.FailureRate, 1e-9, "rate is failures over all traffic in the segment")
	assert.True(t, c.AvgAmount.Equal(decimal.NewFromInt(6000)))
	assert.Equal(t, []string{"GATEWAY_TIMEOUT"}, c.ErrorCodes)
}

func TestAggregateIsDeterministic(t *testing.T) {
	w := testWindow()
	transactions := []txn.Transaction{
		failedTxn("a", "SBI", "upi", 50, 5),
		failedTxn("b", "HDFC", "credit_card", 6000, 6),
		failedTxn("c", "HDFC", "debit_card", 300, 7),
	}

	agg := NewAggregator(1)
	first := agg.Aggregate(transactions, w)
	second := agg.Aggregate(transactions, w)
	require.Equal(t, first, second, "replaying the same batch must yield the same clusters")

	require.Len(t, first, 3)
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].Key.String(), first[i].Key.String(), "output is key-ordered")
	}
}

func TestAggregateIgnoresOutOfWindowTransactions(t *testing.T) {
	w := testWindow()
	outside := failedTxn("x", "HDFC", "credit_card", 6000, 5)
	outside.Timestamp = w.End.Add(time.Minute)

	clusters := NewAggregator(1).Aggregate([]txn.Transaction{outside}, w)
	assert.Empty(t, clusters)
}

func TestRankByImpact(t *testing.T) {
	w := testWindow()
	mk := func(cp string, count int, avg float64) FailureCluster {
		return FailureCluster{
			Key:         Key{Counterparty: cp, InstrumentType: "credit_card", AmountBucket: ">5000", WindowStart: w.Start},
			Count:       count,
			AvgAmount:   decimal.NewFromFloat(avg),
			WindowStart: w.Start,
			WindowEnd:   w.End,
		}
	}

	clusters := []FailureCluster{mk("SMALL", 5, 100), mk("BIG", 50, 7842.50), mk("MID", 20, 500)}
	ranked := RankByImpact(clusters, 2)

	require.Len(t, ranked, 2)
	assert.Equal(t, "BIG", ranked[0].Key.Counterparty)
	assert.Equal(t, "MID", ranked[1].Key.Counterparty)
	assert.Len(t, clusters, 3, "input must not be truncated")
}

func TestCounterpartyRates(t *testing.T) {
	w := testWindow()
	transactions := []txn.Transaction{
		failedTxn("a", "HDFC", "credit_card", 6000, 5),
		failedTxn("b", "HDFC", "upi", 50, 6),
		successTxn("c", "HDFC", "credit_card", 200, 7),
		successTxn("d", "SBI", "upi", 80, 8),
	}

	rates := CounterpartyRates(transactions, w)
	assert.InDelta(t, 2.0/3.0, rates["HDFC"], 1e-9)
	assert.InDelta(t, 0.0, rates["SBI"], 1e-9)
}
