package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMoved(t *testing.T) {
	before := testutil.ToFloat64(MovedAmount.WithLabelValues("credit"))
	Moved("credit", decimal.RequireFromString("2.5"))
	Moved("credit", decimal.NewFromInt(3))
	assert.InDelta(t, before+5.5, testutil.ToFloat64(MovedAmount.WithLabelValues("credit")), 1e-9)
}

func TestCounters(t *testing.T) {
	c := AwardsTotal.WithLabelValues("DAILY_LOGIN", "granted")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
