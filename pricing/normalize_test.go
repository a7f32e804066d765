package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDaily(t *testing.T) {
	tests := []struct {
		name      string
		cost      float64
		period    string
		frequency string
		want      float64
	}{
		{"monthly recurring", 300, "monthly", FrequencyRecurring, 10.0},
		{"daily recurring", 7.5, "daily", FrequencyRecurring, 7.5},
		{"yearly recurring", 365, "yearly", FrequencyRecurring, 1.0},
		{"hourly recurring", 0.5, "hourly", FrequencyRecurring, 12.0},
		{"one-time spread over a month", 60, "daily", FrequencyOneTime, 2.0},
		{"one-time ignores period", 60, "yearly", FrequencyOneTime, 2.0},
		{"usage-based passes through", 3.3, "monthly", FrequencyUsageBased, 3.3},
		{"unknown period treated as monthly", 90, "fortnightly", FrequencyRecurring, 3.0},
		{"empty period treated as monthly", 30, "", "", 1.0},
		{"zero cost", 0, "monthly", FrequencyRecurring, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDaily(tt.cost, tt.period, tt.frequency)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
