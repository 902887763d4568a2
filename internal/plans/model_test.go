package plans

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPlanValidate(t *testing.T) {
	expert := uuid.New()

	tests := []struct {
		name    string
		plan    Plan
		wantErr error
	}{
		{
			name: "valid single one-to-one",
			plan: Plan{ExpertID: expert, Kind: KindSingle, SessionFormat: FormatOneToOne, DurationMinutes: 30, PriceCents: 5000},
		},
		{
			name: "valid monthly",
			plan: Plan{ExpertID: expert, Kind: KindMonthly, SessionsPerMonth: 8, PriceCents: 40000},
		},
		{
			name:    "single missing format",
			plan:    Plan{ExpertID: expert, Kind: KindSingle, DurationMinutes: 30, PriceCents: 5000},
			wantErr: ErrMissingSessionFormat,
		},
		{
			name:    "single missing duration",
			plan:    Plan{ExpertID: expert, Kind: KindSingle, SessionFormat: FormatOneToOne, PriceCents: 5000},
			wantErr: ErrInvalidDuration,
		},
		{
			name:    "monthly zero sessions",
			plan:    Plan{ExpertID: expert, Kind: KindMonthly, PriceCents: 40000},
			wantErr: ErrInvalidSessionsPerMonth,
		},
		{
			name:    "missing price",
			plan:    Plan{ExpertID: expert, Kind: KindMonthly, SessionsPerMonth: 4},
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "unknown kind",
			plan:    Plan{ExpertID: expert, Kind: "weekly", PriceCents: 100},
			wantErr: ErrInvalidKind,
		},
		{
			name:    "missing expert",
			plan:    Plan{Kind: KindMonthly, SessionsPerMonth: 4, PriceCents: 100},
			wantErr: ErrMissingExpert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
