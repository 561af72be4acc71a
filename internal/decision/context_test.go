package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWithPositionFullMapping(t *testing.T) {
	cases := []struct {
		name     string
		state    PositionState
		raw      Action
		want     Action
		warnings bool
	}{
		{"空仓buy开多", PositionFlat, ActionBuy, ActionOpenLong, false},
		{"空仓sell开空", PositionFlat, ActionSell, ActionOpenShort, false},
		{"持多sell平多", PositionLong, ActionSell, ActionCloseLong, false},
		{"持多buy降级hold", PositionLong, ActionBuy, ActionHold, true},
		{"持空buy平空", PositionShort, ActionBuy, ActionCloseShort, false},
		{"持空sell降级hold", PositionShort, ActionSell, ActionHold, true},
		{"空仓hold", PositionFlat, ActionHold, ActionHold, false},
		{"持多hold", PositionLong, ActionHold, ActionHold, false},
		{"持空hold", PositionShort, ActionHold, ActionHold, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, warnings, err := resolveWithPosition(tc.raw, PositionContext{State: tc.state})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			if tc.warnings {
				assert.NotEmpty(t, warnings, "降级动作必须带告警")
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}

func TestResolveWithPositionEmptyStateTreatedAsFlat(t *testing.T) {
	got, _, err := resolveWithPosition(ActionSell, PositionContext{})
	require.NoError(t, err)
	assert.Equal(t, ActionOpenShort, got, "空仓 sell 是开空，不是平仓")
}

func TestResolveWithPositionRejectsUnknownAction(t *testing.T) {
	_, _, err := resolveWithPosition(Action("short"), PositionContext{State: PositionFlat})
	assert.ErrorIs(t, err, ErrPositionContextMismatch)
}
