package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/liqoracle/internal/analyzer"
	"github.com/rewired-gh/liqoracle/internal/models"
)

const fixture = `
pool_id: eth-usdc
tick_spacing: 10
observations:
  - block: 1
    current_tick: 0
    start_tick: -20
    end_tick: 20
    liquidity: ["1000", "2500", "4000", "2500", "1000"]
  - block: 2
    current_tick: 5
    start_tick: -20
    end_tick: 20
    liquidity: ["1200", "2400", "3900", "2600", "900"]
  - block: 3
    current_tick: 10
    start_tick: -20
    end_tick: 20
    liquidity: ["1500", "2000", "3500", "3000", "1300"]
  - block: 4
    current_tick: 10
    start_tick: -30
    end_tick: 30
    liquidity: ["10", "1500", "2000", "3500", "3000", "1300", "10"]
  - block: 5
    current_tick: 10
    start_tick: -30
    end_tick: 30
    liquidity: ["0", "0", "0", "0", "0", "0", "0"]
`

func TestLoad(t *testing.T) {
	obs, err := Load(strings.NewReader(fixture))
	require.NoError(t, err)
	require.Len(t, obs, 5)

	assert.Equal(t, "eth-usdc", obs[0].PoolID)
	assert.Equal(t, int64(2), obs[1].BlockNumber)
	assert.Equal(t, int64(5), obs[1].CurrentTick)
	require.Len(t, obs[3].Distribution, 7)
	assert.Equal(t, int64(-30), obs[3].Distribution[0].Tick)
	assert.Equal(t, "3500", obs[3].Distribution[3].Liquidity.String())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing pool", "tick_spacing: 10\nobservations: []\n"},
		{"unknown field", "pool_id: p\ntick_spacing: 10\nextra: 1\n"},
		{"bad liquidity", "pool_id: p\ntick_spacing: 10\nobservations:\n  - {block: 1, start_tick: 0, end_tick: 10, liquidity: [\"1\", \"one\"]}\n"},
		{"range mismatch", "pool_id: p\ntick_spacing: 10\nobservations:\n  - {block: 1, start_tick: 0, end_tick: 50, liquidity: [\"1\", \"2\"]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestRun(t *testing.T) {
	obs, err := Load(strings.NewReader(fixture))
	require.NoError(t, err)

	cfg := analyzer.DefaultConfig()
	cfg.MaxWindowSize = 3
	cfg.HalfWidth = 20

	var buf bytes.Buffer
	require.NoError(t, Run(cfg, obs, &buf))

	var lines []Line
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var l Line
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.Len(t, lines, 5)

	require.NotNil(t, lines[0].Result)
	assert.Equal(t, "-1", lines[0].Result.Transition.String())

	require.NotNil(t, lines[2].Result)
	assert.False(t, lines[2].Result.Volatility.IsZero(), "window full at the third block")

	assert.True(t, lines[3].Reset)
	require.NotNil(t, lines[3].Result)
	assert.Equal(t, "-1", lines[3].Result.Transition.String())

	assert.Nil(t, lines[4].Result)
	assert.NotEmpty(t, lines[4].Error)
	assert.False(t, lines[4].Reset)
}

func TestRun_Deterministic(t *testing.T) {
	obs, err := Load(strings.NewReader(fixture))
	require.NoError(t, err)

	var a, b bytes.Buffer
	require.NoError(t, Run(analyzer.DefaultConfig(), obs, &a))
	require.NoError(t, Run(analyzer.DefaultConfig(), obs, &b))
	assert.Equal(t, a.String(), b.String())
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := analyzer.DefaultConfig()
	cfg.MaxWindowSize = 0
	assert.Error(t, Run(cfg, []models.Observation{}, &bytes.Buffer{}))
}
