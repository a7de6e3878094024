package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testPool = "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"
)

func newTestCampaign(t *testing.T, baseline float64) (*Campaign, time.Time) {
	t.Helper()
	ref, err := ParseInstrument(testMint, testPool)
	require.NoError(t, err)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return New("c1", ref, baseline, baseline*150, start), start
}

func apply(c *Campaign, price, priceUSD float64, ts time.Time) bool {
	_, ok := c.ApplyTick(price, priceUSD, ts)
	return ok
}

func TestParseInstrument(t *testing.T) {
	ref, err := ParseInstrument(" "+testMint+" ", testPool)
	require.NoError(t, err)
	assert.Equal(t, testMint, ref.Mint)
	assert.Equal(t, testMint+"@"+testPool, ref.Key())
	assert.Equal(t, "EPjF...Dt1v@58oQ...YQo2", ref.String())

	noPool, err := ParseInstrument(testMint, "")
	require.NoError(t, err)
	assert.Equal(t, testMint, noPool.Key())

	_, err = ParseInstrument("", testPool)
	assert.Error(t, err)
	_, err = ParseInstrument("not-a-key", "")
	assert.Error(t, err)
	_, err = ParseInstrument(testMint, "0OIl")
	assert.Error(t, err)
}

func TestApplyTickScenario(t *testing.T) {
	c, start := newTestCampaign(t, 1.0)

	require.True(t, apply(c, 1.5, 225, start.Add(time.Second)))
	assert.InDelta(t, 50.0, c.ChangePercent, 1e-9)
	assert.InDelta(t, 50.0, c.HighestGainPercent, 1e-9)
	assert.Equal(t, 1.5, c.High)
	assert.Equal(t, 1.0, c.Low)

	stats, ok := c.ApplyTick(1.2, 180, start.Add(2*time.Second))
	require.True(t, ok)
	assert.Equal(t, c.Stats, stats)
	assert.Equal(t, 1.5, c.High)
	assert.Equal(t, 1.0, c.Low)
	assert.InDelta(t, 20.0, c.ChangePercent, 1e-9)
	assert.InDelta(t, 50.0, c.HighestGainPercent, 1e-9, "gain extremum never contracts")
	assert.Equal(t, 0.0, c.LowestDropPercent)
	assert.Equal(t, uint64(2), c.Ticks)
}

func TestApplyTickExtremaMonotonic(t *testing.T) {
	c, start := newTestCampaign(t, 2.0)
	prices := []float64{2.1, 1.7, 2.6, 1.2, 1.9, 3.0, 0.9, 2.0}

	prevHigh, prevLow := c.High, c.Low
	for i, p := range prices {
		require.True(t, apply(c, p, p*100, start.Add(time.Duration(i+1)*time.Second)))
		assert.GreaterOrEqual(t, c.High, prevHigh)
		assert.LessOrEqual(t, c.Low, prevLow)
		assert.LessOrEqual(t, c.Low, c.CurrentPrice)
		assert.GreaterOrEqual(t, c.High, c.CurrentPrice)
		assert.GreaterOrEqual(t, c.HighestGainPercent, 0.0)
		assert.LessOrEqual(t, c.LowestDropPercent, 0.0)
		prevHigh, prevLow = c.High, c.Low
	}
	assert.Equal(t, 3.0, c.High)
	assert.Equal(t, 0.9, c.Low)
	assert.Equal(t, 300.0, c.HighUSD)
	assert.Equal(t, 90.0, c.LowUSD)
	assert.InDelta(t, 50.0, c.HighestGainPercent, 1e-9)
	assert.InDelta(t, -55.0, c.LowestDropPercent, 1e-9)
}

func TestApplyTickRejectsStaleAndInvalid(t *testing.T) {
	c, start := newTestCampaign(t, 1.0)
	require.True(t, apply(c, 1.1, 0, start.Add(10*time.Second)))

	before := c.Snapshot()
	assert.False(t, apply(c, 5.0, 5, start.Add(5*time.Second)), "older tick is rejected")
	assert.False(t, apply(c, 0, 5, start.Add(11*time.Second)))
	assert.False(t, apply(c, -1, 5, start.Add(11*time.Second)))
	assert.Equal(t, before, c.Snapshot())

	// same timestamp is accepted: feeds with coarse clocks emit several ticks per instant
	assert.True(t, apply(c, 1.2, 0, start.Add(10*time.Second)))
	assert.Equal(t, 1.2, c.CurrentPrice)
}

func TestApplyTickUnknownUSDKeepsPrevious(t *testing.T) {
	c, start := newTestCampaign(t, 1.0)
	require.True(t, apply(c, 1.3, 0, start.Add(time.Second)))
	assert.Equal(t, 150.0, c.CurrentPriceUSD)
	assert.Equal(t, 1.3, c.CurrentPrice)
}

func TestResetBaseline(t *testing.T) {
	c, start := newTestCampaign(t, 1.0)
	require.True(t, apply(c, 1.8, 270, start.Add(time.Second)))
	require.True(t, apply(c, 1.6, 240, start.Add(2*time.Second)))

	c.ResetBaseline()
	assert.Equal(t, 1.6, c.BaselinePrice)
	assert.Equal(t, 240.0, c.BaselinePriceUSD)
	assert.Equal(t, 1.6, c.High)
	assert.Equal(t, 1.6, c.Low)
	assert.Zero(t, c.ChangePercent)
	assert.Zero(t, c.HighestGainPercent)
	assert.Zero(t, c.LowestDropPercent)

	require.True(t, apply(c, 1.2, 180, start.Add(3*time.Second)))
	assert.InDelta(t, -25.0, c.ChangePercent, 1e-9)
	assert.InDelta(t, -25.0, c.LowestDropPercent, 1e-9)
}

func TestStop(t *testing.T) {
	c, _ := newTestCampaign(t, 1.0)
	assert.True(t, c.Active())
	c.Stop()
	assert.False(t, c.Active())
	assert.Equal(t, StatusStopped, c.Status)
}
