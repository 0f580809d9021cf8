package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRxConfig(t *testing.T) {
	c := DefaultRxConfig()
	assert.Equal(t, 128, c.NumberOfDescriptors)
	assert.Equal(t, 64, c.DefaultDescriptorBufferSize)
	assert.Equal(t, 64*127+MTU, c.BufferSize)
	assert.Equal(t, MTU, c.DescriptorBufferSize(127))
	require.NoError(t, c.Validate())
}

func TestDefaultTxConfig(t *testing.T) {
	c := DefaultTxConfig()
	assert.Equal(t, 64, c.NumberOfDescriptors)
	assert.Equal(t, MTU, c.BufferSize)
	assert.IsType(t, SpinWait{}, c.Wait)
	require.NoError(t, c.Validate())
}

func TestRxConfig_Regions(t *testing.T) {
	configs := []RxConfig{
		DefaultRxConfig(),
		{BufferSize: 100, NumberOfDescriptors: 1, DefaultDescriptorBufferSize: 64},
		{BufferSize: 1000, NumberOfDescriptors: 7, DefaultDescriptorBufferSize: 100},
	}
	for _, c := range configs {
		require.NoError(t, c.Validate())
		sum := 0
		for i := 0; i < c.NumberOfDescriptors; i++ {
			assert.Equal(t, sum, c.DescriptorBufferOffset(i))
			sum += c.DescriptorBufferSize(i)
		}
		assert.Equal(t, c.BufferSize, sum)
	}
}

func TestRxConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      RxConfig
		containsErr string
	}{
		{
			name:        "no descriptors",
			config:      RxConfig{BufferSize: 64, DefaultDescriptorBufferSize: 64},
			containsErr: "rx descriptor count 0 is too small",
		},
		{
			name:        "zero region",
			config:      RxConfig{BufferSize: 64, NumberOfDescriptors: 2},
			containsErr: "rx descriptor buffer size 0 is not within 1 and 8191",
		},
		{
			name:        "region too large",
			config:      RxConfig{BufferSize: 20000, NumberOfDescriptors: 2, DefaultDescriptorBufferSize: 8192},
			containsErr: "rx descriptor buffer size 8192",
		},
		{
			name:        "no room for last",
			config:      RxConfig{BufferSize: 128, NumberOfDescriptors: 3, DefaultDescriptorBufferSize: 64},
			containsErr: "leaves no room for the last descriptor",
		},
		{
			name:        "last too large",
			config:      RxConfig{BufferSize: 64 + 9000, NumberOfDescriptors: 2, DefaultDescriptorBufferSize: 64},
			containsErr: "last rx descriptor buffer of 9000 bytes",
		},
		{
			name:   "valid",
			config: RxConfig{BufferSize: 129, NumberOfDescriptors: 3, DefaultDescriptorBufferSize: 64},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.containsErr != "" {
				assert.ErrorIs(t, err, ErrConfigInvalid)
				assert.ErrorContains(t, err, tt.containsErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTxConfig_Validate(t *testing.T) {
	assert.ErrorContains(t, TxConfig{BufferSize: 64}.Validate(), "tx descriptor count 0")
	assert.ErrorContains(t, TxConfig{NumberOfDescriptors: 1, BufferSize: 9000}.Validate(), "tx buffer size 9000")
	assert.NoError(t, TxConfig{NumberOfDescriptors: 1, BufferSize: 1}.Validate())
}

func TestParseWaitStrategy(t *testing.T) {
	w, err := ParseWaitStrategy("", 0)
	require.NoError(t, err)
	assert.Equal(t, SpinWait{}, w)

	w, err = ParseWaitStrategy("Yield", 0)
	require.NoError(t, err)
	assert.Equal(t, YieldWait{}, w)

	w, err = ParseWaitStrategy("sleep", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, SleepWait{Interval: time.Millisecond, Max: 100 * time.Millisecond}, w)

	_, err = ParseWaitStrategy("nap", 0)
	assert.EqualError(t, err, `unknown wait strategy "nap", possible strategies: [spin yield sleep]`)
}

func TestWaitStrategies(t *testing.T) {
	for _, w := range []WaitStrategy{SpinWait{}, YieldWait{}, SleepWait{Interval: time.Microsecond, Max: time.Millisecond}} {
		polls := 0
		w.Wait(func() bool {
			polls++
			return polls == 5
		})
		assert.Equal(t, 5, polls)
	}
}
