package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBalance(t *testing.T) {
	t.Run("nil balance returns zero", func(t *testing.T) {
		assert.Equal(t, "0", FormatBalance(nil, 18))
	})

	t.Run("zero balance", func(t *testing.T) {
		assert.Equal(t, "0.000000", FormatBalance(big.NewInt(0), 18))
	})

	t.Run("1 ETH (18 decimals)", func(t *testing.T) {
		oneEth, _ := new(big.Int).SetString("1000000000000000000", 10)
		assert.Equal(t, "1.000000", FormatBalance(oneEth, 18))
	})

	t.Run("very small balance", func(t *testing.T) {
		assert.Equal(t, "0.000000", FormatBalance(big.NewInt(1), 18))
	})

	t.Run("6 decimals (USDC)", func(t *testing.T) {
		assert.Equal(t, "100.000000", FormatBalance(big.NewInt(100000000), 6))
	})

	t.Run("0 decimals", func(t *testing.T) {
		assert.Equal(t, "12345", FormatBalance(big.NewInt(12345), 0))
	})
}

func TestParseEther(t *testing.T) {
	t.Run("whole ether", func(t *testing.T) {
		wei, ok := ParseEther("1")
		require.True(t, ok)
		assert.Equal(t, "1000000000000000000", wei.String())
	})

	t.Run("fractional ether", func(t *testing.T) {
		wei, ok := ParseEther("0.25")
		require.True(t, ok)
		assert.Equal(t, "250000000000000000", wei.String())
	})

	t.Run("zero", func(t *testing.T) {
		wei, ok := ParseEther("0")
		require.True(t, ok)
		assert.Equal(t, int64(0), wei.Int64())
	})

	t.Run("rejects negative and garbage", func(t *testing.T) {
		_, ok := ParseEther("-1")
		assert.False(t, ok)
		_, ok = ParseEther("abc")
		assert.False(t, ok)
	})
}
