package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("SETTLE_TEST_VALUE", "   ")
	assert.Equal(t, "fallback", Get("SETTLE_TEST_VALUE", "fallback"))

	t.Setenv("SETTLE_TEST_VALUE", " console ")
	assert.Equal(t, "console", Get("SETTLE_TEST_VALUE", "json"))
}

func TestFirstPicksEarliestKey(t *testing.T) {
	t.Setenv("SETTLE_TEST_A", "")
	t.Setenv("SETTLE_TEST_B", "web.1")
	t.Setenv("SETTLE_TEST_C", "web.2")

	val, ok := First("SETTLE_TEST_A", "SETTLE_TEST_B", "SETTLE_TEST_C")
	assert.True(t, ok)
	assert.Equal(t, "web.1", val)

	_, ok = First("SETTLE_TEST_A")
	assert.False(t, ok)
}
