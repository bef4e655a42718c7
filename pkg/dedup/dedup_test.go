package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess(t *testing.T) {
	d := New(time.Minute, 100)

	assert.True(t, d.ShouldProcess("a"))
	assert.False(t, d.ShouldProcess("a"), "second delivery inside TTL must be dropped")
	assert.True(t, d.ShouldProcess("b"))

	// empty ids are never deduplicated
	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))
}

func TestExpiry(t *testing.T) {
	d := New(10*time.Millisecond, 100)

	assert.True(t, d.ShouldProcess("x"))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, d.ShouldProcess("x"), "expired id is processed again")
}

func TestCapSweep(t *testing.T) {
	d := New(5*time.Millisecond, 4)

	for _, id := range []string{"a", "b", "c", "d"} {
		assert.True(t, d.ShouldProcess(id))
	}
	time.Sleep(10 * time.Millisecond)
	// pushing past the cap sweeps the expired entries
	assert.True(t, d.ShouldProcess("e"))
	assert.LessOrEqual(t, d.Len(), 4)
}
