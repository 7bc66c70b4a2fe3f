package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("key", []string{"a", "b"})
	val, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, val)
}

func TestExpiry(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Set("key", "value")

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("key")
	assert.False(t, ok)

	// Setting a new entry sweeps the expired one
	c.Set("other", "value")
	assert.Equal(t, 1, c.Len())
}

func TestOverwrite(t *testing.T) {
	c := New(time.Minute)
	c.Set("key", "first")
	c.Set("key", "second")

	val, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "second", val)
	assert.Equal(t, 1, c.Len())
}
