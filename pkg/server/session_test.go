package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_CreateAssignsUniqueIDsAndClampsTimeout(t *testing.T) {
	r := NewSessionRegistry(4000, 40000)

	seen := map[uint64]bool{}
	for i := 0; i < 50; i++ {
		s := r.Create(10000, "conn")
		assert.False(t, seen[s.ID])
		seen[s.ID] = true
		assert.Equal(t, uint32(10000), s.TimeoutMs)
	}
	assert.Equal(t, 50, r.Count())

	low := r.Create(1, "conn")
	assert.Equal(t, uint32(4000), low.TimeoutMs)
	high := r.Create(999999, "conn")
	assert.Equal(t, uint32(40000), high.TimeoutMs)
}

func TestSessionRegistry_Expiry(t *testing.T) {
	r := NewSessionRegistry(100, 1000)
	s := r.Create(100, "conn")

	assert.Empty(t, r.Expired(time.Now()))

	expired := r.Expired(time.Now().Add(500 * time.Millisecond))
	require.Len(t, expired, 1)
	assert.Equal(t, s.ID, expired[0].ID)

	// Touching pushes the deadline out.
	s.Touch(time.Now().Add(time.Second))
	assert.Empty(t, r.Expired(time.Now().Add(time.Second)))

	r.Remove(s.ID)
	assert.Zero(t, r.Count())
}

func TestSession_MarkExpiringIsOneShot(t *testing.T) {
	r := NewSessionRegistry(100, 1000)
	s := r.Create(100, "conn")
	assert.True(t, s.markExpiring())
	assert.False(t, s.markExpiring())
}
