package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobin(t *testing.T) {
	m := newRoundRobinManager()
	require.NoError(t, m.Init([]string{"a:1", "b:2", "c:3"}))

	assert.Equal(t, "a:1", m.GetNext())
	assert.Equal(t, "b:2", m.GetNext())
	assert.Equal(t, "c:3", m.GetNext())
	assert.Equal(t, "a:1", m.GetNext())
}

func TestRoundRobin_OnConnectionResetsRotation(t *testing.T) {
	m := newRoundRobinManager()
	require.NoError(t, m.Init([]string{"a:1", "b:2", "c:3"}))

	assert.Equal(t, "a:1", m.GetNext())
	assert.Equal(t, "b:2", m.GetNext())
	m.OnConnection()
	assert.Equal(t, "a:1", m.GetNext())
}

func TestRoundRobin_MasterHintConsumedOnce(t *testing.T) {
	m := newRoundRobinManager()
	require.NoError(t, m.Init([]string{"a:1", "b:2"}))

	m.SetMaster("master:9")
	assert.Equal(t, "master:9", m.GetNext())
	// The hint is gone: the rotation continues where it left off.
	assert.Equal(t, "a:1", m.GetNext())
	assert.Equal(t, "b:2", m.GetNext())
}

func TestRoundRobin_InitRejectsEmptyList(t *testing.T) {
	m := newRoundRobinManager()
	assert.Error(t, m.Init(nil))
}
