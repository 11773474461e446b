package messager

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs706/saber/pkg/saber"
)

func TestSendThenRead(t *testing.T) {
	a, b := net.Pipe()
	sender := New(a)
	receiver := New(b)

	sent := []*saber.Message{
		{Type: saber.MTConnect, Data: []byte("one")},
		{Type: saber.MTCreate, Data: []byte("two"), ExtraData: []byte("/root")},
		{Type: saber.MTPing},
	}

	go func() {
		for _, m := range sent {
			_ = sender.Send(m)
		}
		_ = sender.Close()
	}()

	var got []*saber.Message
	err := receiver.ReadLoop(func(m *saber.Message) bool {
		got = append(got, m)
		return true
	})
	require.NoError(t, err)

	require.Len(t, got, len(sent))
	for i := range sent {
		assert.Equal(t, sent[i].Type, got[i].Type)
		assert.Equal(t, sent[i].Data, got[i].Data)
		assert.Equal(t, sent[i].ExtraData, got[i].ExtraData)
	}
}

func TestSendBatchPreservesOrder(t *testing.T) {
	a, b := net.Pipe()
	sender := New(a)
	receiver := New(b)

	batch := make([]*saber.Message, 20)
	for i := range batch {
		batch[i] = &saber.Message{Type: saber.MTSetData, Data: []byte{byte(i)}}
	}

	go func() {
		_ = sender.SendBatch(batch)
		_ = sender.Close()
	}()

	i := 0
	err := receiver.ReadLoop(func(m *saber.Message) bool {
		assert.Equal(t, []byte{byte(i)}, m.Data)
		i++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, len(batch), i)
}

func TestReadLoopStopsWhenHandlerDeclines(t *testing.T) {
	a, b := net.Pipe()
	sender := New(a)
	receiver := New(b)

	go func() {
		_ = sender.Send(&saber.Message{Type: saber.MTPing})
		_ = sender.Send(&saber.Message{Type: saber.MTPing})
	}()

	count := 0
	err := receiver.ReadLoop(func(m *saber.Message) bool {
		count++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	_ = sender.Close()
	_ = receiver.Close()
}
