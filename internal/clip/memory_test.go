package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/csync/internal/frame"
)

func TestMemoryWriteIsWatched(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	require.NoError(t, m.Write(Item{Kind: frame.KindText, Data: []byte("hi")}))

	it := <-m.Watch()
	assert.Equal(t, frame.KindText, it.Kind)
	assert.Equal(t, []byte("hi"), it.Data)

	got, err := m.Read(frame.KindText)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)
	assert.Len(t, m.Writes(), 1)
}

func TestMemoryCopyIsNotAWrite(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	m.Copy(frame.KindImage, []byte{1, 2})
	it := <-m.Watch()
	assert.Equal(t, frame.KindImage, it.Kind)
	assert.Empty(t, m.Writes())
}

func TestMemoryRejectsUnknownKind(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	assert.Error(t, m.Write(Item{Kind: frame.Kind(7)}))
}

func TestMemoryCloseEndsWatch(t *testing.T) {
	m := NewMemory()
	m.Close()
	m.Close()
	_, ok := <-m.Watch()
	assert.False(t, ok)

	m.Copy(frame.KindText, []byte("late"))
	got, err := m.Read(frame.KindText)
	require.NoError(t, err)
	assert.Nil(t, got)
}

var _ Backend = (*Memory)(nil)
