package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueWrapsAround(t *testing.T) {
	rq := NewRingQueue[int](3)
	require.True(t, rq.IsEmpty())

	for i := 1; i <= 3; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, rq.Enqueue(4))
	head, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 2, head)

	var got []int
	for !rq.IsEmpty() {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 3, 4}, got)

	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestInsertDeleteShift(t *testing.T) {
	s := []string{"a", "c"}
	s = Insert(s, 1, "b")
	assert.Equal(t, []string{"a", "b", "c"}, s)
	s = Insert(s, 3, "d")
	assert.Equal(t, []string{"a", "b", "c", "d"}, s)
	s = Insert(s, 0, "_")
	assert.Equal(t, []string{"_", "a", "b", "c", "d"}, s)

	s = Delete(s, 0)
	assert.Equal(t, []string{"a", "b", "c", "d"}, s)
	s = Delete(s, 2)
	assert.Equal(t, []string{"a", "b", "d"}, s)
	s = Delete(s, 2)
	assert.Equal(t, []string{"a", "b"}, s)

	assert.Panics(t, func() { Delete(s, 2) })
	assert.Panics(t, func() { Insert(s, 5, "x") })
}
