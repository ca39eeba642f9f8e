package source

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRows(t *testing.T) {
	rows := []Row{
		{ID: "1", Values: [][]byte{[]byte("a")}},
		{ID: "2", Values: [][]byte{nil}},
	}
	it := FromRows(rows, nil)
	defer it.Close()

	var ids []string
	for it.Next() {
		ids = append(ids, it.Row().ID)
	}
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.NoError(t, it.Err())
	assert.False(t, it.Next())
}

func TestFromRows_ErrorAfterRows(t *testing.T) {
	boom := errors.New("connection reset")
	it := FromRows([]Row{{ID: "1"}}, boom)

	assert.True(t, it.Next())
	assert.NoError(t, it.Err(), "error is reported only once the scan stops")
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), boom)
}

func TestFromRows_Empty(t *testing.T) {
	it := FromRows(nil, nil)
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}
