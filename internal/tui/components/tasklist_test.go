package components

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskListKeepsFirstSeenOrder(t *testing.T) {
	t.Parallel()

	list := NewTaskList("a", "b")
	list = list.Set("c", "prepared")
	list = list.Set("a", "applied: successful")
	list = list.Set("", "ignored")

	require.Equal(t, 3, list.Len())
	require.Equal(t, []TaskEntry{
		{ID: "a", Message: "applied: successful"},
		{ID: "b"},
		{ID: "c", Message: "prepared"},
	}, list.Entries())
}

func TestTaskListSetDoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	original := NewTaskList("a")
	updated := original.Set("a", "prepared").Set("b", "")

	require.Equal(t, []TaskEntry{{ID: "a"}}, original.Entries())
	require.Equal(t, 2, updated.Len())
}
