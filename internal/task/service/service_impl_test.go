package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/tasklane/internal/clock"
	taskdomain "github.com/smallbiznis/tasklane/internal/task/domain"
	"github.com/smallbiznis/tasklane/internal/uow"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	alice = userdomain.CurrentUser{ID: 1, Email: "alice@example.com"}
	bob   = userdomain.CurrentUser{ID: 2, Email: "bob@example.com"}
)

func newTestService(t *testing.T) (taskdomain.Service, *clock.FakeClock) {
	t.Helper()

	fake := clock.NewFakeClock(time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		Log:   zaptest.NewLogger(t),
		UOW:   uow.NewMemory(),
		Clock: fake,
	})
	return svc, fake
}

func TestAddAndListTasks(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	first, err := svc.AddTask(ctx, alice, taskdomain.AddTaskRequest{ID: "task-1", Description: "  buy milk  "})
	require.NoError(t, err)
	assert.Equal(t, "buy milk", first.Description)
	assert.Equal(t, alice.ID, first.OwnerID)

	fake.Advance(time.Minute)
	second, err := svc.AddTask(ctx, alice, taskdomain.AddTaskRequest{Description: "call mom"})
	require.NoError(t, err)
	assert.NotEmpty(t, second.ID)

	_, err = svc.AddTask(ctx, bob, taskdomain.AddTaskRequest{Description: "bob's"})
	require.NoError(t, err)

	tasks, err := svc.ListMyTasks(ctx, alice)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task-1", tasks[0].ID)
	assert.Equal(t, second.ID, tasks[1].ID)

	_, err = svc.AddTask(ctx, bob, taskdomain.AddTaskRequest{ID: "task-1", Description: "clash"})
	assert.ErrorIs(t, err, taskdomain.ErrTaskExists)
}

func TestAddTaskValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddTask(ctx, alice, taskdomain.AddTaskRequest{Description: "   "})
	assert.ErrorIs(t, err, taskdomain.ErrInvalidDescription)

	_, err = svc.AddTask(ctx, alice, taskdomain.AddTaskRequest{Description: strings.Repeat("x", taskdomain.MaxDescriptionLength+1)})
	assert.ErrorIs(t, err, taskdomain.ErrInvalidDescription)

	_, err = svc.AddTask(ctx, alice, taskdomain.AddTaskRequest{ID: strings.Repeat("i", 65), Description: "ok"})
	assert.ErrorIs(t, err, taskdomain.ErrInvalidTaskID)
}

func TestDeleteTaskOfAnotherUserLeavesItInPlace(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddTask(ctx, alice, taskdomain.AddTaskRequest{ID: "task-1", Description: "mine"})
	require.NoError(t, err)

	err = svc.DeleteTask(ctx, bob, "task-1")
	assert.ErrorIs(t, err, taskdomain.ErrNotYourTask)

	tasks, err := svc.ListMyTasks(ctx, alice)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-1", tasks[0].ID)
}

func TestDeleteTask(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddTask(ctx, alice, taskdomain.AddTaskRequest{ID: "task-1", Description: "mine"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(ctx, alice, "task-1"))
	assert.ErrorIs(t, svc.DeleteTask(ctx, alice, "task-1"), taskdomain.ErrTaskNotFound)

	tasks, err := svc.ListMyTasks(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
