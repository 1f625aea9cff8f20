package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterQueueStack(t *testing.T) {
	stack := "github.com/x/core.captureStack\n\t/src/stack.go:10\n" +
		"github.com/x/core.(*Scheduler).prepareQueueStack\n\t/src/stack.go:70\n" +
		"github.com/x/core.(*Scheduler).EnqueueMicroTask\n\t/src/scheduler.go:120\n" +
		"main.caller\n\t/src/main.go:5\n" +
		"main.main\n\t/src/main.go:1\n"

	got := filterQueueStack(stack)

	assert.Equal(t, "main.caller\n\t/src/main.go:5\nmain.main\n\t/src/main.go:1\n", got)
}

func TestFilterQueueStack_TopmostEnqueueOnly(t *testing.T) {
	stack := "core.(*Scheduler).EnqueueTask\n\t/a.go:1\n" +
		"main.wrapper\n\t/b.go:2\n" +
		"core.(*Scheduler).EnqueueTask\n\t/a.go:1\n" +
		"main.main\n\t/c.go:3\n"

	got := filterQueueStack(stack)

	assert.True(t, strings.HasPrefix(got, "main.wrapper\n"))
	assert.Contains(t, got, "main.main")
}

func TestFilterQueueStack_NoEnqueueFrame(t *testing.T) {
	stack := "main.a\n\t/a.go:1\n"
	assert.Equal(t, stack, filterQueueStack(stack))
}

func TestFilterFlushStack(t *testing.T) {
	stack := "\nEnqueued in MicroTaskQueue by:\n" +
		"main.task\n\t/a.go:1\n" +
		"core.(*Scheduler).flushQueue\n\t/s.go:2\n" +
		"core.(*Scheduler).FlushMicroTaskQueue\n\t/s.go:3\n" +
		"core.(*Loop).runLoop\n\t/l.go:4\n"

	got := filterFlushStack(stack)

	assert.Equal(t, "\nEnqueued in MicroTaskQueue by:\nmain.task\n\t/a.go:1\ncore.(*Scheduler).flushQueue\n\t/s.go:2", got)
}

func TestFilterFlushStack_MacroAndNone(t *testing.T) {
	macro := "main.task\n\t/a.go:1\ncore.(*Scheduler).FlushTaskQueue\n\t/s.go:3\n"
	assert.Equal(t, "main.task\n\t/a.go:1", filterFlushStack(macro))

	plain := "main.task\n\t/a.go:1\n"
	assert.Equal(t, plain, filterFlushStack(plain))

	firstLine := "FlushTaskQueue at the very top"
	assert.Equal(t, firstLine, filterFlushStack(firstLine))
}

func TestCaptureStack_Layout(t *testing.T) {
	stack := captureStack()

	lines := strings.Split(strings.TrimRight(stack, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Contains(t, lines[0], "TestCaptureStack_Layout")
	assert.True(t, strings.HasPrefix(lines[1], "\t"))
	assert.Contains(t, lines[1], "stack_test.go:")
}

// TestLongStacks_Disabled verifies nothing is captured by default
func TestLongStacks_Disabled(t *testing.T) {
	s := newTestScheduler(nil, nil, nil)
	task := NewTracedTask(func() error { return nil })

	s.EnqueueMicroTask(task)
	s.FlushMicroTaskQueue()

	assert.Empty(t, task.Stack())
}

// TestLongStacks_CapturesEnqueueSite verifies the captured stack starts at the caller
// Given: Long stacks enabled
// When: A traced task is enqueued on each queue from this test
// Then: Each stack starts with its separator, names this test, and omits tracer frames
func TestLongStacks_CapturesEnqueueSite(t *testing.T) {
	s := newTestScheduler(nil, nil, nil, func(c *SchedulerConfig) { c.LongStacks = true })
	micro := NewTracedTask(func() error { return nil })
	high := NewTracedTask(func() error { return nil })
	macro := NewTracedTask(func() error { return nil })

	s.EnqueueMicroTask(micro)
	s.EnqueueMicroTask(high, PriorityHigh)
	s.EnqueueTask(macro)

	cases := map[string]*TracedTask{
		MicroTaskStackSeparator:         micro,
		PriorityMicroTaskStackSeparator: high,
		TaskStackSeparator:              macro,
	}
	for separator, task := range cases {
		stack := task.Stack()
		assert.True(t, strings.HasPrefix(stack, separator), "stack %q", stack)
		assert.Contains(t, stack, "TestLongStacks_CapturesEnqueueSite")
		assert.NotContains(t, stack, "captureStack")
		assert.NotContains(t, stack, "prepareQueueStack")
		assert.NotContains(t, stack, "EnqueueMicroTask")
	}
}

// TestLongStacks_ChainsAcrossTasks verifies lineage through a task enqueued by a task
// Given: Long stacks enabled and task A, enqueued from this test, which enqueues B
// When: The micro queue is flushed
// Then: B's stack ends with A's stack and holds both separators, without the flush frames
func TestLongStacks_ChainsAcrossTasks(t *testing.T) {
	s := newTestScheduler(nil, nil, nil, func(c *SchedulerConfig) { c.LongStacks = true })
	b := NewTracedTask(func() error { return nil })
	a := NewTracedTask(func() error {
		s.EnqueueTask(b)
		return nil
	})

	s.EnqueueMicroTask(a)
	s.FlushMicroTaskQueue()

	require.NotEmpty(t, a.Stack())
	stack := b.Stack()
	assert.True(t, strings.HasPrefix(stack, TaskStackSeparator))
	assert.True(t, strings.HasSuffix(stack, a.Stack()))
	assert.Equal(t, 1, strings.Count(stack, TaskStackSeparator))
	assert.Equal(t, 1, strings.Count(stack, MicroTaskStackSeparator))

	head := strings.TrimSuffix(stack, a.Stack())
	assert.NotContains(t, head, "(*Scheduler).FlushMicroTaskQueue")
	assert.Contains(t, head, "TestLongStacks_ChainsAcrossTasks.func")

	s.FlushTaskQueue()
	assert.Empty(t, s.currentStack, "current stack must not leak past a flush")
}

// TestLongStacks_ErrorCarriesLineage verifies failing tasks get the chained stack
// Given: Long stacks enabled and a task that panics
// When: The micro queue is flushed
// Then: The handler receives a *TaskError wrapping the *PanicError, whose stack holds the
// panic site and the enqueue site but not the flush machinery below the task
func TestLongStacks_ErrorCarriesLineage(t *testing.T) {
	s := newTestScheduler(nil, nil, nil, func(c *SchedulerConfig) { c.LongStacks = true })
	var got error

	s.EnqueueMicroTask(WithErrorHandler(Func(func() {
		panic("lineage")
	}), func(err error) { got = err }))
	s.FlushMicroTaskQueue()

	var te *TaskError
	require.ErrorAs(t, got, &te)
	var pe *PanicError
	require.ErrorAs(t, got, &pe)
	assert.Equal(t, "task panicked: lineage", te.Error())

	assert.Contains(t, te.Stack, MicroTaskStackSeparator)
	assert.Contains(t, te.Stack, "TestLongStacks_ErrorCarriesLineage")
	assert.NotContains(t, te.Stack, "(*Scheduler).FlushMicroTaskQueue")
	assert.Equal(t, te.Stack, longStack(got))
}

// TestLongStacks_ReturnedErrorCarriesEnqueueStack verifies plain errors get only the lineage
func TestLongStacks_ReturnedErrorCarriesEnqueueStack(t *testing.T) {
	s := newTestScheduler(nil, nil, nil, func(c *SchedulerConfig) { c.LongStacks = true })
	sentinel := errors.New("plain")
	var got error

	task := NewTracedTask(func() error { return sentinel })
	s.EnqueueTask(WithErrorHandler(task, func(err error) { got = err }))
	s.FlushTaskQueue()

	var te *TaskError
	require.ErrorAs(t, got, &te)
	assert.ErrorIs(t, got, sentinel)
	assert.True(t, strings.HasPrefix(te.Stack, TaskStackSeparator))
}

// TestLongStacks_EnabledLater verifies tasks enqueued before enabling are not traced
func TestLongStacks_EnabledLater(t *testing.T) {
	s := newTestScheduler(nil, nil, nil)
	var got error

	s.EnqueueMicroTask(WithErrorHandler(TaskFunc(func() error {
		return errors.New("untraced")
	}), func(err error) { got = err }))
	s.SetLongStacks(true)
	s.FlushMicroTaskQueue()

	var te *TaskError
	assert.False(t, errors.As(got, &te))
}
