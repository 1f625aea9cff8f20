package core

import (
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// Separators placed in front of each captured enqueue stack. They only make
// chained stacks readable.
const (
	TaskStackSeparator              = "\nEnqueued in TaskQueue by:\n"
	MicroTaskStackSeparator         = "\nEnqueued in MicroTaskQueue by:\n"
	PriorityMicroTaskStackSeparator = "\nEnqueued in PriorityMicroTaskQueue by:\n"
)

const maxStackDepth = 64

// Everything up to and including the topmost enqueue frame and its file line.
var queueStackPrefix = regexp.MustCompile(`(?s)^.*?\bEnqueue(?:Micro)?Task\b[^\n]*\n(?:\t[^\n]*\n)?`)

// captureStack renders the calling goroutine's stack in the same
// "function\n\tfile:line\n" layout runtime/debug.Stack uses for frames.
func captureStack() string {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		b.WriteString(frame.Function)
		b.WriteString("\n\t")
		b.WriteString(frame.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(frame.Line))
		b.WriteByte('\n')
		if !more {
			break
		}
	}
	return b.String()
}

// filterQueueStack drops the tracer's own frames: everything up to the
// topmost EnqueueTask or EnqueueMicroTask call.
func filterQueueStack(stack string) string {
	return queueStackPrefix.ReplaceAllString(stack, "")
}

// filterFlushStack drops the bottom frames starting with the last
// FlushMicroTaskQueue or FlushTaskQueue frame.
func filterFlushStack(stack string) string {
	index := strings.LastIndex(stack, "FlushMicroTaskQueue")
	if index < 0 {
		index = strings.LastIndex(stack, "FlushTaskQueue")
		if index < 0 {
			return stack
		}
	}

	index = strings.LastIndexByte(stack[:index], '\n')
	if index < 0 {
		return stack
	}
	return stack[:index]
}

// prepareQueueStack builds the chained stack for a task being enqueued now.
// When called from inside a running task, the running task's own stack is
// appended so the lineage spans ticks.
func (s *Scheduler) prepareQueueStack(separator string) string {
	stack := separator + filterQueueStack(captureStack())

	if s.currentStack != "" {
		stack = filterFlushStack(stack) + s.currentStack
	}

	return stack
}
