package core

import (
	"context"
	"time"
)

// TaskWithResult is a closure producing a value consumed by a reply callback.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult receives the value produced by the paired TaskWithResult.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// PostTaskAndReply
// =============================================================================

// PostTaskAndReply runs task on targetRunner, then posts reply to
// replyRunner. The task always completes before the reply starts. If the task
// panics, the reply is not posted (the pool's panic handler still fires).
// Returns false if the task could not be posted.
func PostTaskAndReply(targetRunner TaskRunner, task Closure, reply Closure, replyRunner TaskRunner) bool {
	return postTaskAndReplyInternal(targetRunner, task, DefaultTaskTraits(),
		reply, DefaultTaskTraits(), replyRunner, 0)
}

// PostTaskAndReplyWithTraits allows separate traits for task and reply. Useful
// when the task is background work but the reply is a user-visible update.
func PostTaskAndReplyWithTraits(targetRunner TaskRunner, task Closure, taskTraits TaskTraits,
	reply Closure, replyTraits TaskTraits, replyRunner TaskRunner) bool {
	return postTaskAndReplyInternal(targetRunner, task, taskTraits, reply, replyTraits, replyRunner, 0)
}

// postTaskAndReplyInternal wraps the task so the reply is posted only after
// the task returns without panicking. The panic, if any, propagates to the
// executing worker's recovery machinery; this wrapper only observes whether
// the task finished.
func postTaskAndReplyInternal(targetRunner TaskRunner, task Closure, taskTraits TaskTraits,
	reply Closure, replyTraits TaskTraits, replyRunner TaskRunner, delay time.Duration) bool {
	checkf(targetRunner != nil, "PostTaskAndReply with nil target runner")
	if replyRunner == nil {
		return targetRunner.PostDelayedTaskWithTraits(task, delay, taskTraits)
	}

	wrapped := func(ctx context.Context) {
		finished := false
		defer func() {
			if finished {
				replyRunner.PostTaskWithTraits(reply, replyTraits)
			}
		}()
		task(ctx)
		finished = true
	}
	return targetRunner.PostDelayedTaskWithTraits(wrapped, delay, taskTraits)
}

// =============================================================================
// Generic PostTaskAndReply with result
// =============================================================================

// PostTaskAndReplyWithResult runs a value-producing task on targetRunner and
// hands the value to reply on replyRunner. The sequential task-then-reply
// execution makes the captured variables safe to share across goroutines.
func PostTaskAndReplyWithResult[T any](targetRunner TaskRunner, task TaskWithResult[T],
	reply ReplyWithResult[T], replyRunner TaskRunner) bool {
	return PostTaskAndReplyWithResultAndTraits(targetRunner, task, DefaultTaskTraits(),
		reply, DefaultTaskTraits(), replyRunner)
}

// PostTaskAndReplyWithResultAndTraits is the full-featured version with
// separate traits for task and reply.
func PostTaskAndReplyWithResultAndTraits[T any](targetRunner TaskRunner, task TaskWithResult[T],
	taskTraits TaskTraits, reply ReplyWithResult[T], replyTraits TaskTraits,
	replyRunner TaskRunner) bool {
	var result T
	var err error

	wrappedTask := func(ctx context.Context) {
		result, err = task(ctx)
	}
	// When this runs, the task has already written result and err.
	wrappedReply := func(ctx context.Context) {
		reply(ctx, result, err)
	}
	return postTaskAndReplyInternal(targetRunner, wrappedTask, taskTraits,
		wrappedReply, replyTraits, replyRunner, 0)
}

// PostDelayedTaskAndReplyWithResult delays the task; the reply still runs
// immediately after the task completes.
func PostDelayedTaskAndReplyWithResult[T any](targetRunner TaskRunner, task TaskWithResult[T],
	delay time.Duration, reply ReplyWithResult[T], replyRunner TaskRunner) bool {
	var result T
	var err error

	wrappedTask := func(ctx context.Context) {
		result, err = task(ctx)
	}
	wrappedReply := func(ctx context.Context) {
		reply(ctx, result, err)
	}
	return postTaskAndReplyInternal(targetRunner, wrappedTask, DefaultTaskTraits(),
		wrappedReply, DefaultTaskTraits(), replyRunner, delay)
}
