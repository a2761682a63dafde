package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Outcome 单个并发任务的结果；Err 非空表示该任务失败
type Outcome[T any] struct {
	Index int
	Value T
	Err   error
}

// settleAll 并发执行全部任务并等待全部结束，单个失败不影响其他任务。
// 按声明顺序派发，结果按下标返回；limit <= 0 表示不限并发。
func settleAll[T any](ctx context.Context, limit int, tasks []func(context.Context) (T, error)) []Outcome[T] {
	out := make([]Outcome[T], len(tasks))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, task := range tasks {
		g.Go(func() error {
			out[i].Index = i
			defer func() {
				if r := recover(); r != nil {
					out[i].Err = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			out[i].Value, out[i].Err = task(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
