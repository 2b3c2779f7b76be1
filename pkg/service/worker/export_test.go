package worker

import "context"

func (w *Poller) PollOnce(ctx context.Context) error {
	return w.poll(ctx)
}

func (w *Scheduler) SweepOnce(ctx context.Context) error {
	return w.sweep(ctx)
}

func (w *Retention) SweepOnce(ctx context.Context) error {
	return w.sweep(ctx)
}
