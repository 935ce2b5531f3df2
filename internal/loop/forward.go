package loop

import (
	"context"

	"golang.org/x/sync/errgroup"
)

func send(ctx context.Context, messages chan<- message, msg message) bool {
	select {
	case messages <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Loop) startForwarders(ctx context.Context, group *errgroup.Group, messages chan<- message) {
	group.Go(func() error {
		for {
			select {
			case event, ok := <-l.events:
				if !ok {
					send(ctx, messages, message{kind: messageSourceClosed})
					return nil
				}
				if !send(ctx, messages, message{kind: messageChange, path: event.Path}) {
					return nil
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	if l.errors != nil {
		group.Go(func() error {
			for {
				select {
				case err, ok := <-l.errors:
					if !ok {
						return nil
					}
					if !send(ctx, messages, message{kind: messageSourceError, err: err}) {
						return nil
					}
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	if l.signals != nil {
		group.Go(func() error {
			for {
				select {
				case sig, ok := <-l.signals:
					if !ok {
						return nil
					}
					if !l.shutdownStarted.CompareAndSwap(false, true) {
						l.logger.Info("shutdown already in progress; ignoring signal", map[string]string{
							"signal": sig.String(),
						})
						continue
					}
					l.logger.Info("shutdown signal received", map[string]string{"signal": sig.String()})
					if !send(ctx, messages, message{kind: messageTerminate, signal: sig}) {
						return nil
					}
				case <-ctx.Done():
					return nil
				}
			}
		})
	}
}

// watchChild forwards the exit of the child spawned most recently.
func (l *Loop) watchChild(ctx context.Context, group *errgroup.Group, messages chan<- message) {
	done, generation := l.supervisor.Exited()
	if done == nil {
		return
	}
	group.Go(func() error {
		select {
		case <-done:
			send(ctx, messages, message{kind: messageChildExited, generation: generation})
		case <-ctx.Done():
		}
		return nil
	})
}
