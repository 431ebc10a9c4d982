package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"fileforge/internal/queue"
)

// Pool runs a fixed set of queue consumers against one engine. Each
// consumer processes one work item to completion before fetching the
// next, so pool size bounds concurrent transforms.
type Pool struct {
	log       *logrus.Logger
	engine    *Engine
	consumers []queue.Consumer
	wg        sync.WaitGroup
}

// NewPool wires consumers to the engine's handler.
func NewPool(log *logrus.Logger, eng *Engine, consumers []queue.Consumer) *Pool {
	return &Pool{log: log, engine: eng, consumers: consumers}
}

// Run starts one goroutine per consumer and returns immediately. The
// consumers stop when ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	p.log.WithField("workers", len(p.consumers)).Info("worker pool starting")
	for i, c := range p.consumers {
		p.wg.Add(1)
		go func(slot int, c queue.Consumer) {
			defer p.wg.Done()
			if err := c.Run(ctx, p.engine.Handle); err != nil && !errors.Is(err, context.Canceled) {
				p.log.WithError(err).Errorf("worker %d stopped", slot)
				return
			}
			p.log.Debugf("worker %d stopped", slot)
		}(i, c)
	}
}

// Stop closes the consumers and waits for in-flight work to finish.
func (p *Pool) Stop() error {
	var err error
	for _, c := range p.consumers {
		err = multierr.Append(err, c.Close())
	}
	p.wg.Wait()
	p.log.Info("worker pool stopped")
	return err
}
