package core

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// StartPool starts workers independent instances of an actor, each on its
// own dedicated arbiter, all consuming one shared mailbox. Use it for
// handlers that block: a blocked worker stalls only its own arbiter.
//
// Whichever worker is idle takes the next envelope, so at most workers
// messages are handled at once and no order is guaranteed across workers.
// Each worker is supervised; a fault rebuilds only that worker.
func StartPool(sys *System, workers int, factory Factory, opts ActorOptions) (*Address, error) {
	if workers <= 0 {
		return nil, errors.Wrapf(ErrInvalidWorkers, "%d", workers)
	}
	if factory == nil {
		return nil, ErrNilFactory
	}

	name := opts.Name
	if name == "" {
		name = "pool"
	}
	opts.Name = name
	r := newRoute(sys, name, sys.capacity(opts), workers)

	arbs := make([]*Arbiter, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			arb, err := sys.spawnArbiter(fmt.Sprintf("%s-%s-%d", name, r.id[:8], i), sys.cfg.LockOSThread)
			if err != nil {
				return errors.Wrapf(ErrSpawnFailure, "worker %d: %v", i, err)
			}
			arbs[i] = arb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, arb := range arbs {
			if arb != nil {
				arb.Stop()
			}
		}
		return nil, err
	}

	addr := newAddress(r)
	for i, arb := range arbs {
		s := &supervisor{
			arb:         arb,
			r:           r,
			slot:        r.slots[i],
			factory:     factory,
			opts:        opts,
			supervised:  true,
			ownsArbiter: true,
		}
		if err := s.spawn(false); err != nil {
			s.retire()
			sys.logger.Warn("pool worker failed to start", "pool", name, "worker", i, "error", err)
		}
	}
	return addr, nil
}
