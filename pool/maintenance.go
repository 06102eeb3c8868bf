package pool

import (
	"context"
	"log"
	"math/rand"
	"time"
)

// fillerLoop keeps the bag at or above min_connections and grows it on
// demand when Acquire signals a miss under max_connections (§4.7 "a
// filler task ensures the number of live entries ≥ minConnections and ≤
// maxConnections").
func (p *Pool) fillerLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.MaintenanceInterval)
	defer ticker.Stop()

	p.fillToMin()
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.growCh:
			p.growByOne()
		case <-ticker.C:
			p.fillToMin()
		}
	}
}

func (p *Pool) fillToMin() {
	for p.bag.size() < p.opts.MinConnections {
		if _, err := p.dialOne(context.Background()); err != nil {
			log.Printf("[pool] %s: warm-up dial failed: %v", p.opts.Name, err)
			return
		}
	}
}

func (p *Pool) growByOne() {
	if p.bag.size() >= p.opts.MaxConnections {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.ConnectionTimeout)
	defer cancel()
	e, err := p.dialOne(ctx)
	if err != nil {
		log.Printf("[pool] %s: on-demand dial failed: %v", p.opts.Name, err)
		return
	}
	e.markIdle()
	if p.waiters.Load() > 0 {
		p.bag.offerToWaiter(e)
	}
}

// maintenanceLoop runs every maintenance_interval, evicting entries past
// max_lifetime or idle_timeout, probing keepalive, and flagging leaks
// (§4.7 Maintenance loop).
func (p *Pool) maintenanceLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Pool) sweep() {
	list := p.bag.list()
	idleCount := 0
	for _, e := range list {
		if e.isIdle() {
			idleCount++
		}
	}

	for _, e := range list {
		if !e.isIdle() {
			continue
		}
		switch {
		case p.opts.MaxLifetime > 0 && e.age() >= p.opts.MaxLifetime:
			if idleCount > p.opts.MinConnections && e.tryReserve() {
				p.removeEntry(e)
				idleCount--
			}
		case p.opts.IdleTimeout > 0 && e.idleDuration() >= p.opts.IdleTimeout:
			if idleCount > p.opts.MinConnections && e.tryReserve() {
				p.removeEntry(e)
				idleCount--
			}
		case p.opts.KeepaliveTime > 0 && e.idleDuration() >= p.jitteredKeepalive():
			p.pingIdle(e)
		}
	}
}

// jitteredKeepalive applies ±20% jitter to keepalive_time to avoid
// stampedes of simultaneous pings (§4.7 Maintenance loop).
func (p *Pool) jitteredKeepalive() time.Duration {
	base := p.opts.KeepaliveTime
	jitter := time.Duration(rand.Int63n(int64(base) * 40 / 100)) // [0, 0.4*base)
	return base - (base * 20 / 100) + jitter
}

func (p *Pool) pingIdle(e *entry) {
	if !e.tryReserve() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.ValidationTimeout)
	defer cancel()
	if err := e.session.Ping(ctx); err != nil {
		p.removeEntry(e)
		return
	}
	e.markIdle()
}

func (p *Pool) logStateLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.PoolStateLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			s := p.Stats()
			log.Printf("[pool] %s: total=%d active=%d idle=%d waiting=%d", s.PoolName, s.Total, s.Active, s.Idle, s.Waiting)
		}
	}
}
