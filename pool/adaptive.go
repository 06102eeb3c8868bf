package pool

import (
	"log"
	"time"
)

// Adjustment describes what the adaptive sizer decided to do on a given
// tick (§4.7 Adaptive sizing).
type Adjustment int

const (
	AdjustmentNoChange Adjustment = iota
	AdjustmentGrow
	AdjustmentShrink
)

func (a Adjustment) String() string {
	switch a {
	case AdjustmentGrow:
		return "grow"
	case AdjustmentShrink:
		return "shrink"
	default:
		return "no_change"
	}
}

// adaptiveLoop runs every adaptive_interval, growing the pool by one when
// sustained utilization is high and waiters are queued, or shrinking it by
// one when sustained utilization is low (§4.7 Adaptive sizing).
func (p *Pool) adaptiveLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.AdaptiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			adj := p.adaptiveTick()
			if adj != AdjustmentNoChange {
				log.Printf("[pool] %s: adaptive sizing %s", p.opts.Name, adj)
			}
		}
	}
}

func (p *Pool) adaptiveTick() Adjustment {
	stats := p.Stats()
	denom := stats.MaxConnections
	if stats.Total < denom {
		denom = stats.Total
	}
	if denom == 0 {
		return AdjustmentNoChange
	}
	utilization := float64(stats.Active) / float64(denom)

	switch {
	case utilization > 0.8 && stats.Waiting > 0 && stats.Total < p.opts.MaxConnections:
		p.growByOne()
		return AdjustmentGrow
	case utilization < 0.2 && stats.Idle > p.opts.MinConnections:
		p.shrinkByOne()
		return AdjustmentShrink
	default:
		return AdjustmentNoChange
	}
}

func (p *Pool) shrinkByOne() {
	for _, e := range p.bag.list() {
		if e.isIdle() && e.tryReserve() {
			p.removeEntry(e)
			return
		}
	}
}
