package pool

// Stats is a point-in-time snapshot of pool occupancy (§3, §8 invariant 8:
// at steady state min ≤ total ≤ max and active+idle == total).
type Stats struct {
	PoolName        string `json:"pool_name"`
	Active          int    `json:"active"`
	Idle            int    `json:"idle"`
	Total           int    `json:"total"`
	Waiting         int64  `json:"waiting"`
	MinConnections  int    `json:"min_connections"`
	MaxConnections  int    `json:"max_connections"`
	AcquireTimeouts int64  `json:"acquire_timeouts_total"`
	Created         int64  `json:"created_total"`
	Closed          int64  `json:"closed_total"`
	Removed         int64  `json:"removed_total"`
}

// Stats returns a snapshot of the pool's current occupancy.
func (p *Pool) Stats() Stats {
	list := p.bag.list()
	active, idle := 0, 0
	for _, e := range list {
		switch {
		case e.isInUse():
			active++
		case e.isIdle():
			idle++
		}
	}
	return Stats{
		PoolName:        p.opts.Name,
		Active:          active,
		Idle:            idle,
		Total:           len(list),
		Waiting:         p.waiters.Load(),
		MinConnections:  p.opts.MinConnections,
		MaxConnections:  p.opts.MaxConnections,
		AcquireTimeouts: p.acquireTimeouts.Load(),
		Created:         p.created.Load(),
		Closed:          p.closedCount.Load(),
		Removed:         p.removedCount.Load(),
	}
}
