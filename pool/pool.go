package pool

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mysqlwire/mysqlwire/mysql"
)

// DialFunc establishes one new backend session for the pool to own.
type DialFunc func(ctx context.Context) (*mysql.Session, error)

// BeforeAcquireHook runs once an entry is borrowed, before Acquire returns
// the loan to the caller; the pool holds no session lock while it runs, so
// each command it issues takes the session's exclusive lock itself. Its
// return value is threaded to the matching AfterReleaseHook (§4.7
// Before/after hooks).
type BeforeAcquireHook func(ctx context.Context, s *mysql.Session) (any, error)

// AfterReleaseHook runs at release, before the entry is returned to Idle.
type AfterReleaseHook func(ctx context.Context, hookValue any, s *mysql.Session) error

// Options configures a Pool (§6 Configuration options consumed, pool section).
type Options struct {
	Name string
	Dial DialFunc

	MinConnections int
	MaxConnections int

	ConnectionTimeout      time.Duration
	IdleTimeout            time.Duration
	MaxLifetime            time.Duration
	ValidationTimeout      time.Duration
	LeakDetectionThreshold time.Duration // 0 disables leak warnings
	MaintenanceInterval    time.Duration
	AdaptiveSizing         bool
	AdaptiveInterval       time.Duration
	AliveBypassWindow      time.Duration
	KeepaliveTime          time.Duration // 0 disables keepalive pings
	ConnectionTestQuery    string        // empty uses COM_PING

	LogPoolState         bool
	PoolStateLogInterval time.Duration

	BeforeAcquire BeforeAcquireHook
	AfterRelease  AfterReleaseHook

	// OnAcquireComplete, when set, is called once per Acquire call with the
	// time spent waiting and the returned error (nil on success); used to
	// feed acquire-latency and timeout metrics without this package
	// depending on a metrics implementation (§11 ambient telemetry).
	OnAcquireComplete func(d time.Duration, err error)
}

func (o *Options) setDefaults() {
	if o.ConnectionTimeout <= 0 {
		o.ConnectionTimeout = 30 * time.Second
	}
	if o.ValidationTimeout <= 0 {
		o.ValidationTimeout = 5 * time.Second
	}
	if o.MaintenanceInterval <= 0 {
		o.MaintenanceInterval = 30 * time.Second
	}
	if o.AdaptiveInterval <= 0 {
		o.AdaptiveInterval = time.Minute
	}
	if o.MaxConnections <= 0 {
		o.MaxConnections = 10
	}
	if o.Name == "" {
		o.Name = "default"
	}
}

// Pool owns a bag of backend sessions, handing out scoped Loans via
// Acquire (§4.7 Connection pool).
type Pool struct {
	opts Options
	bag  *bag

	waiters atomic.Int64
	closed  atomic.Bool

	created         atomic.Int64
	closedCount     atomic.Int64
	removedCount    atomic.Int64
	acquireTimeouts atomic.Int64

	growCh chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Pool and starts its background filler, maintenance, and
// (optionally) adaptive-sizing loops.
func New(opts Options) *Pool {
	opts.setDefaults()
	p := &Pool{
		opts:   opts,
		bag:    newBag(opts.MaxConnections),
		growCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(2)
	go p.fillerLoop()
	go p.maintenanceLoop()
	if opts.AdaptiveSizing {
		p.wg.Add(1)
		go p.adaptiveLoop()
	}
	if opts.LogPoolState && opts.PoolStateLogInterval > 0 {
		p.wg.Add(1)
		go p.logStateLoop()
	}
	return p
}

func (p *Pool) requestGrowth() {
	select {
	case p.growCh <- struct{}{}:
	default:
	}
}

// Loan is a scoped handle on a borrowed session; it must be released
// exactly once (§9 "shared then held" ownership, §8 invariant 9).
type Loan struct {
	pool      *Pool
	entry     *entry
	hookValue any
	released  atomic.Bool
}

// Session returns the borrowed session for issuing commands.
func (l *Loan) Session() *mysql.Session { return l.entry.session }

// Release returns the session to the pool. Only the first call has
// effect; a later call on the same loan is rejected with a ProtocolError
// rather than a panic (§8 invariant 9).
func (l *Loan) Release(ctx context.Context) error {
	if l.released.Swap(true) {
		return mysql.NewProtocolError("loan already released")
	}
	return l.pool.release(ctx, l)
}

func (p *Pool) newLoan(e *entry) (*Loan, error) {
	e.markBorrowed()
	if p.opts.LeakDetectionThreshold > 0 {
		e.armLeakTimer(p.opts.LeakDetectionThreshold, func() {
			log.Printf("[pool] %s: connection held past leak_detection_threshold (%s)",
				p.opts.Name, p.opts.LeakDetectionThreshold)
		})
	}
	loan := &Loan{pool: p, entry: e}
	if p.opts.BeforeAcquire != nil {
		v, err := p.opts.BeforeAcquire(context.Background(), e.session)
		if err != nil {
			p.removeEntry(e)
			return nil, err
		}
		loan.hookValue = v
	}
	return loan, nil
}

// Acquire borrows an Idle entry, preferring the shared-list scan, then the
// handoff queue, blocking up to connection_timeout (§4.7 Acquire algorithm).
func (p *Pool) Acquire(ctx context.Context) (*Loan, error) {
	start := time.Now()
	loan, err := p.acquire(ctx)
	if p.opts.OnAcquireComplete != nil {
		p.opts.OnAcquireComplete(time.Since(start), err)
	}
	return loan, err
}

func (p *Pool) acquire(ctx context.Context) (*Loan, error) {
	if p.closed.Load() {
		return nil, mysql.NewPoolClosed()
	}
	p.waiters.Add(1)
	defer p.waiters.Add(-1)

	deadline := time.Now().Add(p.opts.ConnectionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		if p.closed.Load() {
			return nil, mysql.NewPoolClosed()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if e := p.bag.scanIdle(); e != nil {
			if err := p.validate(ctx, e); err != nil {
				p.removeEntry(e)
				p.requestGrowth()
				continue
			}
			return p.newLoan(e)
		}

		if e, ok := p.bag.takeHandoff(); ok {
			if e.tryBorrow() {
				return p.newLoan(e)
			}
			continue
		}

		if p.bag.size() < p.opts.MaxConnections {
			p.requestGrowth()
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.acquireTimeouts.Add(1)
			return nil, mysql.NewConnectionAcquisitionTimeout(p.opts.ConnectionTimeout.String())
		}

		timer := time.NewTimer(remaining)
		select {
		case e := <-p.bag.handoff:
			timer.Stop()
			if e.tryBorrow() {
				return p.newLoan(e)
			}
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			p.acquireTimeouts.Add(1)
			return nil, mysql.NewConnectionAcquisitionTimeout(p.opts.ConnectionTimeout.String())
		case <-p.stopCh:
			timer.Stop()
			return nil, mysql.NewPoolClosed()
		}
	}
}

func (p *Pool) release(ctx context.Context, loan *Loan) error {
	e := loan.entry
	e.cancelLeakTimer()

	if p.opts.AfterRelease != nil {
		if err := p.opts.AfterRelease(ctx, loan.hookValue, e.session); err != nil {
			log.Printf("[pool] %s: after-release hook failed: %v", p.opts.Name, err)
		}
	}

	if p.closed.Load() || e.session.IsPoisoned() || e.session.IsClosed() {
		p.removeEntry(e)
		return nil
	}

	// An entry that outlived max_lifetime while InUse is never visible to
	// sweep's idle scan (§4.7 graceful max-lifetime eviction covers busy
	// entries too: close on release instead of returning it to Idle).
	if p.opts.MaxLifetime > 0 && e.age() >= p.opts.MaxLifetime {
		p.removeEntry(e)
		p.requestGrowth()
		return nil
	}

	e.markIdle()

	if p.waiters.Load() > 0 && p.bag.offerToWaiter(e) {
		return nil
	}
	return nil
}

func (p *Pool) validate(ctx context.Context, e *entry) error {
	if p.opts.AliveBypassWindow > 0 && e.idleDuration() < p.opts.AliveBypassWindow {
		return nil
	}
	vctx, cancel := context.WithTimeout(ctx, p.opts.ValidationTimeout)
	defer cancel()
	if p.opts.ConnectionTestQuery != "" {
		_, _, _, err := e.session.Statement(vctx, p.opts.ConnectionTestQuery)
		return err
	}
	return e.session.Ping(vctx)
}

// removeEntry evicts e from the bag and closes its session.
func (p *Pool) removeEntry(e *entry) {
	e.markRemoved()
	p.bag.remove(e)
	p.removedCount.Add(1)
	if err := e.session.Close(); err == nil {
		p.closedCount.Add(1)
	}
}

func (p *Pool) dialOne(ctx context.Context) (*entry, error) {
	s, err := p.opts.Dial(ctx)
	if err != nil {
		return nil, err
	}
	p.created.Add(1)
	e := newEntry(s)
	p.bag.add(e)
	return e, nil
}

// Drain closes every entry that is Idle at the time of the call (§4.7
// Shutdown uses the same entry teardown path). Entries on loan are not
// marked: when released they return to Idle as usual.
func (p *Pool) Drain() {
	for _, e := range p.bag.list() {
		if e.tryReserve() {
			p.removeEntry(e)
		}
	}
}

// Close halts background tasks, drains waiters with PoolClosed, then
// closes every remaining entry (§4.7 Shutdown).
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	for _, e := range p.bag.list() {
		p.removeEntry(e)
	}
}
