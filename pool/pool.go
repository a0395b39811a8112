package pool

import (
	"sync"
	"time"

	"github.com/pqasync/pqasync/log"
)

// DefaultMaxConns bounds each conninfo's pool unless Init overrides it.
const DefaultMaxConns = 20

// stealRetryInterval is how long an exhausted acquire sleeps between
// scans for a steal candidate.
const stealRetryInterval = 10 * time.Millisecond

// Options configures the process-wide pool.
type Options struct {
	// MaxConns bounds the number of connections per conninfo.
	// Default 20.
	MaxConns int

	// Logger receives pool lifecycle events. Default discards.
	Logger log.Logger

	// Metrics, when non-nil, receives pool instrumentation.
	Metrics *Metrics
}

// Pool is the process-wide mapping from conninfo to its ordered sequence
// of connections. It is a singleton with an explicit Init / Destroy
// lifecycle; after Destroy every session operation fails deterministically.
type Pool struct {
	mu sync.Mutex

	maxConn int
	pools   map[string][]*Conn
	logger  log.Logger
	metrics *Metrics

	// lastStolenID rotates the steal cursor so no owner is starved.
	lastStolenID int64

	// released wakes steal loops early when a connection frees up.
	released chan struct{}
}

var (
	instanceMu sync.Mutex
	instance   *Pool
)

// Init creates the singleton. Calling it again is a no-op until Destroy.
func Init(opts Options) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return
	}

	if opts.MaxConns < 1 {
		opts.MaxConns = DefaultMaxConns
	}
	if opts.Logger == nil {
		opts.Logger = log.Noop()
	}

	instance = &Pool{
		maxConn:  opts.MaxConns,
		pools:    make(map[string][]*Conn),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		released: make(chan struct{}, 1),
	}
}

// Destroy tears the singleton down, severing every owner back-reference
// and closing every connection.
func Destroy() {
	instanceMu.Lock()
	p := instance
	instance = nil
	instanceMu.Unlock()

	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cons := range p.pools {
		for _, c := range cons {
			if c.owner != nil {
				c.owner.DetachConn()
				c.owner = nil
			}
			p.logger.Debug("releasing connection on pool destroy",
				log.String("conn_id", c.ID()))
			c.Close()
			if p.metrics != nil {
				p.metrics.open.Dec()
			}
		}
	}
	p.pools = make(map[string][]*Conn)
}

// Instance returns the singleton, or a NotInitializedError.
func Instance() (*Pool, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		return nil, NotInitializedError{}
	}
	return instance, nil
}

// MaxConns returns the per-conninfo bound.
func (p *Pool) MaxConns() int { return p.maxConn }

// Acquire hands the owner a reserved connection for the conninfo,
// creating, reusing or — under saturation — stealing one. A timeout <= 0
// waits forever. The returned connection is in the reserved state; the
// owner's back-reference has been installed.
func Acquire(owner Owner, connString string, timeout time.Duration) (*Conn, error) {
	p, err := Instance()
	if err != nil {
		return nil, err
	}
	return p.Acquire(owner, connString, timeout)
}

// Acquire implements the package-level Acquire on the singleton.
func (p *Pool) Acquire(owner Owner, connString string, timeout time.Duration) (*Conn, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	p.mu.Lock()
	cons := p.bucketLocked(connString)
	cons = p.reapLocked(connString, cons)

	// first connection for this conninfo
	if len(cons) == 0 {
		c := newConn(p, connString, p.logger)
		p.pools[connString] = append(cons, c)
		p.logger.Debug("connection created",
			log.String("conn_id", c.ID()),
			log.Int("pool_size", len(p.pools[connString])))
		if p.metrics != nil {
			p.metrics.created.Inc()
			p.metrics.open.Inc()
		}
		if p.tryReserveLocked(c, owner) {
			p.mu.Unlock()
			return c, nil
		}
		cons = p.pools[connString]
	}

	// reuse a free connection
	for _, c := range cons {
		if p.tryReserveLocked(c, owner) {
			p.mu.Unlock()
			return c, nil
		}
	}

	// room to grow
	if len(cons) < p.maxConn {
		c := newConn(p, connString, p.logger)
		p.pools[connString] = append(cons, c)
		if p.metrics != nil {
			p.metrics.created.Inc()
			p.metrics.open.Inc()
		}
		if p.tryReserveLocked(c, owner) {
			p.mu.Unlock()
			return c, nil
		}
		p.mu.Unlock()
		return nil, &StateError{Op: "acquire", Message: "unable to assign a freshly created connection"}
	}

	// saturation: steal from an idle owner, rotating past the last
	// stolen id so every owner is eventually considered
	for {
		if c := p.stealLocked(connString, owner); c != nil {
			p.mu.Unlock()
			return c, nil
		}
		p.mu.Unlock()

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			opened := p.OpenedCount(connString)
			if p.metrics != nil {
				p.metrics.exhausted.Inc()
			}
			return nil, &ExhaustedError{ConnString: connString, Opened: opened, Max: p.maxConn}
		}

		select {
		case <-p.released:
		case <-time.After(stealRetryInterval):
		}
		p.mu.Lock()
	}
}

// bucketLocked returns (creating if needed) the conninfo's sequence.
func (p *Pool) bucketLocked(connString string) []*Conn {
	cons, ok := p.pools[connString]
	if !ok {
		cons = nil
		p.pools[connString] = cons
	}
	return cons
}

// reapLocked removes dead connections from the tail of a pool that has
// grown past four entries, severing owner back-references first.
func (p *Pool) reapLocked(connString string, cons []*Conn) []*Conn {
	if len(cons) <= 4 {
		return cons
	}
	for i := len(cons) - 1; i > 4; i-- {
		c := cons[i]
		if !c.IsDead() {
			continue
		}
		if c.owner != nil {
			c.owner.DetachConn()
			c.owner = nil
		}
		p.logger.Debug("releasing dead connection",
			log.String("conn_id", c.ID()),
			log.Int("pool_size", len(cons)-1))
		c.Close()
		cons = append(cons[:i], cons[i+1:]...)
		if p.metrics != nil {
			p.metrics.reaped.Inc()
			p.metrics.open.Dec()
		}
	}
	p.pools[connString] = cons
	return cons
}

// tryReserveLocked moves a free connection straight to reserved for the
// owner.
func (p *Pool) tryReserveLocked(c *Conn, owner Owner) bool {
	if !c.res.CompareAndSwap(resFree, resReserved) {
		return false
	}
	c.owner = owner
	c.Touch()
	return true
}

// stealLocked scans for a connection whose owner is idle, starting just
// past the last stolen identifier and wrapping around.
func (p *Pool) stealLocked(connString string, thief Owner) *Conn {
	cons := p.pools[connString]

	candidates := make([]*Conn, 0, len(cons))
	for _, c := range cons {
		if c.id > p.lastStolenID {
			candidates = append(candidates, c)
		}
	}
	for _, c := range cons {
		if c.id <= p.lastStolenID {
			candidates = append(candidates, c)
		}
	}

	for _, c := range candidates {
		if !c.CanBeStolen() {
			continue
		}
		if c.owner != nil {
			c.owner.DetachConn()
		}
		c.owner = thief
		c.Reserve()
		p.lastStolenID = c.id

		p.logger.Debug("connection stolen",
			log.String("conn_id", c.ID()),
			log.Int("pool_size", len(cons)))
		if p.metrics != nil {
			p.metrics.stolen.Inc()
		}
		return c
	}
	return nil
}

// Retain re-reserves a connection the owner already holds. It fails when
// the connection was stolen or reaped since the owner last used it, in
// which case the owner must acquire afresh.
func (p *Pool) Retain(owner Owner, c *Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c.owner != owner {
		return false
	}
	c.Reserve()
	return true
}

// OpenedCount returns the number of connections actively locked for the
// conninfo. Exhaustion errors carry it.
func (p *Pool) OpenedCount(connString string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.pools[connString] {
		if c.Reservation() == resLocked {
			n++
		}
	}
	return n
}

// notifyReleased wakes one steal loop; called whenever a reservation
// drops.
func (p *Pool) notifyReleased() {
	select {
	case p.released <- struct{}{}:
	default:
	}
}
