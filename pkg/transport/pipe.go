package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures network behavior simulation.
// Use this to test protocol behavior under adverse network conditions.
type NetworkCondition struct {
	// DropRate is the probability of dropping a datagram (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay to add to each datagram.
	DelayMin time.Duration

	// DelayMax is the maximum delay to add to each datagram.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration

	// DuplicateRate is the probability of delivering a datagram twice (0.0 - 1.0).
	DuplicateRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor delivers datagrams.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe provides a bidirectional in-memory datagram link between two Conns.
// It wraps pion's test.Bridge and adds network condition simulation.
//
// By default, Pipe delivers datagrams in a background goroutine.
// Use SetAutoProcess(false) or NewPipeWithConfig for manual control.
type Pipe struct {
	bridge *test.Bridge
	ends   [2]*pipeConn

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a new pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a new pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}
	if p.processInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}

	p.ends[0] = newPipeConn(p, 0, p.bridge.GetConn0())
	p.ends[1] = newPipeConn(p, 1, p.bridge.GetConn1())

	if p.autoProcess {
		p.startAutoProcess()
	}
	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic delivery.
// When disabled, you must call Tick() or Process() manually.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.autoProcess == enabled {
		return
	}
	p.autoProcess = enabled

	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
	} else {
		close(p.stopCh)
		p.wg.Wait()
	}
}

// AutoProcess returns whether auto-processing is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoProcess
}

// SetCondition configures network condition simulation for both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current network condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// Conn0 returns endpoint 0.
func (p *Pipe) Conn0() Conn { return p.ends[0] }

// Conn1 returns endpoint 1.
func (p *Pipe) Conn1() Conn { return p.ends[1] }

// NetConn1 returns the raw net.Conn behind endpoint 1, for peers that read
// a net.Conn directly. Do not call Receive on Conn1 after taking it.
func (p *Pipe) NetConn1() net.Conn { return p.bridge.GetConn1() }

// Tick delivers one datagram in each direction (if available).
// Returns the number of datagrams delivered (0, 1, or 2).
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued datagrams and returns how many were delivered.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// Close closes both endpoints and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.ends[0].Close()
	err1 := p.ends[1].Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID   int // Endpoint ID (0 or 1)
	Host string
	Port int
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string {
	if a.Host == "" {
		return fmt.Sprintf("pipe:%d", a.ID)
	}
	return fmt.Sprintf("pipe:%d:%s", a.ID, net.JoinHostPort(a.Host, strconv.Itoa(a.Port)))
}

// pipeConn reads its bridge endpoint in a goroutine so that Receive can
// honor a timeout with a plain select.
type pipeConn struct {
	pipe   *Pipe
	id     int
	conn   net.Conn
	remote PipeAddr

	rx      chan []byte
	done    chan struct{}
	once    sync.Once
	started sync.Once
}

func newPipeConn(p *Pipe, id int, conn net.Conn) *pipeConn {
	c := &pipeConn{
		pipe:   p,
		id:     id,
		conn:   conn,
		remote: PipeAddr{ID: 1 - id},
		rx:     make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	return c
}

func (c *pipeConn) readLoop() {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		select {
		case c.rx <- datagram:
		case <-c.done:
			return
		}
	}
}

func (c *pipeConn) Send(b []byte) (int, error) {
	select {
	case <-c.done:
		return 0, ErrClosed
	default:
	}
	if len(b) > MaxDatagramSize {
		return 0, ErrMessageTooLarge
	}

	c.pipe.mu.RLock()
	cond := c.pipe.condition
	rng := c.pipe.rng
	c.pipe.mu.RUnlock()

	if cond.DropRate > 0 && rng.Float64() < cond.DropRate {
		return len(b), nil
	}
	if cond.DelayMax > 0 {
		delay := cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			delay += time.Duration(rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
		}
		time.Sleep(delay)
	}
	if cond.DuplicateRate > 0 && rng.Float64() < cond.DuplicateRate {
		if _, err := c.conn.Write(b); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(b)
}

func (c *pipeConn) Receive(buf []byte, timeout time.Duration) (int, error) {
	c.started.Do(func() { go c.readLoop() })

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case datagram := <-c.rx:
		return copy(buf, datagram), nil
	case <-timer:
		return 0, ErrTimeout
	case <-c.done:
		return 0, ErrClosed
	}
}

func (c *pipeConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *pipeConn) RemoteAddr() net.Addr { return c.remote }

// PipeDialer is a Dialer that connects to in-memory handlers. Each Dial
// creates a fresh Pipe and runs the handler registered for the address on
// the far end in its own goroutine.
type PipeDialer struct {
	// Config configures pipes created by Dial.
	Config PipeConfig

	mu          sync.Mutex
	handlers    map[string]func(Conn)
	netHandlers map[string]func(net.Conn)
	pipes       []*Pipe
	dials       int
}

// NewPipeDialer creates an empty PipeDialer.
func NewPipeDialer() *PipeDialer {
	return &PipeDialer{
		Config:      DefaultPipeConfig(),
		handlers:    make(map[string]func(Conn)),
		netHandlers: make(map[string]func(net.Conn)),
	}
}

// Handle registers the server side for host:port.
func (d *PipeDialer) Handle(host string, port int, handler func(server Conn)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[net.JoinHostPort(host, strconv.Itoa(port))] = handler
}

// HandleNet registers a server side for host:port that reads the raw
// net.Conn, for peers such as a pion DTLS server.
func (d *PipeDialer) HandleNet(host string, port int, handler func(server net.Conn)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.netHandlers[net.JoinHostPort(host, strconv.Itoa(port))] = handler
}

// Dial implements Dialer.
func (d *PipeDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	d.mu.Lock()
	handler, ok := d.handlers[addr]
	netHandler, netOK := d.netHandlers[addr]
	if !ok && !netOK {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, addr)
	}
	p := NewPipeWithConfig(d.Config)
	d.pipes = append(d.pipes, p)
	d.dials++
	d.mu.Unlock()

	p.ends[0].remote = PipeAddr{ID: 1, Host: host, Port: port}
	if ok {
		go handler(p.Conn1())
	} else {
		go netHandler(p.NetConn1())
	}
	return p.Conn0(), nil
}

// Dials returns how many connections have been dialed.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Close closes every pipe created by Dial.
func (d *PipeDialer) Close() error {
	d.mu.Lock()
	pipes := d.pipes
	d.pipes = nil
	d.mu.Unlock()

	for _, p := range pipes {
		p.Close()
	}
	return nil
}

var (
	_ Conn   = (*pipeConn)(nil)
	_ Dialer = (*PipeDialer)(nil)
)
