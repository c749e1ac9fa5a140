package llcp

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/XC-/llcp/internal/pool"
)

// Controller owns the resources shared by every connection: the control
// PDU Tx buffers, the host notification buffers, the procedure contexts
// and the notification FIFO towards the host.
//
// A Controller is driven by a single goroutine. It holds no locks.
type Controller struct {
	cfg    Config
	log    *logrus.Logger
	crypto Crypto
	versNr uint8

	txPool  *pool.Pool
	txNodes []TxNode

	ntfPool *pool.Pool
	ntfs    []Notification
	ntfq    []*Notification

	localPool  *pool.Pool
	localCtxs  []procCtx
	remotePool *pool.Pool
	remoteCtxs []procCtx

	conns map[uint16]*Conn
}

// New returns a controller configured by opts.
func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg:    DefaultConfig(),
		crypto: stdCrypto{},
		conns:  map[uint16]*Conn{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "llcp option")
		}
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "llcp config")
	}
	if c.log == nil {
		l, err := NewLogger(c.cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		c.log = l
	}
	c.versNr, _ = c.cfg.versNr()
	c.cfg.Features &= featValidMask

	c.txPool = pool.New(c.cfg.TxBuffers)
	c.txNodes = make([]TxNode, c.cfg.TxBuffers)
	c.ntfPool = pool.New(c.cfg.NtfBuffers)
	c.ntfs = make([]Notification, c.cfg.NtfBuffers)
	c.localPool = pool.New(c.cfg.LocalContexts)
	c.localCtxs = make([]procCtx, c.cfg.LocalContexts)
	c.remotePool = pool.New(c.cfg.RemoteContexts)
	c.remoteCtxs = make([]procCtx, c.cfg.RemoteContexts)
	return c, nil
}

// Config returns the active configuration.
func (c *Controller) Config() Config { return c.cfg }

// Logger returns the controller's logger.
func (c *Controller) Logger() *logrus.Logger { return c.log }

// Connect creates the LLCP state of a newly established connection.
func (c *Controller) Connect(handle uint16, role Role) (*Conn, error) {
	if _, ok := c.conns[handle]; ok {
		return nil, errors.Wrapf(ErrCmdDisallowed, "connect handle %d", handle)
	}
	cn := newConn(c, handle, role)
	c.conns[handle] = cn
	cn.log.Debug("connected")
	return cn, nil
}

// Conn looks up a connection by handle.
func (c *Controller) Conn(handle uint16) (*Conn, error) {
	cn, ok := c.conns[handle]
	if !ok {
		return nil, ErrUnknownConnID
	}
	return cn, nil
}

// Disconnect discards every procedure of the connection and returns all
// of its buffers, including control PDUs the radio never acknowledged.
func (c *Controller) Disconnect(handle uint16) error {
	cn, ok := c.conns[handle]
	if !ok {
		return ErrUnknownConnID
	}
	cn.disconnect()
	for i := range c.txNodes {
		n := &c.txNodes[i]
		if n.conn == handle && c.txPool.Live(n.slot) {
			c.txPool.Release(n.slot)
		}
	}
	delete(c.conns, handle)
	cn.log.Debug("disconnected")
	return nil
}

// Notification pops the oldest host notification, or returns nil.
func (c *Controller) Notification() *Notification {
	if len(c.ntfq) == 0 {
		return nil
	}
	n := c.ntfq[0]
	c.ntfq = c.ntfq[1:]
	return n
}

// PendingNotifications returns the number of notifications not yet popped.
func (c *Controller) PendingNotifications() int { return len(c.ntfq) }

// ReleaseNotification hands a notification buffer back to the pool. A
// procedure waiting for a buffer runs again.
func (c *Controller) ReleaseNotification(n *Notification) {
	if n == nil {
		return
	}
	c.ntfPool.Release(n.slot)
}

// FreeTxNodes returns the number of unused control Tx buffers.
func (c *Controller) FreeTxNodes() int { return c.txPool.Free() }

// FreeNtfNodes returns the number of unused notification buffers.
func (c *Controller) FreeNtfNodes() int { return c.ntfPool.Free() }

// FreeContexts returns the number of unused local and remote procedure
// contexts.
func (c *Controller) FreeContexts() (local, remote int) {
	return c.localPool.Free(), c.remotePool.Free()
}

func (c *Controller) allocTx(cn *Conn) *TxNode {
	if !c.txPool.Peek(cn) {
		return nil
	}
	h, err := c.txPool.Alloc(cn)
	if err != nil {
		return nil
	}
	n := &c.txNodes[h.Index]
	*n = TxNode{Ctrl: true, conn: cn.handle, slot: h}
	return n
}

func (c *Controller) releaseTx(n *TxNode) {
	if n == nil || !n.Ctrl {
		return
	}
	c.txPool.Release(n.slot)
}

func (c *Controller) allocNtf(cn *Conn) *Notification {
	if !c.ntfPool.Peek(cn) {
		return nil
	}
	h, err := c.ntfPool.Alloc(cn)
	if err != nil {
		return nil
	}
	n := &c.ntfs[h.Index]
	*n = Notification{Handle: cn.handle, slot: h}
	return n
}

func (c *Controller) pushNtf(n *Notification) {
	c.ntfq = append(c.ntfq, n)
}

// allocCtx takes a procedure context from the local or remote arena.
func (c *Controller) allocCtx(remote bool, proc ProcType) *procCtx {
	p, ctxs := c.localPool, c.localCtxs
	if remote {
		p, ctxs = c.remotePool, c.remoteCtxs
	}
	if !p.Peek(nil) {
		return nil
	}
	h, err := p.Alloc(nil)
	if err != nil {
		return nil
	}
	ctx := &ctxs[h.Index]
	*ctx = procCtx{
		proc:     proc,
		local:    !remote,
		ref:      ctxRef{remote: remote, h: h},
		rxOpcode: opNone,
		txOpcode: opNone,
	}
	return ctx
}

func (c *Controller) releaseCtx(ctx *procCtx) {
	if ctx.ref.remote {
		c.remotePool.Release(ctx.ref.h)
	} else {
		c.localPool.Release(ctx.ref.h)
	}
}

// lookupCtx resolves a Tx node owner. It returns nil once the owning
// context has been released, even if the slot was reused since.
func (c *Controller) lookupCtx(r ctxRef) *procCtx {
	if !r.h.Valid() {
		return nil
	}
	if r.remote {
		if !c.remotePool.Live(r.h) {
			return nil
		}
		return &c.remoteCtxs[r.h.Index]
	}
	if !c.localPool.Live(r.h) {
		return nil
	}
	return &c.localCtxs[r.h.Index]
}
