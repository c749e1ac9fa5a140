package llcp

import (
	"github.com/sirupsen/logrus"

	"github.com/XC-/llcp/internal/pdu"
	"github.com/XC-/llcp/internal/txq"
)

// Conn is the LLCP state of one connection.
//
// The radio side drives it once per connection event: OnEventPrepare,
// then any number of OnRx, TxDequeue and OnTxAck calls, then OnEventDone.
// The host side starts procedures through the API methods and receives
// outcomes through Controller.Notification. None of the calls block.
type Conn struct {
	ctl    *Controller
	handle uint16
	role   Role
	log    *logrus.Entry

	lr struct {
		state lrState
		q     procQueue
	}
	rr struct {
		state rrState
		q     procQueue
	}

	txq      txq.Queue
	rxPaused bool
	counter  uint16

	busy  int
	rerun bool

	features struct {
		valid bool
		peer  uint64
		lacks uint64
	}
	vex struct {
		sent  bool
		valid bool
		peer  VersionInfo
	}
	muc      pdu.MinUsedChans
	dle      dleState
	txPHY    uint8
	rxPHY    uint8
	params   ConnParams
	chm      [5]byte
	cteRsp   cteRspState
	encTx    bool
	encRx    bool
	ccmTx    CCM
	ccmRx    CCM
	encPause bool

	terminated  bool
	termReason  ErrorCode
	termNtf     ErrorCode
	termPending bool
}

func newConn(ctl *Controller, handle uint16, role Role) *Conn {
	c := &Conn{
		ctl:    ctl,
		handle: handle,
		role:   role,
		log:    ctl.log.WithFields(logrus.Fields{"handle": handle, "role": role.String()}),
		txPHY:  PHY1M,
		rxPHY:  PHY1M,
		params: ConnParams{Interval: 40, Timeout: 400},
		chm:    DefaultChannelMap,
	}
	c.dle = newDLEState(ctl.cfg)
	c.lr.state = lrIdle
	c.rr.state = rrIdle
	return c
}

// Handle returns the connection handle.
func (c *Conn) Handle() uint16 { return c.handle }

// Role returns the link layer role.
func (c *Conn) Role() Role { return c.role }

// EventCounter returns the counter of the current connection event.
func (c *Conn) EventCounter() uint16 { return c.counter }

// Wake runs the connection's procedures again. Pools call it when a
// buffer the connection waits for is released.
func (c *Conn) Wake() {
	if c.busy > 0 {
		c.rerun = true
		return
	}
	c.enter()
	c.run()
	c.leave()
}

func (c *Conn) enter() { c.busy++ }

func (c *Conn) leave() {
	c.busy--
	for c.busy == 0 && c.rerun {
		c.rerun = false
		c.busy++
		c.run()
		c.busy--
	}
	if c.busy == 0 {
		c.dropWaits()
	}
}

// dropWaits takes the connection off the pool wait lists when nothing on
// it waits for a buffer any more, so it cannot hold up other connections.
func (c *Conn) dropWaits() {
	tx, ntf := false, c.termPending
	for _, ctx := range []*procCtx{c.lr.q.peek(), c.rr.q.peek()} {
		if ctx != nil {
			tx = tx || ctx.waitTx
			ntf = ntf || ctx.waitNtf
		}
	}
	if !tx {
		c.ctl.txPool.Unpeek(c)
	}
	if !ntf {
		c.ctl.ntfPool.Unpeek(c)
	}
}

func (c *Conn) run() {
	if c.termPending {
		c.emitTerminated()
	}
	c.rrRun()
	c.lrRun()
}

// OnEventPrepare starts a connection event and runs pending procedures.
func (c *Conn) OnEventPrepare(counter uint16) {
	c.enter()
	defer c.leave()
	c.counter = counter
	c.run()
}

// OnEventDone ends a connection event. Procedures waiting for an instant
// check it here.
func (c *Conn) OnEventDone() {
	c.enter()
	defer c.leave()
	if ctx := c.rr.q.peek(); ctx != nil && c.rr.state == rrActive {
		c.procEventDone(ctx)
		c.rrCheckDone()
	}
	if ctx := c.lr.q.peek(); ctx != nil && c.lr.state == lrActive {
		c.procEventDone(ctx)
		c.lrCheckDone()
	}
}

// OnRx handles one received control PDU.
func (c *Conn) OnRx(b []byte) {
	c.enter()
	defer c.leave()
	if c.terminated {
		return
	}
	p, err := pdu.Parse(b)
	if err != nil {
		op := pdu.OpcodeNone
		if len(b) > 0 {
			op = pdu.Opcode(b[0])
		}
		c.log.WithError(err).Debugf("rx invalid pdu [ % X ]", b)
		c.rrNewUnknown(op)
		return
	}
	c.log.Debugf("rx %s [ % X ]", p.Opcode(), b)

	if t, ok := p.(*pdu.Terminate); ok {
		c.remoteTerminate(ErrorCode(t.ErrorCode))
		return
	}
	if ctx := c.lr.q.peek(); ctx != nil && c.lr.state == lrActive && ctx.expects(p) {
		c.procRx(ctx, p)
		c.lrCheckDone()
		return
	}
	if ctx := c.rr.q.peek(); ctx != nil && c.rr.state == rrActive && ctx.expects(p) {
		c.procRx(ctx, p)
		c.rrCheckDone()
		return
	}
	c.rrNew(p)
}

// TxPeek reports whether a PDU is ready for transmission.
func (c *Conn) TxPeek() bool {
	_, ok := c.txq.Peek()
	return ok
}

// TxDequeue hands the next PDU to the radio, or returns nil. Data PDUs are
// held back while a procedure pauses the data path.
func (c *Conn) TxDequeue() *TxNode {
	e, ok := c.txq.Dequeue()
	if !ok {
		return nil
	}
	return e.Value.(*TxNode)
}

// EnqueueData queues a data PDU payload behind any queued control PDUs.
func (c *Conn) EnqueueData(b []byte) {
	c.txq.EnqueueData(&TxNode{Raw: b, conn: c.handle})
}

// OnTxAck reports that the peer acknowledged n. Control nodes return to
// the pool.
func (c *Conn) OnTxAck(n *TxNode) {
	if n == nil || !n.Ctrl {
		return
	}
	c.enter()
	defer c.leave()
	ctx := c.ctl.lookupCtx(n.owner)
	if ctx != nil && ctx.node == n {
		ctx.node = nil
	}
	op := n.op
	c.log.Debugf("ack %s", op)
	if ctx != nil {
		c.procTxAck(ctx, n)
	}
	c.ctl.releaseTx(n)
	c.lrCheckDone()
	c.rrCheckDone()
}

// TxDataPaused reports whether data PDUs are held back.
func (c *Conn) TxDataPaused() bool { return c.txq.Paused() }

// RxDataPaused reports whether received data PDUs must be held back.
func (c *Conn) RxDataPaused() bool { return c.rxPaused }

// Features returns the peer's feature set and whether it is known.
func (c *Conn) Features() (uint64, bool) {
	return c.features.peer &^ c.features.lacks, c.features.valid
}

// RemoteVersion returns the peer's version and whether it is known.
func (c *Conn) RemoteVersion() (VersionInfo, bool) { return c.vex.peer, c.vex.valid }

// PHY returns the active Tx and Rx PHYs.
func (c *Conn) PHY() (tx, rx uint8) { return c.txPHY, c.rxPHY }

// DataLength returns the effective data length.
func (c *Conn) DataLength() DataLength { return c.dle.eff }

// Params returns the active connection parameters.
func (c *Conn) Params() ConnParams { return c.params }

// ChannelMap returns the active channel map.
func (c *Conn) ChannelMap() [5]byte { return c.chm }

// MinUsedChannels returns the last request of the peripheral, as stored by
// the central.
func (c *Conn) MinUsedChannels() (phys, count uint8) {
	return c.muc.PHYs, c.muc.MinUsedChannels
}

// Encryption reports whether the Tx and Rx paths are encrypted.
func (c *Conn) Encryption() (tx, rx bool) { return c.encTx, c.encRx }

// CCM returns the cipher state of both directions.
func (c *Conn) CCM() (tx, rx CCM) { return c.ccmTx, c.ccmRx }

// TerminateReason returns the reason the peer gave in LL_TERMINATE_IND,
// and whether the peer terminated the connection.
func (c *Conn) TerminateReason() (ErrorCode, bool) {
	return c.termReason, c.terminated && c.termReason != Success
}

// Terminated reports whether the connection has ended, for any reason.
func (c *Conn) Terminated() bool { return c.terminated }

// Idle reports whether no procedure is queued or running.
func (c *Conn) Idle() bool { return c.lr.q.len() == 0 && c.rr.q.len() == 0 }

// peerLacks reports whether the peer is known to support none of f.
func (c *Conn) peerLacks(f uint64) bool {
	if c.features.lacks&f == f {
		return true
	}
	return c.features.valid && c.features.peer&^c.features.lacks&f == 0
}

// clearFeature records that the peer answered a procedure needing f with
// LL_UNKNOWN_RSP.
func (c *Conn) clearFeature(f uint64) {
	c.features.lacks |= f
}

// setPeerFeatures stores the feature set received in a feature exchange.
func (c *Conn) setPeerFeatures(f uint64) {
	c.features.peer = f & featValidMask
	c.features.valid = true
}

func (c *Conn) localHas(f uint64) bool { return c.ctl.cfg.Features&f != 0 }

func (c *Conn) instant() uint16 { return c.counter + c.ctl.cfg.InstantDelta }

// remoteTerminate handles LL_TERMINATE_IND. Every procedure is dropped
// without notifying the host.
func (c *Conn) remoteTerminate(reason ErrorCode) {
	c.log.Debugf("peer terminated: %v", reason)
	c.abortAll()
	c.terminated = true
	c.termReason = reason
	if c.termReason == Success {
		c.termReason = ErrUnspecified
	}
	c.lr.state = lrDisconnected
	c.rr.state = rrTerminate
}

// fatal ends the connection on a protocol violation. The host gets
// exactly one NtfTerminated carrying reason.
func (c *Conn) fatal(reason ErrorCode) {
	if c.terminated {
		return
	}
	c.log.Warnf("fatal: %v", reason)
	c.abortAll()
	c.terminated = true
	c.lr.state = lrDisconnected
	c.rr.state = rrDisconnected
	c.termNtf = reason
	c.termPending = true
	c.emitTerminated()
}

func (c *Conn) emitTerminated() {
	n := c.ctl.allocNtf(c)
	if n == nil {
		return
	}
	n.Kind = NtfTerminated
	n.Status = c.termNtf
	c.ctl.pushNtf(n)
	c.termPending = false
	c.log.Debugf("ntf %s", n)
}

// abortAll drops every procedure in both directions along with the
// control PDUs they still have queued. Nodes already handed to the radio
// return to the pool when acknowledged.
func (c *Conn) abortAll() {
	c.lrAbort()
	c.rrAbort()
	c.txq.Remove(func(e txq.Entry) bool {
		n := e.Value.(*TxNode)
		if n.Ctrl {
			c.ctl.releaseTx(n)
			return true
		}
		return false
	})
	for c.txq.Paused() {
		c.txq.ResumeData()
	}
	c.rxPaused = false
	c.encPause = false
}

func (c *Conn) disconnect() {
	c.abortAll()
	c.txq.Reset()
	c.terminated = true
	c.termPending = false
	c.lr.state = lrDisconnected
	c.rr.state = rrDisconnected
	c.ctl.txPool.Unpeek(c)
	c.ctl.ntfPool.Unpeek(c)
}
