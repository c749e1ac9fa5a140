package llcp

import (
	"github.com/XC-/llcp/internal/pdu"
	"github.com/XC-/llcp/internal/pool"
)

// ProcType names a control procedure.
type ProcType uint8

const (
	procNone ProcType = iota
	ProcUnknownRsp
	ProcFeatureExchange
	ProcVersionExchange
	ProcLEPing
	ProcMinUsedChans
	ProcTerminate
	ProcDataLength
	ProcPHYUpdate
	ProcConnUpdate
	ProcConnParamReq
	ProcChannelMap
	ProcEncStart
	ProcEncPause
	ProcCTE
	ProcPeriodicSync
)

var procName = map[ProcType]string{
	procNone:            "none",
	ProcUnknownRsp:      "unknown rsp",
	ProcFeatureExchange: "feature exchange",
	ProcVersionExchange: "version exchange",
	ProcLEPing:          "le ping",
	ProcMinUsedChans:    "min used channels",
	ProcTerminate:       "terminate",
	ProcDataLength:      "data length update",
	ProcPHYUpdate:       "phy update",
	ProcConnUpdate:      "connection update",
	ProcConnParamReq:    "connection parameter request",
	ProcChannelMap:      "channel map update",
	ProcEncStart:        "encryption start",
	ProcEncPause:        "encryption pause",
	ProcCTE:             "cte request",
	ProcPeriodicSync:    "periodic sync transfer",
}

func (p ProcType) String() string { return procName[p] }

// withInstant reports whether p schedules a cutover at an instant. At most
// one such procedure may be in flight on a connection.
func (p ProcType) withInstant() bool {
	switch p {
	case ProcPHYUpdate, ProcConnUpdate, ProcConnParamReq, ProcChannelMap:
		return true
	}
	return false
}

const opNone = pdu.OpcodeNone

// step is the outcome of driving a procedure once.
type step uint8

const (
	// stepPending means the procedure waits for a buffer, a PDU, an
	// instant or the host.
	stepPending step = iota
	// stepProgressed means the procedure moved to a new state.
	stepProgressed
	// stepDone means the procedure has finished.
	stepDone
)

// ctxRef is a checked reference to a context slot.
type ctxRef struct {
	remote bool
	h      pool.Handle
}

// procCtx is one procedure instance.
type procCtx struct {
	proc  ProcType
	local bool
	ref   ctxRef
	state uint8

	rxOpcode pdu.Opcode
	txOpcode pdu.Opcode
	node     *TxNode
	trigger  pdu.PDU

	sent      bool
	done      bool
	paused    bool
	collision bool
	waitTx    bool
	waitNtf   bool
	status    ErrorCode

	data procData
}

// procData is the working data of the procedure named by proc. Only the
// member that belongs to proc is used.
type procData struct {
	unknown pdu.Opcode
	term    ErrorCode
	muc     pdu.MinUsedChans
	dle     dleData
	phy     phyData
	cu      cuData
	chmap   chmapData
	enc     encData
	cte     pdu.CTERequest
	sync    PeriodicSyncInfo
}

// expects reports whether p answers the last PDU ctx sent or is the one
// ctx waits for.
func (ctx *procCtx) expects(p pdu.PDU) bool {
	switch q := p.(type) {
	case *pdu.Unknown:
		return ctx.txOpcode != opNone && q.UnknownType == ctx.txOpcode
	case *pdu.RejectExt:
		return ctx.txOpcode != opNone && q.RejectOpcode == ctx.txOpcode
	case *pdu.Reject:
		return ctx.txOpcode != opNone && ctx.rxOpcode != opNone
	}
	return ctx.rxOpcode != opNone && p.Opcode() == ctx.rxOpcode
}

// procQueue is a FIFO of contexts.
type procQueue struct{ q []*procCtx }

func (q *procQueue) push(ctx *procCtx) { q.q = append(q.q, ctx) }
func (q *procQueue) len() int          { return len(q.q) }

func (q *procQueue) peek() *procCtx {
	if len(q.q) == 0 {
		return nil
	}
	return q.q[0]
}

func (q *procQueue) pop() *procCtx {
	ctx := q.peek()
	if ctx != nil {
		q.q[0] = nil
		q.q = q.q[1:]
	}
	return ctx
}

func (q *procQueue) drain() []*procCtx {
	all := q.q
	q.q = nil
	return all
}

// IsInstantReached reports whether the connection event counter has
// reached instant, with 16-bit wraparound.
func IsInstantReached(counter, instant uint16) bool {
	return counter-instant <= instantMaxDelta
}

// instantPassed reports whether an instant received at counter already
// lies in the past.
func instantPassed(counter, instant uint16) bool {
	return instant-counter >= instantMaxDelta
}

// The dispatch functions below are the only place that knows which
// family implements a procedure.

func (c *Conn) procRun(ctx *procCtx) step {
	switch ctx.proc {
	case ProcUnknownRsp, ProcFeatureExchange, ProcVersionExchange, ProcLEPing, ProcMinUsedChans, ProcTerminate:
		return c.commRun(ctx)
	case ProcDataLength:
		return c.dleRun(ctx)
	case ProcPHYUpdate:
		return c.phyRun(ctx)
	case ProcConnUpdate, ProcConnParamReq:
		return c.cuRun(ctx)
	case ProcChannelMap:
		return c.chmapRun(ctx)
	case ProcEncStart, ProcEncPause:
		return c.encRun(ctx)
	case ProcCTE:
		return c.cteRun(ctx)
	case ProcPeriodicSync:
		return c.syncRun(ctx)
	}
	return stepPending
}

func (c *Conn) procRx(ctx *procCtx, p pdu.PDU) {
	switch ctx.proc {
	case ProcUnknownRsp, ProcFeatureExchange, ProcVersionExchange, ProcLEPing, ProcMinUsedChans, ProcTerminate:
		c.commRx(ctx, p)
	case ProcDataLength:
		c.dleRx(ctx, p)
	case ProcPHYUpdate:
		c.phyRx(ctx, p)
	case ProcConnUpdate, ProcConnParamReq:
		c.cuRx(ctx, p)
	case ProcChannelMap:
		c.chmapRx(ctx, p)
	case ProcEncStart, ProcEncPause:
		c.encProcRx(ctx, p)
	case ProcCTE:
		c.cteRx(ctx, p)
	case ProcPeriodicSync:
		c.syncRx(ctx, p)
	}
}

func (c *Conn) procTxAck(ctx *procCtx, n *TxNode) {
	switch ctx.proc {
	case ProcUnknownRsp, ProcFeatureExchange, ProcVersionExchange, ProcLEPing, ProcMinUsedChans, ProcTerminate:
		c.commTxAck(ctx, n)
	case ProcDataLength:
		c.dleTxAck(ctx, n)
	case ProcPHYUpdate:
		c.phyTxAck(ctx, n)
	case ProcConnUpdate, ProcConnParamReq:
		c.cuTxAck(ctx, n)
	case ProcChannelMap:
		c.chmapTxAck(ctx, n)
	case ProcEncStart, ProcEncPause:
		c.encTxAck(ctx, n)
	case ProcCTE:
		c.cteTxAck(ctx, n)
	case ProcPeriodicSync:
		c.syncTxAck(ctx, n)
	}
}

func (c *Conn) procEventDone(ctx *procCtx) {
	switch ctx.proc {
	case ProcDataLength:
		c.dleEventDone(ctx)
	case ProcPHYUpdate:
		c.phyEventDone(ctx)
	case ProcConnUpdate, ProcConnParamReq:
		c.cuEventDone(ctx)
	case ProcChannelMap:
		c.chmapEventDone(ctx)
	}
}

// send encodes p into a fresh Tx node owned by ctx and queues it. It
// returns false, leaving ctx unchanged, when no node is available.
func (c *Conn) send(ctx *procCtx, p pdu.PDU) bool {
	n := c.ctl.allocTx(c)
	if n == nil {
		ctx.waitTx = true
		c.log.Tracef("%s: waiting for tx buffer", ctx.proc)
		return false
	}
	ctx.waitTx = false
	n.Raw = pdu.Encode(p)
	n.op = p.Opcode()
	n.owner = ctx.ref
	ctx.node = n
	ctx.txOpcode = n.op
	ctx.sent = true
	c.txq.EnqueueCtrl(n)
	c.log.Debugf("tx %s", n)
	return true
}

// notify fills and queues a host notification. It returns false, leaving
// ctx unchanged, when no buffer is available.
func (c *Conn) notify(ctx *procCtx, kind NtfKind, status ErrorCode, fill func(*Notification)) bool {
	n := c.ctl.allocNtf(c)
	if n == nil {
		ctx.waitNtf = true
		c.log.Tracef("%s: waiting for notification buffer", ctx.proc)
		return false
	}
	ctx.waitNtf = false
	n.Kind = kind
	n.Status = status
	if fill != nil {
		fill(n)
	}
	c.ctl.pushNtf(n)
	c.log.Debugf("ntf %s", n)
	return true
}

// complete marks ctx done. The machine that owns it releases the context
// once its last Tx node has been acknowledged.
func (c *Conn) complete(ctx *procCtx) step {
	ctx.done = true
	ctx.rxOpcode = opNone
	c.log.Debugf("%s: complete", ctx.proc)
	return stepDone
}
