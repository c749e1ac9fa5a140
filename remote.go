package llcp

import "github.com/XC-/llcp/internal/pdu"

// rrState is the state of the remote request machine, which runs the
// procedures the peer starts.
type rrState uint8

const (
	rrDisconnected rrState = iota
	rrIdle
	rrReject
	rrActive
	rrTerminate
)

var rrStateName = map[rrState]string{
	rrDisconnected: "disconnected",
	rrIdle:         "idle",
	rrReject:       "reject",
	rrActive:       "active",
	rrTerminate:    "terminate",
}

func (s rrState) String() string { return rrStateName[s] }

// remoteProc maps an opcode that no running procedure expects to the
// procedure the peer is starting. ok is false when the PDU must not start
// anything; protocol violations have then already been handled.
func (c *Conn) remoteProc(p pdu.PDU) (proc ProcType, ok bool) {
	central := c.role == Central
	switch p.Opcode() {
	case pdu.FeatureReq:
		if !central {
			return ProcFeatureExchange, true
		}
	case pdu.PeripheralFeatureReq:
		if central && c.localHas(FeatPeripheralFeatReq) {
			return ProcFeatureExchange, true
		}
	case pdu.VersionInd:
		return ProcVersionExchange, true
	case pdu.PingReq:
		if c.localHas(FeatLEPing) {
			return ProcLEPing, true
		}
	case pdu.LengthReq:
		if c.localHas(FeatDataLength) {
			return ProcDataLength, true
		}
	case pdu.PHYReq:
		if c.localHas(FeatPHY2M | FeatPHYCoded) {
			return ProcPHYUpdate, true
		}
	case pdu.ConnParamReq:
		if c.localHas(FeatConnParamReq) {
			return ProcConnParamReq, true
		}
	case pdu.ConnUpdateInd:
		if !central {
			return ProcConnUpdate, true
		}
	case pdu.ChannelMapInd:
		if !central {
			return ProcChannelMap, true
		}
	case pdu.EncReq:
		if !central && c.localHas(FeatEncryption) {
			return ProcEncStart, true
		}
	case pdu.PauseEncReq:
		if !central && c.localHas(FeatEncryption) {
			return ProcEncPause, true
		}
	case pdu.MinUsedChanInd:
		if central && c.localHas(FeatMinUsedChannels) {
			return ProcMinUsedChans, true
		}
	case pdu.CTEReq:
		if c.localHas(FeatCTEResponse) {
			return ProcCTE, true
		}
	case pdu.PeriodicSyncInd:
		if c.localHas(FeatPASTRecipient) {
			return ProcPeriodicSync, true
		}
	case pdu.UnknownRsp, pdu.RejectInd, pdu.RejectExtInd:
		c.log.Debugf("rx %s: no procedure waits for it, ignored", p.Opcode())
		return procNone, false
	case pdu.FeatureRsp, pdu.EncRsp, pdu.StartEncReq, pdu.StartEncRsp, pdu.PauseEncRsp,
		pdu.PingRsp, pdu.LengthRsp, pdu.PHYRsp, pdu.PHYUpdateInd, pdu.ConnParamRsp, pdu.CTERsp:
		c.log.Warnf("rx %s: unexpected response", p.Opcode())
		c.fatal(ErrLMPPDUNotAllowed)
		return procNone, false
	}
	return ProcUnknownRsp, true
}

// rrNew starts a remote procedure for p.
func (c *Conn) rrNew(p pdu.PDU) {
	proc, ok := c.remoteProc(p)
	if !ok {
		return
	}
	if proc == ProcUnknownRsp {
		c.rrNewUnknown(p.Opcode())
		return
	}
	if r := c.rr.q.peek(); proc.withInstant() && r != nil && c.rr.state == rrActive && r.proc.withInstant() {
		c.log.Warnf("remote %s while remote %s is in progress", proc, r.proc)
		c.fatal(ErrLMPPDUNotAllowed)
		return
	}
	ctx := c.ctl.allocCtx(true, proc)
	if ctx == nil {
		c.fatal(ErrMemCapacityExceeded)
		return
	}
	ctx.trigger = p
	c.rr.q.push(ctx)
	c.rrRun()
}

// rrNewUnknown answers op with LL_UNKNOWN_RSP.
func (c *Conn) rrNewUnknown(op pdu.Opcode) {
	ctx := c.ctl.allocCtx(true, ProcUnknownRsp)
	if ctx == nil {
		c.fatal(ErrMemCapacityExceeded)
		return
	}
	ctx.data.unknown = op
	c.rr.q.push(ctx)
	c.rrRun()
}

func (c *Conn) rrRun() {
	ctx := c.rr.q.peek()
	if ctx == nil {
		return
	}
	if ctx.done {
		c.rrCheckDone()
		return
	}
	switch c.rr.state {
	case rrIdle:
		c.rrActivate(ctx)
	case rrReject:
		c.rrSendReject(ctx)
	case rrActive:
		c.procRun(ctx)
	default:
		return
	}
	c.rrCheckDone()
}

// rrActivate starts the head remote procedure, first resolving any
// collision with the running local procedure.
//
// Only procedures with an instant collide. When the local one has not
// sent anything yet, the remote one runs and the local one waits. When it
// has, the central rejects the remote one and the peripheral lets it run;
// the peripheral's local procedure then ends with the central's reject.
func (c *Conn) rrActivate(ctx *procCtx) {
	if l := c.lr.q.peek(); ctx.proc.withInstant() && l != nil && l.proc.withInstant() && !l.done {
		switch {
		case !l.sent:
			l.paused = true
			c.log.Debugf("remote %s: local %s waits", ctx.proc, l.proc)
		case c.role == Central:
			ctx.status = ErrLLProcCollision
			if l.proc != ctx.proc {
				ctx.status = ErrDiffTransCollision
			}
			c.log.Warnf("remote %s collides with local %s: reject", ctx.proc, l.proc)
			c.rr.state = rrReject
			c.rrSendReject(ctx)
			return
		default:
			l.collision = true
			l.rxOpcode = opNone
			c.log.Warnf("remote %s collides with local %s: yield", ctx.proc, l.proc)
		}
	}
	c.rr.state = rrActive
	c.log.Debugf("remote %s: start", ctx.proc)
	if ctx.proc == ProcUnknownRsp {
		c.procRun(ctx)
		return
	}
	p := ctx.trigger
	c.procRx(ctx, p)
}

// rrSendReject answers the head remote procedure with LL_REJECT_EXT_IND.
// Without a Tx buffer the machine stays in rrReject and retries.
func (c *Conn) rrSendReject(ctx *procCtx) {
	rej := &pdu.RejectExt{RejectOpcode: ctx.trigger.Opcode(), ErrorCode: uint8(ctx.status)}
	if !c.send(ctx, rej) {
		return
	}
	ctx.node = nil
	c.complete(ctx)
}

// rrCheckDone retires the head remote procedure once it is done and its
// last Tx node has been acknowledged. A local procedure it held back may
// resume on the next run.
func (c *Conn) rrCheckDone() {
	ctx := c.rr.q.peek()
	if ctx == nil || (c.rr.state != rrActive && c.rr.state != rrReject) || !ctx.done || ctx.node != nil {
		return
	}
	c.rr.q.pop()
	c.ctl.releaseCtx(ctx)
	c.rr.state = rrIdle
	if l := c.lr.q.peek(); l != nil {
		l.paused = false
	}
}

// rrAbort releases every remote context.
func (c *Conn) rrAbort() {
	for _, ctx := range c.rr.q.drain() {
		c.ctl.releaseCtx(ctx)
	}
	if c.rr.state == rrActive || c.rr.state == rrReject {
		c.rr.state = rrIdle
	}
}
