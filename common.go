package llcp

import "github.com/XC-/llcp/internal/pdu"

// States of the request/response procedures: feature and version
// exchange, le ping, minimum used channels, termination and the
// LL_UNKNOWN_RSP answer.
const (
	commIdle uint8 = iota
	commWaitRx
	commWaitAck
	commWaitNtf
	commWaitTx
)

func (c *Conn) commRun(ctx *procCtx) step {
	switch ctx.state {
	case commIdle:
		if ctx.local {
			return c.commSendRequest(ctx)
		}
		return c.commSendResponse(ctx)
	case commWaitTx:
		return c.commSendResponse(ctx)
	case commWaitNtf:
		return c.commNotify(ctx)
	}
	return stepPending
}

func (c *Conn) commSendRequest(ctx *procCtx) step {
	var p pdu.PDU
	switch ctx.proc {
	case ProcFeatureExchange:
		op := pdu.FeatureReq
		if c.role == Peripheral {
			op = pdu.PeripheralFeatureReq
		}
		p = &pdu.Features{Op: op, Features: c.ctl.cfg.Features}
		ctx.rxOpcode = pdu.FeatureRsp
	case ProcVersionExchange:
		if c.vex.valid && c.vex.sent {
			ctx.state = commWaitNtf
			return c.commNotify(ctx)
		}
		p = c.localVersion()
		ctx.rxOpcode = pdu.VersionInd
	case ProcLEPing:
		p = &pdu.Empty{Op: pdu.PingReq}
		ctx.rxOpcode = pdu.PingRsp
	case ProcMinUsedChans:
		p = &ctx.data.muc
	case ProcTerminate:
		p = &pdu.Terminate{ErrorCode: uint8(ctx.data.term)}
	default:
		return stepPending
	}
	if !c.send(ctx, p) {
		return stepPending
	}
	if ctx.proc == ProcVersionExchange {
		c.vex.sent = true
	}
	ctx.state = commWaitRx
	if ctx.rxOpcode == opNone {
		ctx.state = commWaitAck
	}
	return stepProgressed
}

func (c *Conn) commSendResponse(ctx *procCtx) step {
	var p pdu.PDU
	switch ctx.proc {
	case ProcUnknownRsp:
		p = &pdu.Unknown{UnknownType: ctx.data.unknown}
	case ProcFeatureExchange:
		p = &pdu.Features{Op: pdu.FeatureRsp, Features: c.ctl.cfg.Features}
	case ProcVersionExchange:
		p = c.localVersion()
	case ProcLEPing:
		p = &pdu.Empty{Op: pdu.PingRsp}
	default:
		return c.complete(ctx)
	}
	if !c.send(ctx, p) {
		return stepPending
	}
	if ctx.proc == ProcVersionExchange {
		c.vex.sent = true
	}
	return c.complete(ctx)
}

func (c *Conn) commNotify(ctx *procCtx) step {
	var kind NtfKind
	var fill func(*Notification)
	switch ctx.proc {
	case ProcFeatureExchange:
		kind = NtfFeatureExchange
		fill = func(n *Notification) { n.Features, _ = c.Features() }
	case ProcVersionExchange:
		kind = NtfVersionExchange
		fill = func(n *Notification) { n.Version = c.vex.peer }
	default:
		return c.complete(ctx)
	}
	if ctx.status != Success {
		fill = nil
	}
	if !c.notify(ctx, kind, ctx.status, fill) {
		return stepPending
	}
	return c.complete(ctx)
}

func (c *Conn) localVersion() *pdu.Version {
	return &pdu.Version{VersNr: c.ctl.versNr, CompID: c.ctl.cfg.CompanyID, SubVersNr: c.ctl.cfg.SubVersion}
}

func (c *Conn) commRx(ctx *procCtx, p pdu.PDU) {
	if !ctx.local {
		c.commRemoteRx(ctx, p)
		return
	}
	switch q := p.(type) {
	case *pdu.Features:
		c.setPeerFeatures(q.Features)
		ctx.state = commWaitNtf
	case *pdu.Version:
		c.vex.peer = VersionInfo{VersNr: q.VersNr, CompID: q.CompID, SubVersNr: q.SubVersNr}
		c.vex.valid = true
		ctx.state = commWaitNtf
	case *pdu.Empty:
		// LL_PING_RSP
		c.complete(ctx)
		return
	case *pdu.Unknown:
		c.commUnknown(ctx)
		return
	case *pdu.RejectExt:
		ctx.status = rejectStatus(q.ErrorCode)
		ctx.state = commWaitNtf
	case *pdu.Reject:
		ctx.status = rejectStatus(q.ErrorCode)
		ctx.state = commWaitNtf
	}
	ctx.rxOpcode = opNone
	c.commRun(ctx)
}

// commUnknown handles a peer that does not know the request. Procedures
// the link cannot work without end the connection.
func (c *Conn) commUnknown(ctx *procCtx) {
	switch {
	case ctx.proc == ProcVersionExchange,
		ctx.proc == ProcFeatureExchange && c.role == Central:
		c.fatal(ErrLMPPDUNotAllowed)
	case ctx.proc == ProcFeatureExchange:
		c.clearFeature(FeatPeripheralFeatReq)
		ctx.status = ErrUnsuppRemoteFeature
		ctx.state = commWaitNtf
		ctx.rxOpcode = opNone
		c.commRun(ctx)
	case ctx.proc == ProcLEPing:
		c.clearFeature(FeatLEPing)
		c.complete(ctx)
	case ctx.proc == ProcMinUsedChans:
		c.clearFeature(FeatMinUsedChannels)
		c.complete(ctx)
	default:
		c.complete(ctx)
	}
}

func (c *Conn) commRemoteRx(ctx *procCtx, p pdu.PDU) {
	switch q := p.(type) {
	case *pdu.Features:
		c.setPeerFeatures(q.Features)
	case *pdu.Version:
		c.vex.peer = VersionInfo{VersNr: q.VersNr, CompID: q.CompID, SubVersNr: q.SubVersNr}
		c.vex.valid = true
		if c.vex.sent {
			c.complete(ctx)
			return
		}
	case *pdu.MinUsedChans:
		c.muc = *q
		c.complete(ctx)
		return
	}
	ctx.state = commWaitTx
	c.commRun(ctx)
}

func (c *Conn) commTxAck(ctx *procCtx, n *TxNode) {
	if !ctx.local || ctx.state != commWaitAck {
		return
	}
	c.complete(ctx)
	if ctx.proc == ProcTerminate {
		c.abortAll()
		c.terminated = true
		c.lr.state = lrDisconnected
		c.rr.state = rrDisconnected
		c.termNtf = ErrLocalHostTerm
		c.termPending = true
		c.emitTerminated()
	}
}
