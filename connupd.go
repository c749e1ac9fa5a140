package llcp

import "github.com/XC-/llcp/internal/pdu"

// cuData is the working data of the connection update and connection
// parameter request procedures.
type cuData struct {
	// params are the parameters asked for, by the host or by the peer.
	params ConnParams
	// reason is the reject reason of a refused request.
	reason ErrorCode
	ind    pdu.ConnUpdate
}

const (
	cuIdle uint8 = iota
	cuWaitRsp
	cuUpdInd
	cuWaitAck
	cuWaitUpdInd
	cuWaitInstant
	cuNtf
	cuHostNtf
	cuWaitHost
	cuParamRsp
	cuReject
)

// validParams checks connection parameters against the ranges of the
// core specification, including the supervision timeout bound.
func validParams(p ConnParams) bool {
	switch {
	case p.IntervalMin < connIntervalMin || p.IntervalMax > connIntervalMax || p.IntervalMin > p.IntervalMax:
		return false
	case p.Latency > connLatencyMax:
		return false
	case p.Timeout < connTimeoutMin || p.Timeout > connTimeoutMax:
		return false
	}
	return uint32(p.Timeout)*4 > (1+uint32(p.Latency))*uint32(p.IntervalMax)
}

// interval picks the connection interval for p.
func (p ConnParams) interval() uint16 {
	if p.Interval >= p.IntervalMin && p.Interval <= p.IntervalMax && p.Interval != 0 {
		return p.Interval
	}
	return p.IntervalMax
}

func (c *Conn) paramReq(op pdu.Opcode, p ConnParams) *pdu.ConnParam {
	return &pdu.ConnParam{Op: op, ConnParamBody: pdu.ConnParamBody{
		IntervalMin:             p.IntervalMin,
		IntervalMax:             p.IntervalMax,
		Latency:                 p.Latency,
		Timeout:                 p.Timeout,
		ReferenceConnEventCount: c.counter,
		Offsets:                 [6]uint16{0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF},
	}}
}

func (c *Conn) cuRun(ctx *procCtx) step {
	d := &ctx.data.cu
	switch ctx.state {
	case cuIdle:
		if !ctx.local {
			return stepPending
		}
		if ctx.proc == ProcConnUpdate || (c.role == Central && c.peerLacks(FeatConnParamReq)) {
			ctx.state = cuUpdInd
			return c.cuRun(ctx)
		}
		if !c.send(ctx, c.paramReq(pdu.ConnParamReq, d.params)) {
			return stepPending
		}
		ctx.rxOpcode = pdu.ConnParamRsp
		if c.role == Peripheral {
			ctx.rxOpcode = pdu.ConnUpdateInd
		}
		ctx.state = cuWaitRsp
		return stepProgressed
	case cuUpdInd:
		d.ind = pdu.ConnUpdate{
			WinSize:  1,
			Interval: d.params.interval(),
			Latency:  d.params.Latency,
			Timeout:  d.params.Timeout,
			Instant:  c.instant(),
		}
		if !c.send(ctx, &d.ind) {
			return stepPending
		}
		ctx.rxOpcode = opNone
		ctx.state = cuWaitAck
		return stepProgressed
	case cuHostNtf:
		if !c.notify(ctx, NtfConnParamReq, Success, func(n *Notification) { n.Params = d.params }) {
			return stepPending
		}
		ctx.state = cuWaitHost
		return stepProgressed
	case cuParamRsp:
		if !c.send(ctx, c.paramReq(pdu.ConnParamRsp, d.params)) {
			return stepPending
		}
		ctx.rxOpcode = pdu.ConnUpdateInd
		ctx.state = cuWaitUpdInd
		return stepProgressed
	case cuReject:
		var p pdu.PDU = &pdu.RejectExt{RejectOpcode: pdu.ConnParamReq, ErrorCode: uint8(d.reason)}
		if c.peerLacks(FeatExtRejectInd) {
			p = &pdu.Reject{ErrorCode: uint8(d.reason)}
		}
		if !c.send(ctx, p) {
			return stepPending
		}
		return c.complete(ctx)
	case cuNtf:
		if !c.notify(ctx, NtfConnUpdate, ctx.status, func(n *Notification) { n.Params = c.params }) {
			return stepPending
		}
		return c.complete(ctx)
	}
	return stepPending
}

func (c *Conn) cuRx(ctx *procCtx, p pdu.PDU) {
	d := &ctx.data.cu
	switch q := p.(type) {
	case *pdu.ConnParam:
		if q.Op == pdu.ConnParamRsp {
			// Central: the peripheral's answer narrows the interval.
			if q.IntervalMin >= d.params.IntervalMin && q.IntervalMin <= d.params.IntervalMax {
				d.params.Interval = q.IntervalMin
			}
			ctx.rxOpcode = opNone
			ctx.state = cuUpdInd
			break
		}
		d.params = ConnParams{
			IntervalMin: q.IntervalMin,
			IntervalMax: q.IntervalMax,
			Latency:     q.Latency,
			Timeout:     q.Timeout,
		}
		if !validParams(d.params) {
			c.log.Debugf("conn param req: invalid %+v", d.params)
			d.reason = ErrInvalidLLParam
			ctx.state = cuReject
			break
		}
		ctx.state = cuHostNtf
	case *pdu.ConnUpdate:
		ctx.rxOpcode = opNone
		if instantPassed(c.counter, q.Instant) {
			c.log.Warnf("conn update: instant %d passed at %d", q.Instant, c.counter)
			c.fatal(ErrInstantPassed)
			return
		}
		d.ind = *q
		ctx.state = cuWaitInstant
		return
	case *pdu.Unknown:
		c.clearFeature(FeatConnParamReq)
		if c.role == Central {
			ctx.state = cuUpdInd
			break
		}
		c.cuFail(ctx, ErrUnsuppRemoteFeature)
		return
	case *pdu.RejectExt:
		c.cuFail(ctx, rejectStatus(q.ErrorCode))
		return
	case *pdu.Reject:
		c.cuFail(ctx, rejectStatus(q.ErrorCode))
		return
	}
	c.cuRun(ctx)
}

func (c *Conn) cuFail(ctx *procCtx, status ErrorCode) {
	ctx.status = status
	ctx.rxOpcode = opNone
	ctx.state = cuNtf
	c.cuRun(ctx)
}

func (c *Conn) cuTxAck(ctx *procCtx, n *TxNode) {
	if ctx.state == cuWaitAck {
		ctx.state = cuWaitInstant
	}
}

func (c *Conn) cuEventDone(ctx *procCtx) {
	d := &ctx.data.cu
	if ctx.state != cuWaitInstant || !IsInstantReached(c.counter, d.ind.Instant) {
		return
	}
	next := ConnParams{
		IntervalMin: c.params.IntervalMin,
		IntervalMax: c.params.IntervalMax,
		Interval:    d.ind.Interval,
		Latency:     d.ind.Latency,
		Timeout:     d.ind.Timeout,
	}
	changed := next.Interval != c.params.Interval || next.Latency != c.params.Latency || next.Timeout != c.params.Timeout
	c.params = next
	c.log.Debugf("conn update at %d: %+v", c.counter, next)
	if !changed {
		c.complete(ctx)
		return
	}
	ctx.state = cuNtf
	c.cuRun(ctx)
}

// cuReply resumes a remote request waiting for the host. It continues on
// the next run.
func (c *Conn) cuReply(ctx *procCtx, p ConnParams, reason ErrorCode) {
	d := &ctx.data.cu
	switch {
	case reason != Success:
		d.reason = reason
		ctx.state = cuReject
	case c.role == Central:
		d.params = p
		ctx.state = cuUpdInd
	default:
		d.params = p
		ctx.state = cuParamRsp
	}
}
