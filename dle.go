package llcp

import "github.com/XC-/llcp/internal/pdu"

// dleState holds both sides' data length limits and the values in use.
type dleState struct {
	local  DataLength
	remote DataLength
	eff    DataLength
}

func defaultDataLength() DataLength {
	return DataLength{
		MaxTxOctets: DefaultOctets,
		MaxTxTime:   DefaultTime,
		MaxRxOctets: DefaultOctets,
		MaxRxTime:   DefaultTime,
	}
}

func newDLEState(cfg Config) dleState {
	return dleState{
		local: DataLength{
			MaxTxOctets: cfg.MaxTxOctets,
			MaxTxTime:   cfg.MaxTxTime,
			MaxRxOctets: cfg.MaxRxOctets,
			MaxRxTime:   cfg.MaxRxTime,
		},
		remote: defaultDataLength(),
		eff:    defaultDataLength(),
	}
}

// effective returns the values both sides can use: each direction is
// bounded by the sender's Tx limit and the receiver's Rx limit, and never
// drops below the default.
func (s dleState) effective() DataLength {
	return DataLength{
		MaxTxOctets: atLeast(DefaultOctets, min16(s.local.MaxTxOctets, s.remote.MaxRxOctets)),
		MaxTxTime:   atLeast(DefaultTime, min16(s.local.MaxTxTime, s.remote.MaxRxTime)),
		MaxRxOctets: atLeast(DefaultOctets, min16(s.local.MaxRxOctets, s.remote.MaxTxOctets)),
		MaxRxTime:   atLeast(DefaultTime, min16(s.local.MaxRxTime, s.remote.MaxTxTime)),
	}
}

func min16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

func atLeast(floor, v uint16) uint16 {
	if v < floor {
		return floor
	}
	return v
}

// dleData is the working data of a data length update.
type dleData struct {
	held    bool
	instant uint16
}

const (
	dleIdle uint8 = iota
	dleWaitRsp
	dleRsp
	dleWaitAck
	dleWaitInstant
	dleNtf
)

func (c *Conn) lengthPDU(op pdu.Opcode) *pdu.Length {
	l := c.dle.local
	return &pdu.Length{
		Op:          op,
		MaxRxOctets: l.MaxRxOctets,
		MaxRxTime:   l.MaxRxTime,
		MaxTxOctets: l.MaxTxOctets,
		MaxTxTime:   l.MaxTxTime,
	}
}

func (c *Conn) dleRun(ctx *procCtx) step {
	switch ctx.state {
	case dleIdle:
		if !ctx.local {
			return stepPending
		}
		if !c.send(ctx, c.lengthPDU(pdu.LengthReq)) {
			return stepPending
		}
		c.dleHold(ctx)
		ctx.rxOpcode = pdu.LengthRsp
		ctx.state = dleWaitRsp
		return stepProgressed
	case dleRsp:
		if !c.send(ctx, c.lengthPDU(pdu.LengthRsp)) {
			return stepPending
		}
		ctx.data.dle.instant = c.counter
		ctx.state = dleWaitAck
		return stepProgressed
	case dleNtf:
		if !c.notify(ctx, NtfDataLength, Success, func(n *Notification) { n.Length = c.dle.eff }) {
			return stepPending
		}
		return c.complete(ctx)
	}
	return stepPending
}

func (c *Conn) dleHold(ctx *procCtx) {
	if !ctx.data.dle.held {
		c.txq.PauseData()
		ctx.data.dle.held = true
	}
}

func (c *Conn) dleRelease(ctx *procCtx) {
	if ctx.data.dle.held {
		c.txq.ResumeData()
		ctx.data.dle.held = false
	}
}

func (c *Conn) dleRx(ctx *procCtx, p pdu.PDU) {
	switch q := p.(type) {
	case *pdu.Length:
		c.dle.remote = DataLength{
			MaxTxOctets: q.MaxTxOctets,
			MaxTxTime:   q.MaxTxTime,
			MaxRxOctets: q.MaxRxOctets,
			MaxRxTime:   q.MaxRxTime,
		}
		if ctx.local {
			c.dleRelease(ctx)
			ctx.data.dle.instant = c.counter
			ctx.rxOpcode = opNone
			ctx.state = dleWaitInstant
			return
		}
		c.dleHold(ctx)
		ctx.state = dleRsp
		c.dleRun(ctx)
	case *pdu.Unknown:
		c.clearFeature(FeatDataLength)
		c.dleRelease(ctx)
		c.complete(ctx)
	case *pdu.RejectExt, *pdu.Reject:
		c.dleRelease(ctx)
		c.complete(ctx)
	}
}

func (c *Conn) dleTxAck(ctx *procCtx, n *TxNode) {
	if ctx.state != dleWaitAck {
		return
	}
	c.dleRelease(ctx)
	ctx.state = dleWaitInstant
}

// dleEventDone switches to the new lengths at the end of the event in
// which the exchange completed.
func (c *Conn) dleEventDone(ctx *procCtx) {
	if ctx.state != dleWaitInstant || !IsInstantReached(c.counter, ctx.data.dle.instant) {
		return
	}
	eff := c.dle.effective()
	if eff == c.dle.eff {
		c.complete(ctx)
		return
	}
	c.dle.eff = eff
	c.log.Debugf("data length: %+v", eff)
	ctx.state = dleNtf
	c.dleRun(ctx)
}
