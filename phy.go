package llcp

import "github.com/XC-/llcp/internal/pdu"

// phyData is the working data of a PHY update.
type phyData struct {
	// tx and rx are the PHYs the host asked for.
	tx uint8
	rx uint8
	// ind is the indication sent or received. A zero PHY means no change
	// in that direction.
	ind  pdu.PHYUpdate
	held bool
}

const (
	phyIdle uint8 = iota
	phyWaitRsp
	phyUpdInd
	phyWaitAck
	phyRsp
	phyWaitUpdInd
	phyWaitInstant
	phyNtf
)

// preferPHY picks one PHY out of mask, favouring throughput.
func preferPHY(mask uint8) uint8 {
	switch {
	case mask&PHY2M != 0:
		return PHY2M
	case mask&PHY1M != 0:
		return PHY1M
	case mask&PHYCoded != 0:
		return PHYCoded
	}
	return 0
}

func (c *Conn) phyRun(ctx *procCtx) step {
	d := &ctx.data.phy
	switch ctx.state {
	case phyIdle:
		if !ctx.local {
			return stepPending
		}
		if !c.send(ctx, &pdu.PHYs{Op: pdu.PHYReq, TxPHYs: d.tx, RxPHYs: d.rx}) {
			return stepPending
		}
		ctx.rxOpcode = pdu.PHYRsp
		if c.role == Peripheral {
			ctx.rxOpcode = pdu.PHYUpdateInd
		}
		ctx.state = phyWaitRsp
		return stepProgressed
	case phyUpdInd:
		d.ind.Instant = c.counter
		if d.ind.CToP != 0 || d.ind.PToC != 0 {
			d.ind.Instant = c.instant()
		}
		if !c.send(ctx, &d.ind) {
			return stepPending
		}
		ctx.rxOpcode = opNone
		ctx.state = phyWaitAck
		return stepProgressed
	case phyRsp:
		cfg := c.ctl.cfg
		if !c.send(ctx, &pdu.PHYs{Op: pdu.PHYRsp, TxPHYs: cfg.PreferredTxPHY, RxPHYs: cfg.PreferredRxPHY}) {
			return stepPending
		}
		ctx.rxOpcode = pdu.PHYUpdateInd
		ctx.state = phyWaitUpdInd
		return stepProgressed
	case phyNtf:
		if !c.notify(ctx, NtfPHYUpdate, ctx.status, func(n *Notification) {
			n.TxPHY, n.RxPHY = c.txPHY, c.rxPHY
		}) {
			return stepPending
		}
		return c.complete(ctx)
	}
	return stepPending
}

// phyPlan fills the indication the central sends, from its own wishes and
// the peer's request or response.
func (c *Conn) phyPlan(ctx *procCtx, tx, rx uint8, peer *pdu.PHYs) {
	d := &ctx.data.phy
	d.ind.CToP = preferPHY(tx & peer.RxPHYs)
	d.ind.PToC = preferPHY(rx & peer.TxPHYs)
	if d.ind.CToP == c.txPHY {
		d.ind.CToP = 0
	}
	if d.ind.PToC == c.rxPHY {
		d.ind.PToC = 0
	}
}

func (c *Conn) phyHold(ctx *procCtx) {
	if !ctx.data.phy.held {
		c.txq.PauseData()
		ctx.data.phy.held = true
	}
}

func (c *Conn) phyRelease(ctx *procCtx) {
	if ctx.data.phy.held {
		c.txq.ResumeData()
		ctx.data.phy.held = false
	}
}

func (c *Conn) phyRx(ctx *procCtx, p pdu.PDU) {
	d := &ctx.data.phy
	switch q := p.(type) {
	case *pdu.PHYs:
		if c.role == Central {
			tx, rx := d.tx, d.rx
			if !ctx.local {
				tx, rx = c.ctl.cfg.PreferredTxPHY, c.ctl.cfg.PreferredRxPHY
			}
			c.phyPlan(ctx, tx, rx, q)
			c.phyHold(ctx)
			ctx.rxOpcode = opNone
			ctx.state = phyUpdInd
		} else {
			c.phyHold(ctx)
			ctx.state = phyRsp
		}
	case *pdu.PHYUpdate:
		c.phyRelease(ctx)
		ctx.rxOpcode = opNone
		if q.CToP == 0 && q.PToC == 0 {
			c.complete(ctx)
			return
		}
		if instantPassed(c.counter, q.Instant) {
			c.log.Warnf("phy update: instant %d passed at %d", q.Instant, c.counter)
			c.fatal(ErrInstantPassed)
			return
		}
		d.ind = *q
		ctx.state = phyWaitInstant
		return
	case *pdu.Unknown:
		c.clearFeature(FeatPHY2M | FeatPHYCoded)
		c.phyFail(ctx, ErrUnsuppRemoteFeature)
		return
	case *pdu.RejectExt:
		c.phyFail(ctx, rejectStatus(q.ErrorCode))
		return
	case *pdu.Reject:
		c.phyFail(ctx, rejectStatus(q.ErrorCode))
		return
	}
	c.phyRun(ctx)
}

func (c *Conn) phyFail(ctx *procCtx, status ErrorCode) {
	c.phyRelease(ctx)
	ctx.status = status
	ctx.rxOpcode = opNone
	ctx.state = phyNtf
	c.phyRun(ctx)
}

func (c *Conn) phyTxAck(ctx *procCtx, n *TxNode) {
	c.phyRelease(ctx)
	if ctx.state != phyWaitAck {
		return
	}
	d := &ctx.data.phy
	if d.ind.CToP == 0 && d.ind.PToC == 0 {
		c.complete(ctx)
		return
	}
	ctx.state = phyWaitInstant
}

func (c *Conn) phyEventDone(ctx *procCtx) {
	d := &ctx.data.phy
	if ctx.state != phyWaitInstant || !IsInstantReached(c.counter, d.ind.Instant) {
		return
	}
	tx, rx := d.ind.CToP, d.ind.PToC
	if c.role == Peripheral {
		tx, rx = rx, tx
	}
	changed := false
	if tx != 0 && tx != c.txPHY {
		c.txPHY, changed = tx, true
	}
	if rx != 0 && rx != c.rxPHY {
		c.rxPHY, changed = rx, true
	}
	c.log.Debugf("phy update at %d: tx 0x%02X rx 0x%02X", c.counter, c.txPHY, c.rxPHY)
	if !changed {
		c.complete(ctx)
		return
	}
	ctx.state = phyNtf
	c.phyRun(ctx)
}
