package llcp

import "github.com/XC-/llcp/internal/pdu"

// chmapData is the working data of a channel map update.
type chmapData struct {
	ind pdu.ChannelMap
}

const (
	chmapIdle uint8 = iota
	chmapWaitAck
	chmapWaitInstant
)

// validChannelMap reports whether m enables at least two data channels
// and none of the reserved bits.
func validChannelMap(m [5]byte) bool {
	if m[4]&0xE0 != 0 {
		return false
	}
	n := 0
	for _, b := range m {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n >= 2
}

func (c *Conn) chmapRun(ctx *procCtx) step {
	d := &ctx.data.chmap
	if ctx.state != chmapIdle || !ctx.local {
		return stepPending
	}
	d.ind.Instant = c.instant()
	if !c.send(ctx, &d.ind) {
		return stepPending
	}
	ctx.state = chmapWaitAck
	return stepProgressed
}

func (c *Conn) chmapRx(ctx *procCtx, p pdu.PDU) {
	q, ok := p.(*pdu.ChannelMap)
	if !ok {
		return
	}
	if instantPassed(c.counter, q.Instant) {
		c.log.Warnf("channel map: instant %d passed at %d", q.Instant, c.counter)
		c.fatal(ErrInstantPassed)
		return
	}
	ctx.data.chmap.ind = *q
	ctx.state = chmapWaitInstant
}

func (c *Conn) chmapTxAck(ctx *procCtx, n *TxNode) {
	if ctx.state == chmapWaitAck {
		ctx.state = chmapWaitInstant
	}
}

func (c *Conn) chmapEventDone(ctx *procCtx) {
	d := &ctx.data.chmap
	if ctx.state != chmapWaitInstant || !IsInstantReached(c.counter, d.ind.Instant) {
		return
	}
	c.chm = d.ind.ChM
	c.log.Debugf("channel map at %d: % X", c.counter, c.chm)
	c.complete(ctx)
}
