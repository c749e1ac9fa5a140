package llcp

import "github.com/XC-/llcp/internal/pdu"

const (
	syncIdle uint8 = iota
	syncWaitAck
	syncNtf
)

func (c *Conn) syncRun(ctx *procCtx) step {
	switch ctx.state {
	case syncIdle:
		if !ctx.local {
			return stepPending
		}
		ind := ctx.data.sync
		ind.ConnEventCount = c.counter
		if !c.send(ctx, &ind) {
			return stepPending
		}
		ctx.state = syncWaitAck
		return stepProgressed
	case syncNtf:
		if !c.notify(ctx, NtfPeriodicSync, Success, func(n *Notification) { n.Sync = ctx.data.sync }) {
			return stepPending
		}
		return c.complete(ctx)
	}
	return stepPending
}

func (c *Conn) syncRx(ctx *procCtx, p pdu.PDU) {
	switch q := p.(type) {
	case *pdu.PeriodicSync:
		ctx.data.sync = *q
		ctx.state = syncNtf
		c.syncRun(ctx)
	case *pdu.Unknown:
		c.clearFeature(FeatPASTRecipient)
		c.complete(ctx)
	}
}

func (c *Conn) syncTxAck(ctx *procCtx, n *TxNode) {
	if ctx.state == syncWaitAck {
		c.complete(ctx)
	}
}
