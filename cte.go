package llcp

import "github.com/XC-/llcp/internal/pdu"

// cteRspState is the host's consent to answer CTE requests.
type cteRspState struct {
	enabled bool
	// types is a mask of CTEMask* bits.
	types uint8
}

const (
	cteIdle uint8 = iota
	cteWaitRsp
	cteRsp
	cteReject
	cteNtf
)

func (c *Conn) cteRun(ctx *procCtx) step {
	switch ctx.state {
	case cteIdle:
		if !ctx.local {
			return stepPending
		}
		req := ctx.data.cte
		if !c.send(ctx, &req) {
			return stepPending
		}
		ctx.rxOpcode = pdu.CTERsp
		ctx.state = cteWaitRsp
		return stepProgressed
	case cteRsp:
		if !c.send(ctx, &pdu.Empty{Op: pdu.CTERsp}) {
			return stepPending
		}
		return c.complete(ctx)
	case cteReject:
		if !c.send(ctx, &pdu.RejectExt{RejectOpcode: pdu.CTEReq, ErrorCode: uint8(ErrUnsuppLLParamVal)}) {
			return stepPending
		}
		return c.complete(ctx)
	case cteNtf:
		if !c.notify(ctx, NtfCTE, ctx.status, nil) {
			return stepPending
		}
		return c.complete(ctx)
	}
	return stepPending
}

// cteAcceptable reports whether a CTE with req's parameters can be sent
// on the current Tx PHY.
func (c *Conn) cteAcceptable(req *pdu.CTERequest) bool {
	switch {
	case !c.cteRsp.enabled:
		return false
	case req.Type > CTETypeAoD2us || c.cteRsp.types&(1<<req.Type) == 0:
		return false
	case req.MinLen < CTEMinLen || req.MinLen > CTEMaxLen:
		return false
	case c.txPHY == PHYCoded:
		return false
	}
	return true
}

func (c *Conn) cteRx(ctx *procCtx, p pdu.PDU) {
	switch q := p.(type) {
	case *pdu.CTERequest:
		ctx.data.cte = *q
		ctx.state = cteRsp
		if !c.cteAcceptable(q) {
			c.log.Debugf("cte req: refused %+v", *q)
			ctx.state = cteReject
		}
	case *pdu.Empty:
		ctx.state = cteNtf
	case *pdu.RejectExt:
		ctx.status = rejectStatus(q.ErrorCode)
		ctx.state = cteNtf
	case *pdu.Reject:
		ctx.status = rejectStatus(q.ErrorCode)
		ctx.state = cteNtf
	case *pdu.Unknown:
		c.clearFeature(FeatCTEResponse)
		ctx.status = ErrUnsuppRemoteFeature
		ctx.state = cteNtf
	}
	ctx.rxOpcode = opNone
	c.cteRun(ctx)
}

func (c *Conn) cteTxAck(ctx *procCtx, n *TxNode) {}
