package llcp

import "github.com/XC-/llcp/internal/pdu"

// encData is the working data of the encryption start and pause
// procedures. Multi-octet values are little-endian as on air.
type encData struct {
	rand [8]byte
	ediv uint16
	ltk  [16]byte
	skdm [8]byte
	ivm  [4]byte
	skds [8]byte
	ivs  [4]byte

	// refresh is set when the link was encrypted before the procedure
	// started; the host then gets a key refresh instead of a change.
	refresh bool
	// held is set while the procedure holds a data Tx pause.
	held bool
}

const (
	encIdle uint8 = iota
	encPauseReq
	encWaitPauseRsp
	encPauseRsp
	encWaitPauseAck
	encEncReq
	encWaitEncRsp
	encWaitStartReq
	encStartRsp
	encWaitStartRsp
	encEncRsp
	encLTKNtf
	encWaitLTK
	encStartReq
	encLTKNeg
	encNtf
	encWaitAck
)

func (c *Conn) encRun(ctx *procCtx) step {
	d := &ctx.data.enc
	switch ctx.state {
	case encIdle:
		if !ctx.local {
			return stepPending
		}
		if ctx.proc == ProcEncPause {
			ctx.state = encPauseReq
			return c.encRun(ctx)
		}
		return c.encSendReq(ctx)
	case encPauseReq:
		if !c.send(ctx, &pdu.Empty{Op: pdu.PauseEncReq}) {
			return stepPending
		}
		c.encHold(ctx)
		d.refresh = true
		ctx.rxOpcode = pdu.PauseEncRsp
		ctx.state = encWaitPauseRsp
		return stepProgressed
	case encEncReq:
		req := &pdu.EncRequest{Rand: d.rand, EDIV: d.ediv, SKDm: d.skdm, IVm: d.ivm}
		if !c.send(ctx, req) {
			return stepPending
		}
		c.encHold(ctx)
		ctx.rxOpcode = pdu.EncRsp
		ctx.state = encWaitEncRsp
		return stepProgressed
	case encPauseRsp:
		if !c.send(ctx, &pdu.Empty{Op: pdu.PauseEncRsp}) {
			return stepPending
		}
		if !ctx.local {
			// The central answers in the clear.
			c.encRx = false
			ctx.rxOpcode = pdu.PauseEncRsp
		}
		ctx.state = encWaitPauseAck
		return stepProgressed
	case encStartRsp:
		if !c.send(ctx, &pdu.Empty{Op: pdu.StartEncRsp}) {
			return stepPending
		}
		if ctx.local {
			ctx.rxOpcode = pdu.StartEncRsp
			ctx.state = encWaitStartRsp
			return stepProgressed
		}
		c.encRelease(ctx)
		ctx.state = encNtf
		return c.encRun(ctx)
	case encEncRsp:
		if !c.send(ctx, &pdu.EncResponse{SKDs: d.skds, IVs: d.ivs}) {
			return stepPending
		}
		ctx.state = encLTKNtf
		return c.encRun(ctx)
	case encLTKNtf:
		if !c.notify(ctx, NtfLTKRequest, Success, func(n *Notification) {
			n.Rand = d.rand
			n.EDIV = d.ediv
		}) {
			return stepPending
		}
		ctx.state = encWaitLTK
		return stepProgressed
	case encStartReq:
		if !c.encProgram(ctx, false, true) {
			return stepDone
		}
		if !c.send(ctx, &pdu.Empty{Op: pdu.StartEncReq}) {
			c.encRx = false
			return stepPending
		}
		ctx.rxOpcode = pdu.StartEncRsp
		ctx.state = encWaitStartRsp
		return stepProgressed
	case encLTKNeg:
		var p pdu.PDU = &pdu.RejectExt{RejectOpcode: pdu.EncReq, ErrorCode: uint8(ErrPINOrKeyMissing)}
		if c.peerLacks(FeatExtRejectInd) {
			p = &pdu.Reject{ErrorCode: uint8(ErrPINOrKeyMissing)}
		}
		if !c.send(ctx, p) {
			return stepPending
		}
		c.encRestore(ctx)
		return c.complete(ctx)
	case encNtf:
		kind := NtfEncChange
		if d.refresh && ctx.status == Success {
			kind = NtfEncKeyRefresh
		}
		if !c.notify(ctx, kind, ctx.status, nil) {
			return stepPending
		}
		return c.complete(ctx)
	}
	return stepPending
}

// encSendReq draws fresh SKDm and IVm and sends LL_ENC_REQ.
func (c *Conn) encSendReq(ctx *procCtx) step {
	d := &ctx.data.enc
	var b [12]byte
	if err := c.ctl.crypto.Rand(b[:]); err != nil {
		c.log.WithError(err).Error("enc: random")
		c.fatal(ErrUnspecified)
		return stepDone
	}
	copy(d.skdm[:], b[:8])
	copy(d.ivm[:], b[8:])
	ctx.state = encEncReq
	return c.encRun(ctx)
}

func (c *Conn) encProcRx(ctx *procCtx, p pdu.PDU) {
	d := &ctx.data.enc
	switch q := p.(type) {
	case *pdu.EncRequest:
		d.rand, d.ediv, d.skdm, d.ivm = q.Rand, q.EDIV, q.SKDm, q.IVm
		if c.encPause {
			c.encPause = false
			d.held = true
			d.refresh = true
		} else {
			c.encHold(ctx)
			d.refresh = c.encTx || c.encRx
		}
		c.rxPaused = true
		var b [12]byte
		if err := c.ctl.crypto.Rand(b[:]); err != nil {
			c.log.WithError(err).Error("enc: random")
			c.fatal(ErrUnspecified)
			return
		}
		copy(d.skds[:], b[:8])
		copy(d.ivs[:], b[8:])
		ctx.state = encEncRsp
	case *pdu.EncResponse:
		d.skds, d.ivs = q.SKDs, q.IVs
		c.rxPaused = true
		ctx.rxOpcode = pdu.StartEncReq
		ctx.state = encWaitStartReq
		return
	case *pdu.Empty:
		c.encRxEmpty(ctx, q.Op)
		return
	case *pdu.Reject:
		c.encFail(ctx, rejectStatus(q.ErrorCode))
		return
	case *pdu.RejectExt:
		c.encFail(ctx, rejectStatus(q.ErrorCode))
		return
	case *pdu.Unknown:
		c.clearFeature(FeatEncryption)
		c.encFail(ctx, ErrUnsuppRemoteFeature)
		return
	}
	c.encRun(ctx)
}

func (c *Conn) encRxEmpty(ctx *procCtx, op pdu.Opcode) {
	switch op {
	case pdu.PauseEncReq:
		// Peripheral: the central pauses encryption.
		c.encHold(ctx)
		ctx.state = encPauseRsp
	case pdu.PauseEncRsp:
		if ctx.local {
			c.encRx = false
			c.rxPaused = true
			ctx.rxOpcode = opNone
			ctx.state = encPauseRsp
			break
		}
		// Peripheral: the pause is complete. Tx stays held for the
		// LL_ENC_REQ that follows.
		c.rxPaused = true
		c.encPause = true
		ctx.data.enc.held = false
		c.complete(ctx)
		return
	case pdu.StartEncReq:
		if !c.encProgram(ctx, true, true) {
			return
		}
		ctx.rxOpcode = opNone
		ctx.state = encStartRsp
	case pdu.StartEncRsp:
		if ctx.local {
			c.encRelease(ctx)
			ctx.state = encNtf
			break
		}
		if !c.encProgram(ctx, true, false) {
			return
		}
		ctx.rxOpcode = opNone
		ctx.state = encStartRsp
	}
	c.encRun(ctx)
}

func (c *Conn) encTxAck(ctx *procCtx, n *TxNode) {
	if ctx.state != encWaitPauseAck {
		return
	}
	c.encTx = false
	if ctx.local {
		// The link is now unencrypted; restart it with a new key.
		ctx.state = encIdle
		c.encSendReq(ctx)
	}
}

// encProgram derives the session key and turns on the requested
// directions. It returns false after a fatal error.
func (c *Conn) encProgram(ctx *procCtx, tx, rx bool) bool {
	d := &ctx.data.enc
	sk, err := sessionKey(c.ctl.crypto, d.ltk, d.skdm, d.skds)
	if err != nil {
		c.log.WithError(err).Error("enc")
		c.fatal(ErrUnspecified)
		return false
	}
	iv := sessionIV(d.ivm, d.ivs)
	central := c.role == Central
	if tx {
		c.ccmTx = CCM{Key: sk, IV: iv, Direction: ccmDir(central)}
		c.encTx = true
	}
	if rx {
		c.ccmRx = CCM{Key: sk, IV: iv, Direction: ccmDir(!central)}
		c.encRx = true
	}
	return true
}

func ccmDir(fromCentral bool) uint8 {
	if fromCentral {
		return dirCentralToPeripheral
	}
	return dirPeripheralToCentral
}

// encFail ends a local start on a reject: the link goes back to plain
// traffic and the host learns the reason.
func (c *Conn) encFail(ctx *procCtx, status ErrorCode) {
	c.encRestore(ctx)
	c.encTx, c.encRx = false, false
	ctx.status = status
	ctx.rxOpcode = opNone
	ctx.state = encNtf
	c.encRun(ctx)
}

func (c *Conn) encHold(ctx *procCtx) {
	if !ctx.data.enc.held {
		c.txq.PauseData()
		ctx.data.enc.held = true
	}
}

func (c *Conn) encRelease(ctx *procCtx) {
	if ctx.data.enc.held {
		c.txq.ResumeData()
		ctx.data.enc.held = false
	}
	c.rxPaused = false
}

func (c *Conn) encRestore(ctx *procCtx) {
	c.encRelease(ctx)
	c.encPause = false
}

// ltkReply resumes a peripheral start waiting for the host's key. It
// continues on the next run.
func (c *Conn) ltkReply(ctx *procCtx, ltk [16]byte, ok bool) {
	ctx.data.enc.ltk = ltk
	ctx.state = encStartReq
	if !ok {
		ctx.state = encLTKNeg
	}
}
