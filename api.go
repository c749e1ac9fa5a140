package llcp

// Host API. Every call only queues work or records a host decision; the
// connection acts on it during the next OnEventPrepare or buffer release.

// startLocal allocates a context for a host-initiated procedure.
func (c *Conn) startLocal(proc ProcType) (*procCtx, error) {
	if c.terminated || c.lr.state == lrDisconnected {
		return nil, ErrCmdDisallowed
	}
	if l := c.lr.q.peek(); l != nil && l.proc == ProcTerminate {
		return nil, ErrCmdDisallowed
	}
	ctx := c.ctl.allocCtx(false, proc)
	if ctx == nil {
		return nil, ErrMemCapacityExceeded
	}
	return ctx, nil
}

// need checks that the local controller supports local and that the peer
// is not known to lack remote.
func (c *Conn) need(local, remote uint64) error {
	if local != 0 && !c.localHas(local) {
		return ErrUnsuppFeature
	}
	if remote != 0 && c.peerLacks(remote) {
		return ErrUnsuppRemoteFeature
	}
	return nil
}

// FeatureExchange reads the peer's feature set.
func (c *Conn) FeatureExchange() error {
	if c.role == Peripheral {
		if err := c.need(FeatPeripheralFeatReq, FeatPeripheralFeatReq); err != nil {
			return err
		}
	}
	ctx, err := c.startLocal(ProcFeatureExchange)
	if err != nil {
		return err
	}
	c.lrEnqueue(ctx)
	return nil
}

// VersionExchange reads the peer's version information. Once both sides
// have exchanged versions the cached value is reported without a PDU.
func (c *Conn) VersionExchange() error {
	ctx, err := c.startLocal(ProcVersionExchange)
	if err != nil {
		return err
	}
	c.lrEnqueue(ctx)
	return nil
}

// LEPing sends LL_PING_REQ. The procedure produces no notification.
func (c *Conn) LEPing() error {
	if err := c.need(FeatLEPing, FeatLEPing); err != nil {
		return err
	}
	ctx, err := c.startLocal(ProcLEPing)
	if err != nil {
		return err
	}
	c.lrEnqueue(ctx)
	return nil
}

// PHYUpdate asks for new PHYs. tx and rx are masks of PHY1M, PHY2M and
// PHYCoded; zero means the configured preference.
func (c *Conn) PHYUpdate(tx, rx uint8) error {
	if tx&^phyAll != 0 || rx&^phyAll != 0 {
		return ErrInvalidParam
	}
	if err := c.need(FeatPHY2M|FeatPHYCoded, FeatPHY2M|FeatPHYCoded); err != nil {
		return err
	}
	if tx == 0 {
		tx = c.ctl.cfg.PreferredTxPHY
	}
	if rx == 0 {
		rx = c.ctl.cfg.PreferredRxPHY
	}
	ctx, err := c.startLocal(ProcPHYUpdate)
	if err != nil {
		return err
	}
	ctx.data.phy.tx, ctx.data.phy.rx = tx, rx
	c.lrEnqueue(ctx)
	return nil
}

// DataLengthUpdate sets the local maximum Tx payload and time and
// exchanges limits with the peer.
func (c *Conn) DataLengthUpdate(octets, time uint16) error {
	if octets < DefaultOctets || octets > MaxOctets || time < DefaultTime || time > MaxTimeCoded {
		return ErrInvalidParam
	}
	if err := c.need(FeatDataLength, FeatDataLength); err != nil {
		return err
	}
	ctx, err := c.startLocal(ProcDataLength)
	if err != nil {
		return err
	}
	c.dle.local.MaxTxOctets = octets
	c.dle.local.MaxTxTime = time
	c.lrEnqueue(ctx)
	return nil
}

// SendMinUsedChannels tells the central how many channels the peripheral
// needs on the given PHYs. Peripheral only.
func (c *Conn) SendMinUsedChannels(phys, count uint8) error {
	if c.role != Peripheral {
		return ErrCmdDisallowed
	}
	if phys == 0 || phys&^phyAll != 0 || count < 2 || count > 37 {
		return ErrInvalidParam
	}
	if err := c.need(FeatMinUsedChannels, FeatMinUsedChannels); err != nil {
		return err
	}
	ctx, err := c.startLocal(ProcMinUsedChans)
	if err != nil {
		return err
	}
	ctx.data.muc.PHYs, ctx.data.muc.MinUsedChannels = phys, count
	c.lrEnqueue(ctx)
	return nil
}

// EncryptionStart encrypts an unencrypted link. Central only. rand and
// ediv identify the key to the peer; ltk is little-endian as over HCI.
func (c *Conn) EncryptionStart(rand [8]byte, ediv uint16, ltk [16]byte) error {
	if c.role != Central || c.encTx || c.encRx {
		return ErrCmdDisallowed
	}
	return c.startEnc(ProcEncStart, rand, ediv, ltk)
}

// EncryptionPause refreshes the key of an encrypted link: encryption is
// paused and restarted with ltk. Central only.
func (c *Conn) EncryptionPause(rand [8]byte, ediv uint16, ltk [16]byte) error {
	if c.role != Central || !c.encTx || !c.encRx {
		return ErrCmdDisallowed
	}
	return c.startEnc(ProcEncPause, rand, ediv, ltk)
}

func (c *Conn) startEnc(proc ProcType, rand [8]byte, ediv uint16, ltk [16]byte) error {
	if err := c.need(FeatEncryption, FeatEncryption); err != nil {
		return err
	}
	ctx, err := c.startLocal(proc)
	if err != nil {
		return err
	}
	d := &ctx.data.enc
	d.rand, d.ediv, d.ltk = rand, ediv, ltk
	c.lrEnqueue(ctx)
	return nil
}

// waitingLTK returns the remote encryption start waiting for the host's
// key, if any.
func (c *Conn) waitingLTK() *procCtx {
	ctx := c.rr.q.peek()
	if ctx == nil || c.rr.state != rrActive || ctx.proc != ProcEncStart || ctx.state != encWaitLTK {
		return nil
	}
	return ctx
}

// LTKReqReply answers NtfLTKRequest with the long term key.
func (c *Conn) LTKReqReply(ltk [16]byte) error {
	ctx := c.waitingLTK()
	if ctx == nil {
		return ErrCmdDisallowed
	}
	c.ltkReply(ctx, ltk, true)
	return nil
}

// LTKReqNegReply answers NtfLTKRequest when the host has no key. The
// peer is told the key is missing.
func (c *Conn) LTKReqNegReply() error {
	ctx := c.waitingLTK()
	if ctx == nil {
		return ErrCmdDisallowed
	}
	c.ltkReply(ctx, [16]byte{}, false)
	return nil
}

// Terminate ends the connection with reason. Every other procedure is
// dropped at once; NtfTerminated follows the peer's acknowledgement.
func (c *Conn) Terminate(reason ErrorCode) error {
	if c.terminated {
		return ErrCmdDisallowed
	}
	if l := c.lr.q.peek(); l != nil && l.proc == ProcTerminate {
		return ErrCmdDisallowed
	}
	c.abortAll()
	ctx, err := c.startLocal(ProcTerminate)
	if err != nil {
		return err
	}
	ctx.data.term = reason
	c.lrEnqueue(ctx)
	return nil
}

// CTERequest asks the peer for a constant tone extension of at least
// minLen units of 8 µs and type typ.
func (c *Conn) CTERequest(minLen, typ uint8) error {
	if minLen < CTEMinLen || minLen > CTEMaxLen || typ > CTETypeAoD2us {
		return ErrInvalidParam
	}
	if err := c.need(FeatCTERequest, FeatCTEResponse); err != nil {
		return err
	}
	ctx, err := c.startLocal(ProcCTE)
	if err != nil {
		return err
	}
	ctx.data.cte.MinLen, ctx.data.cte.Type = minLen, typ
	c.lrEnqueue(ctx)
	return nil
}

// CTEResponseEnable allows or refuses answering LL_CTE_REQ. types is a
// mask of CTEMask* bits.
func (c *Conn) CTEResponseEnable(enable bool, types uint8) error {
	if !c.localHas(FeatCTEResponse) {
		return ErrUnsuppFeature
	}
	if types&^(CTEMaskAoA|CTEMaskAoD1us|CTEMaskAoD2us) != 0 || (enable && types == 0) {
		return ErrInvalidParam
	}
	c.cteRsp = cteRspState{enabled: enable, types: types}
	return nil
}

// PeriodicSyncTransfer sends synchronization information of a periodic
// advertising train to the peer.
func (c *Conn) PeriodicSyncTransfer(info PeriodicSyncInfo) error {
	if err := c.need(FeatPASTSender, FeatPASTRecipient); err != nil {
		return err
	}
	ctx, err := c.startLocal(ProcPeriodicSync)
	if err != nil {
		return err
	}
	ctx.data.sync = info
	c.lrEnqueue(ctx)
	return nil
}

// ConnUpdate asks for new connection parameters. The central uses the
// connection parameter request when both sides support it and updates
// directly otherwise; the peripheral always requests.
func (c *Conn) ConnUpdate(p ConnParams) error {
	if !validParams(p) {
		return ErrInvalidParam
	}
	proc := ProcConnParamReq
	if c.role == Central && !c.localHas(FeatConnParamReq) {
		proc = ProcConnUpdate
	}
	if c.role == Peripheral {
		if err := c.need(FeatConnParamReq, FeatConnParamReq); err != nil {
			return err
		}
	}
	ctx, err := c.startLocal(proc)
	if err != nil {
		return err
	}
	ctx.data.cu.params = p
	c.lrEnqueue(ctx)
	return nil
}

// waitingParams returns the remote parameter request waiting for the
// host, if any.
func (c *Conn) waitingParams() *procCtx {
	ctx := c.rr.q.peek()
	if ctx == nil || c.rr.state != rrActive || ctx.proc != ProcConnParamReq || ctx.state != cuWaitHost {
		return nil
	}
	return ctx
}

// ConnParamReply accepts the peer's request from NtfConnParamReq with
// the parameters in p.
func (c *Conn) ConnParamReply(p ConnParams) error {
	ctx := c.waitingParams()
	if ctx == nil {
		return ErrCmdDisallowed
	}
	if !validParams(p) {
		return ErrInvalidParam
	}
	c.cuReply(ctx, p, Success)
	return nil
}

// ConnParamNegReply refuses the peer's request with reason.
func (c *Conn) ConnParamNegReply(reason ErrorCode) error {
	ctx := c.waitingParams()
	if ctx == nil {
		return ErrCmdDisallowed
	}
	if reason == Success {
		reason = ErrUnacceptConnParam
	}
	c.cuReply(ctx, ConnParams{}, reason)
	return nil
}

// ChannelMapUpdate switches the data channels in use. Central only.
func (c *Conn) ChannelMapUpdate(chm [5]byte) error {
	if c.role != Central {
		return ErrCmdDisallowed
	}
	if !validChannelMap(chm) {
		return ErrInvalidParam
	}
	ctx, err := c.startLocal(ProcChannelMap)
	if err != nil {
		return err
	}
	ctx.data.chmap.ind.ChM = chm
	c.lrEnqueue(ctx)
	return nil
}
