package llcp

// lrState is the state of the local request machine, which runs the
// procedures started by the host one at a time.
type lrState uint8

const (
	lrDisconnected lrState = iota
	lrIdle
	lrActive
)

var lrStateName = map[lrState]string{
	lrDisconnected: "disconnected",
	lrIdle:         "idle",
	lrActive:       "active",
}

func (s lrState) String() string { return lrStateName[s] }

// lrEnqueue appends a host-initiated procedure. It starts on the next run.
func (c *Conn) lrEnqueue(ctx *procCtx) {
	c.lr.q.push(ctx)
	c.log.Debugf("local %s: queued", ctx.proc)
}

// lrBlocked reports whether ctx must wait for a remote procedure with an
// instant to finish before it may put its first PDU on the wire.
func (c *Conn) lrBlocked(ctx *procCtx) bool {
	if ctx.sent || !ctx.proc.withInstant() {
		return false
	}
	r := c.rr.q.peek()
	return r != nil && c.rr.state == rrActive && r.proc.withInstant()
}

func (c *Conn) lrRun() {
	ctx := c.lr.q.peek()
	if ctx == nil {
		return
	}
	if ctx.done {
		c.lrCheckDone()
		return
	}
	switch c.lr.state {
	case lrIdle:
		if c.lrBlocked(ctx) {
			ctx.paused = true
			return
		}
		ctx.paused = false
		c.lr.state = lrActive
		c.log.Debugf("local %s: start", ctx.proc)
		c.procRun(ctx)
	case lrActive:
		if c.lrBlocked(ctx) {
			ctx.paused = true
			return
		}
		ctx.paused = false
		c.procRun(ctx)
	default:
		return
	}
	c.lrCheckDone()
}

// lrCheckDone retires the head procedure once it is done and its last Tx
// node has been acknowledged. The next one starts on the following run.
func (c *Conn) lrCheckDone() {
	ctx := c.lr.q.peek()
	if ctx == nil || c.lr.state != lrActive || !ctx.done || ctx.node != nil {
		return
	}
	c.lr.q.pop()
	c.ctl.releaseCtx(ctx)
	c.lr.state = lrIdle
}

// lrAbort releases every local context, queued or running.
func (c *Conn) lrAbort() {
	for _, ctx := range c.lr.q.drain() {
		c.ctl.releaseCtx(ctx)
	}
	if c.lr.state == lrActive {
		c.lr.state = lrIdle
	}
}
