package sim

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/XC-/llcp"
)

// maxEvents bounds every scenario.
const maxEvents = 64

// Scenario drives a link through one procedure and checks the outcome.
type Scenario func(*Link) error

// Scenarios holds every scenario by name.
var Scenarios = map[string]Scenario{
	"fex":            featureExchange,
	"vex":            versionExchange,
	"ping":           ping,
	"phy":            phyUpdate,
	"dle":            dataLength,
	"enc":            encryption,
	"pause":          encryptionPause,
	"enc-nokey":      encryptionNoKey,
	"chmap":          channelMap,
	"muc":            minUsedChannels,
	"connupd":        connUpdate,
	"connupd-reject": connUpdateRejected,
	"cte":            cteRequest,
	"past":           periodicSync,
	"collide":        phyCollision,
	"terminate":      terminate,
}

// Names returns the scenario names in order.
func Names() []string {
	names := make([]string, 0, len(Scenarios))
	for name := range Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunScenario runs the named scenario on l.
func (l *Link) RunScenario(name string) error {
	s, ok := Scenarios[name]
	if !ok {
		return errors.Errorf("unknown scenario %q", name)
	}
	return errors.Wrap(s(l), name)
}

var (
	testLTK  = [16]byte{0xBF, 0x01, 0xFB, 0x9D, 0x4E, 0xF3, 0xBC, 0x36, 0xD8, 0x74, 0xF5, 0x39, 0x41, 0x38, 0x68, 0x4C}
	testRand = [8]byte{0x90, 0x78, 0x56, 0x34, 0x12, 0xEF, 0xCD, 0xAB}
	testEDIV = uint16(0x2474)
)

// settle runs the link until it is idle.
func (l *Link) settle() error {
	_, err := l.RunUntilIdle(maxEvents)
	return err
}

// expect checks that s received exactly one notification of kind, with
// status, and returns it.
func expect(s *Side, kind llcp.NtfKind, status llcp.ErrorCode) (llcp.Notification, error) {
	if n := s.Count(kind); n != 1 {
		return llcp.Notification{}, errors.Errorf("%s: %d %s notifications, want 1", s.Conn.Role(), n, kind)
	}
	n, _ := s.Last(kind)
	if n.Status != status {
		return n, errors.Errorf("%s: %s status %v, want %v", s.Conn.Role(), kind, n.Status, status)
	}
	return n, nil
}

// quiet checks that s received no notification at all.
func quiet(s *Side) error {
	if len(s.Notifications) > 0 {
		return errors.Errorf("%s: unexpected %s", s.Conn.Role(), &s.Notifications[0])
	}
	return nil
}

func featureExchange(l *Link) error {
	if err := l.Central.Conn.FeatureExchange(); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	n, err := expect(l.Central, llcp.NtfFeatureExchange, llcp.Success)
	if err != nil {
		return err
	}
	want := l.Peripheral.Ctl.Config().Features
	if n.Features&want != want {
		return errors.Errorf("features 0x%X, want 0x%X", n.Features, want)
	}
	return quiet(l.Peripheral)
}

func versionExchange(l *Link) error {
	if err := l.Central.Conn.VersionExchange(); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	n, err := expect(l.Central, llcp.NtfVersionExchange, llcp.Success)
	if err != nil {
		return err
	}
	if cfg := l.Peripheral.Ctl.Config(); n.Version.CompID != cfg.CompanyID {
		return errors.Errorf("company 0x%04X, want 0x%04X", n.Version.CompID, cfg.CompanyID)
	}
	v, ok := l.Peripheral.Conn.RemoteVersion()
	if !ok || v.CompID != l.Central.Ctl.Config().CompanyID {
		return errors.Errorf("peripheral did not learn the central version")
	}
	return nil
}

func ping(l *Link) error {
	if err := l.Peripheral.Conn.LEPing(); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	if err := quiet(l.Central); err != nil {
		return err
	}
	return quiet(l.Peripheral)
}

func samePHY(l *Link, tx, rx uint8) error {
	ctr, crx := l.Central.Conn.PHY()
	ptx, prx := l.Peripheral.Conn.PHY()
	if ctr != tx || crx != rx || ptx != rx || prx != tx {
		return errors.Errorf("phy central %d/%d peripheral %d/%d, want central %d/%d", ctr, crx, ptx, prx, tx, rx)
	}
	return nil
}

func phyUpdate(l *Link) error {
	if err := l.Central.Conn.PHYUpdate(llcp.PHY2M, llcp.PHY2M); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	for _, s := range []*Side{l.Central, l.Peripheral} {
		if _, err := expect(s, llcp.NtfPHYUpdate, llcp.Success); err != nil {
			return err
		}
	}
	return samePHY(l, llcp.PHY2M, llcp.PHY2M)
}

func dataLength(l *Link) error {
	if err := l.Central.Conn.DataLengthUpdate(llcp.MaxOctets, llcp.MaxTime); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	for _, s := range []*Side{l.Central, l.Peripheral} {
		n, err := expect(s, llcp.NtfDataLength, llcp.Success)
		if err != nil {
			return err
		}
		if n.Length != s.Conn.DataLength() {
			return errors.Errorf("%s: notified %+v, effective %+v", s.Conn.Role(), n.Length, s.Conn.DataLength())
		}
	}
	c, p := l.Central.Conn.DataLength(), l.Peripheral.Conn.DataLength()
	if c.MaxTxOctets != p.MaxRxOctets || c.MaxRxOctets != p.MaxTxOctets {
		return errors.Errorf("lengths disagree: central %+v peripheral %+v", c, p)
	}
	return nil
}

// encrypted checks that both sides encrypt with the same session key and
// that each Rx direction matches the peer's Tx direction.
func encrypted(l *Link) error {
	for _, s := range []*Side{l.Central, l.Peripheral} {
		if tx, rx := s.Conn.Encryption(); !tx || !rx {
			return errors.Errorf("%s: encryption tx %t rx %t", s.Conn.Role(), tx, rx)
		}
	}
	ctr, crx := l.Central.Conn.CCM()
	ptx, prx := l.Peripheral.Conn.CCM()
	if ctr.Key != prx.Key || ctr.IV != prx.IV || ptx.Key != crx.Key || ptx.IV != crx.IV {
		return errors.New("session keys differ")
	}
	if ctr.Direction == crx.Direction || ctr.Direction != prx.Direction || ptx.Direction != crx.Direction {
		return errors.New("ccm directions do not pair up")
	}
	return nil
}

func startEncryption(l *Link, ltk [16]byte) error {
	l.Peripheral.LTK = &ltk
	if err := l.Central.Conn.EncryptionStart(testRand, testEDIV, ltk); err != nil {
		return err
	}
	return l.settle()
}

func encryption(l *Link) error {
	if err := startEncryption(l, testLTK); err != nil {
		return err
	}
	if _, err := expect(l.Central, llcp.NtfEncChange, llcp.Success); err != nil {
		return err
	}
	n, err := expect(l.Peripheral, llcp.NtfLTKRequest, llcp.Success)
	if err != nil {
		return err
	}
	if n.Rand != testRand || n.EDIV != testEDIV {
		return errors.Errorf("ltk request rand % X ediv 0x%04X", n.Rand, n.EDIV)
	}
	if _, err := expect(l.Peripheral, llcp.NtfEncChange, llcp.Success); err != nil {
		return err
	}
	return encrypted(l)
}

func encryptionPause(l *Link) error {
	if err := startEncryption(l, testLTK); err != nil {
		return err
	}
	before, _ := l.Central.Conn.CCM()

	next := testLTK
	next[0] ^= 0xFF
	l.Peripheral.LTK = &next
	if err := l.Central.Conn.EncryptionPause(testRand, testEDIV, next); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	for _, s := range []*Side{l.Central, l.Peripheral} {
		if _, err := expect(s, llcp.NtfEncKeyRefresh, llcp.Success); err != nil {
			return err
		}
	}
	if after, _ := l.Central.Conn.CCM(); after.Key == before.Key {
		return errors.New("session key not refreshed")
	}
	return encrypted(l)
}

func encryptionNoKey(l *Link) error {
	if err := l.Central.Conn.EncryptionStart(testRand, testEDIV, testLTK); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	if _, err := expect(l.Central, llcp.NtfEncChange, llcp.ErrPINOrKeyMissing); err != nil {
		return err
	}
	if tx, rx := l.Central.Conn.Encryption(); tx || rx {
		return errors.New("central encrypts without a key")
	}
	if tx, rx := l.Peripheral.Conn.Encryption(); tx || rx {
		return errors.New("peripheral encrypts without a key")
	}
	return nil
}

func channelMap(l *Link) error {
	chm := [5]byte{0xFF, 0x00, 0xFF, 0x00, 0x1F}
	if err := l.Central.Conn.ChannelMapUpdate(chm); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	if got := l.Central.Conn.ChannelMap(); got != chm {
		return errors.Errorf("central map % X", got)
	}
	if got := l.Peripheral.Conn.ChannelMap(); got != chm {
		return errors.Errorf("peripheral map % X", got)
	}
	return nil
}

func minUsedChannels(l *Link) error {
	if err := l.Peripheral.Conn.SendMinUsedChannels(llcp.PHY1M|llcp.PHY2M, 4); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	if phys, n := l.Central.Conn.MinUsedChannels(); phys != llcp.PHY1M|llcp.PHY2M || n != 4 {
		return errors.Errorf("central min used channels %d on 0x%02X", n, phys)
	}
	return nil
}

var updateParams = llcp.ConnParams{IntervalMin: 24, IntervalMax: 40, Latency: 0, Timeout: 500}

func connUpdate(l *Link) error {
	if err := l.Central.Conn.ConnUpdate(updateParams); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	if _, err := expect(l.Peripheral, llcp.NtfConnParamReq, llcp.Success); err != nil {
		return err
	}
	for _, s := range []*Side{l.Central, l.Peripheral} {
		if _, err := expect(s, llcp.NtfConnUpdate, llcp.Success); err != nil {
			return err
		}
	}
	c, p := l.Central.Conn.Params(), l.Peripheral.Conn.Params()
	if c.Interval != p.Interval || c.Timeout != updateParams.Timeout || p.Timeout != updateParams.Timeout {
		return errors.Errorf("params central %+v peripheral %+v", c, p)
	}
	return nil
}

func connUpdateRejected(l *Link) error {
	l.Central.RejectParams = true
	before := l.Peripheral.Conn.Params()
	if err := l.Peripheral.Conn.ConnUpdate(updateParams); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	if _, err := expect(l.Peripheral, llcp.NtfConnUpdate, llcp.ErrUnacceptConnParam); err != nil {
		return err
	}
	if after := l.Peripheral.Conn.Params(); after != before {
		return errors.Errorf("params changed to %+v", after)
	}
	return nil
}

func cteRequest(l *Link) error {
	if err := l.Peripheral.Conn.CTEResponseEnable(true, llcp.CTEMaskAoA|llcp.CTEMaskAoD1us); err != nil {
		return err
	}
	if err := l.Central.Conn.CTERequest(20, llcp.CTETypeAoD1us); err != nil {
		return err
	}
	if err := l.Central.Conn.CTERequest(20, llcp.CTETypeAoD2us); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	if n := l.Central.Count(llcp.NtfCTE); n != 2 {
		return errors.Errorf("%d cte notifications, want 2", n)
	}
	first, second := l.Central.Notifications[0], l.Central.Notifications[1]
	if first.Status != llcp.Success || second.Status != llcp.ErrUnsuppLLParamVal {
		return errors.Errorf("cte status %v then %v", first.Status, second.Status)
	}
	return nil
}

func periodicSync(l *Link) error {
	info := llcp.PeriodicSyncInfo{
		ID:                 7,
		LastPAEventCounter: 100,
		SIDATypeSCA:        0x03,
		PHY:                llcp.PHY1M,
		AdvA:               [6]byte{0xC0, 0xFF, 0xEE, 0x00, 0x11, 0x22},
	}
	if err := l.Central.Conn.PeriodicSyncTransfer(info); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	n, err := expect(l.Peripheral, llcp.NtfPeriodicSync, llcp.Success)
	if err != nil {
		return err
	}
	if n.Sync.ID != info.ID || n.Sync.AdvA != info.AdvA || n.Sync.SID() != 3 {
		return errors.Errorf("sync %+v", n.Sync)
	}
	return nil
}

// phyCollision starts a PHY update on both sides in the same event. The
// central wins; the peripheral learns of the collision and then follows
// the central's update.
func phyCollision(l *Link) error {
	if err := l.Central.Conn.PHYUpdate(llcp.PHY2M, llcp.PHY2M); err != nil {
		return err
	}
	if err := l.Peripheral.Conn.PHYUpdate(llcp.PHY2M, llcp.PHY2M); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	if _, err := expect(l.Central, llcp.NtfPHYUpdate, llcp.Success); err != nil {
		return err
	}
	p := l.Peripheral.Notifications
	if len(p) != 2 || p[0].Kind != llcp.NtfPHYUpdate || p[0].Status != llcp.ErrLLProcCollision ||
		p[1].Kind != llcp.NtfPHYUpdate || p[1].Status != llcp.Success {
		return errors.Errorf("peripheral notifications %v", p)
	}
	return samePHY(l, llcp.PHY2M, llcp.PHY2M)
}

func terminate(l *Link) error {
	if err := l.Peripheral.Conn.Terminate(llcp.ErrRemoteUserTerm); err != nil {
		return err
	}
	if err := l.settle(); err != nil {
		return err
	}
	if _, err := expect(l.Peripheral, llcp.NtfTerminated, llcp.ErrLocalHostTerm); err != nil {
		return err
	}
	if reason, ok := l.Central.Conn.TerminateReason(); !ok || reason != llcp.ErrRemoteUserTerm {
		return errors.Errorf("central terminate reason %v", reason)
	}
	if !l.Central.Conn.Terminated() || !l.Peripheral.Conn.Terminated() {
		return errors.New("link still up")
	}
	return quiet(l.Central)
}
