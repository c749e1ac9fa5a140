package sim

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/XC-/llcp"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func newLink(t *testing.T) *Link {
	t.Helper()
	l, err := New(llcp.DefaultConfig(), llcp.DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	return l
}

func TestScenarios(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			l := newLink(t)
			if err := l.RunScenario(name); err != nil {
				t.Errorf("%v", err)
			}
			if !l.Idle() {
				t.Errorf("link busy after scenario")
			}
		})
	}
}

func TestUnknownScenario(t *testing.T) {
	if err := newLink(t).RunScenario("warp"); err == nil {
		t.Errorf("got nil error")
	}
}

func TestEncryptionEndToEnd(t *testing.T) {
	l := newLink(t)
	ltk := testLTK
	l.Peripheral.LTK = &ltk

	var pdus []string
	dataAt := -1
	l.OnRecord = func(r Record) {
		switch r.Kind {
		case RecordPDU:
			pdus = append(pdus, r.String())
		case RecordData:
			dataAt = len(pdus)
		}
	}
	if err := l.Central.Conn.EncryptionStart(testRand, testEDIV, ltk); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Data queued now must wait for the new key.
	l.Central.Conn.EnqueueData([]byte{0x01})
	if _, err := l.RunUntilIdle(maxEvents); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := encrypted(l); err != nil {
		t.Errorf("%v", err)
	}

	want := []string{"LL_ENC_REQ", "LL_ENC_RSP", "LL_START_ENC_REQ", "LL_START_ENC_RSP", "LL_START_ENC_RSP"}
	if len(pdus) != len(want) {
		t.Fatalf("pdus: got %d %q want %d", len(pdus), pdus, len(want))
	}
	for i := range want {
		if !strings.Contains(pdus[i], want[i]) {
			t.Errorf("pdu %d: got %q want %s", i, pdus[i], want[i])
		}
	}
	if dataAt != len(want) {
		t.Errorf("data sent after %d control pdus: want %d", dataAt, len(want))
	}
}

func TestPHYUpdateTrace(t *testing.T) {
	l := newLink(t)
	var trace []Record
	l.OnRecord = func(r Record) { trace = append(trace, r) }
	if err := l.RunScenario("phy"); err != nil {
		t.Fatalf("%v", err)
	}

	var ind, ntf *Record
	for i := range trace {
		r := &trace[i]
		if r.Kind == RecordPDU && r.Raw[0] == 0x18 && ind == nil {
			ind = r
		}
		if r.Kind == RecordNtf && ntf == nil {
			ntf = r
		}
	}
	if ind == nil || ntf == nil {
		t.Fatalf("trace: got %v", trace)
	}
	if ind.Side != llcp.Central {
		t.Errorf("update ind sent by %s", ind.Side)
	}
	instant := uint16(ind.Raw[3]) | uint16(ind.Raw[4])<<8
	if ntf.Counter != instant {
		t.Errorf("ntf at %d: want instant %d", ntf.Counter, instant)
	}
}

func TestCollisionNotifications(t *testing.T) {
	l := newLink(t)
	if err := l.RunScenario("collide"); err != nil {
		t.Fatalf("%v", err)
	}
	if n := len(l.Central.Notifications); n != 1 {
		t.Errorf("central notifications: got %d want 1", n)
	}
	if n, _ := l.Peripheral.Last(llcp.NtfPHYUpdate); n.TxPHY != llcp.PHY2M || n.RxPHY != llcp.PHY2M {
		t.Errorf("peripheral phy: got %d/%d want 2/2", n.TxPHY, n.RxPHY)
	}
}

func TestRunUntilIdleBusy(t *testing.T) {
	l := newLink(t)
	if err := l.Central.Conn.PHYUpdate(llcp.PHY2M, llcp.PHY2M); err != nil {
		t.Fatalf("phy update: %v", err)
	}
	n, err := l.RunUntilIdle(2)
	if err == nil || n != 2 {
		t.Errorf("got %d, %v want 2 and an error", n, err)
	}
	if l.Counter() != 2 {
		t.Errorf("counter: got %d want 2", l.Counter())
	}
	if n, err := l.RunUntilIdle(maxEvents); err != nil || n == 0 {
		t.Errorf("resume: got %d, %v", n, err)
	}
}

func TestSessionID(t *testing.T) {
	a, b := newLink(t), newLink(t)
	if a.ID == uuid.Nil || a.ID == b.ID {
		t.Errorf("ids: got %s and %s", a.ID, b.ID)
	}
}

func TestNewRejectsConfig(t *testing.T) {
	bad := llcp.DefaultConfig()
	bad.TxBuffers = 0
	if _, err := New(llcp.DefaultConfig(), bad, testLogger()); err == nil || !strings.Contains(err.Error(), "peripheral") {
		t.Errorf("got %v want peripheral error", err)
	}
}

func TestLoadConfigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.toml")
	body := `
[central]
tx_buffers = 2
preferred_tx_phys = 1

[peripheral]
company_id = 0x0059
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, p, err := LoadConfigs(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.TxBuffers != 2 || c.PreferredTxPHY != llcp.PHY1M {
		t.Errorf("central: got %+v", c)
	}
	if p.CompanyID != 0x0059 || p.TxBuffers != llcp.DefaultConfig().TxBuffers {
		t.Errorf("peripheral: got %+v", p)
	}

	if err := os.WriteFile(path, []byte("[central]\ntx_bufers = 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := LoadConfigs(path); err == nil {
		t.Errorf("unknown key: got nil error")
	}
}

func TestRecordString(t *testing.T) {
	for _, tt := range []struct {
		r    Record
		want string
	}{
		{Record{Counter: 3, Kind: RecordPDU, Side: llcp.Central, Raw: []byte{0x12}}, "LL_PING_REQ"},
		{Record{Counter: 3, Kind: RecordData, Side: llcp.Peripheral, Raw: []byte{0xAA}}, "data [ AA ]"},
		{Record{Counter: 3, Kind: RecordPDU, Side: llcp.Central, Raw: []byte{0xEE}}, "pdu [ EE ]"},
		{Record{Kind: RecordNtf, Ntf: llcp.Notification{Kind: llcp.NtfTerminated, Status: llcp.ErrLocalHostTerm}}, "ntf"},
	} {
		if got := tt.r.String(); !strings.Contains(got, tt.want) {
			t.Errorf("got %q want it to contain %q", got, tt.want)
		}
	}
}
