// Package llcp implements the Link Layer Control Procedures of a Bluetooth
// Low Energy controller.
//
// LLCP is the protocol the two ends of a BLE connection use to agree on
// the state of the link: features and versions, PHYs, data lengths,
// connection parameters, channel maps, encryption, constant tone
// extensions, periodic sync transfer and termination.
//
// STATUS
//
// The engine runs every procedure of Core 5.3 in both the central and the
// peripheral role, with collision resolution between local and remote
// procedures. It does not drive a radio: the caller supplies connection
// events and carries PDUs.
//
// SETUP
//
// A Controller owns the shared pools of Tx buffers, notification buffers
// and procedure contexts. Options set their sizes:
//
//     ctl, err := llcp.New(
//         llcp.WithTxBuffers(4),
//         llcp.WithLogger(log),
//     )
//
// A TOML file in the Config schema can be loaded with LoadConfig and
// passed with WithConfig. The log level may be overridden with the
// LLCP_LOG_LEVEL environment variable.
//
// USAGE
//
// Every connection gets a Conn:
//
//     c, err := ctl.Connect(0x0001, llcp.Central)
//
// The host starts procedures on it. These calls only queue work:
//
//     c.FeatureExchange()
//     c.PHYUpdate(llcp.PHY2M, llcp.PHY2M)
//
// The link layer scheduler drives the connection around every
// connection event:
//
//     c.OnEventPrepare(counter)
//     for tx := c.TxDequeue(); tx != nil; tx = c.TxDequeue() {
//         radio.Send(tx.Raw)
//         // once acknowledged
//         c.OnTxAck(tx)
//     }
//     c.OnRx(pdu)  // for each control PDU received
//     c.OnEventDone()
//
// Outcomes reach the host as notifications, which must be released:
//
//     for n := ctl.Notification(); n != nil; n = ctl.Notification() {
//         fmt.Println(n)
//         ctl.ReleaseNotification(n)
//     }
//
// Some notifications ask the host for a decision. LTK requests are
// answered with LTKReqReply or LTKReqNegReply; connection parameter
// requests with ConnParamReply or ConnParamNegReply. The procedure goes
// on during the next connection event.
//
// The llcpsim program in examples/ joins two engines back to back and
// runs every procedure between them.
//
// REFERENCES
//
// Bluetooth Core Specification v5.3, Vol 6, Part B, Sections 2.4 and 5.
package llcp
