package pdu

// Opcode is the first octet of an LL control PDU.
type Opcode uint8

const (
	ConnUpdateInd        Opcode = 0x00
	ChannelMapInd        Opcode = 0x01
	TerminateInd         Opcode = 0x02
	EncReq               Opcode = 0x03
	EncRsp               Opcode = 0x04
	StartEncReq          Opcode = 0x05
	StartEncRsp          Opcode = 0x06
	UnknownRsp           Opcode = 0x07
	FeatureReq           Opcode = 0x08
	FeatureRsp           Opcode = 0x09
	PauseEncReq          Opcode = 0x0A
	PauseEncRsp          Opcode = 0x0B
	VersionInd           Opcode = 0x0C
	RejectInd            Opcode = 0x0D
	PeripheralFeatureReq Opcode = 0x0E
	ConnParamReq         Opcode = 0x0F
	ConnParamRsp         Opcode = 0x10
	RejectExtInd         Opcode = 0x11
	PingReq              Opcode = 0x12
	PingRsp              Opcode = 0x13
	LengthReq            Opcode = 0x14
	LengthRsp            Opcode = 0x15
	PHYReq               Opcode = 0x16
	PHYRsp               Opcode = 0x17
	PHYUpdateInd         Opcode = 0x18
	MinUsedChanInd       Opcode = 0x19
	CTEReq               Opcode = 0x1A
	CTERsp               Opcode = 0x1B
	PeriodicSyncInd      Opcode = 0x1C

	// OpcodeNone marks "no opcode expected" in procedure bookkeeping.
	// It is not a valid wire value.
	OpcodeNone Opcode = 0xFF
)

var opName = map[Opcode]string{
	ConnUpdateInd:        "LL_CONNECTION_UPDATE_IND",
	ChannelMapInd:        "LL_CHANNEL_MAP_IND",
	TerminateInd:         "LL_TERMINATE_IND",
	EncReq:               "LL_ENC_REQ",
	EncRsp:               "LL_ENC_RSP",
	StartEncReq:          "LL_START_ENC_REQ",
	StartEncRsp:          "LL_START_ENC_RSP",
	UnknownRsp:           "LL_UNKNOWN_RSP",
	FeatureReq:           "LL_FEATURE_REQ",
	FeatureRsp:           "LL_FEATURE_RSP",
	PauseEncReq:          "LL_PAUSE_ENC_REQ",
	PauseEncRsp:          "LL_PAUSE_ENC_RSP",
	VersionInd:           "LL_VERSION_IND",
	RejectInd:            "LL_REJECT_IND",
	PeripheralFeatureReq: "LL_PERIPHERAL_FEATURE_REQ",
	ConnParamReq:         "LL_CONNECTION_PARAM_REQ",
	ConnParamRsp:         "LL_CONNECTION_PARAM_RSP",
	RejectExtInd:         "LL_REJECT_EXT_IND",
	PingReq:              "LL_PING_REQ",
	PingRsp:              "LL_PING_RSP",
	LengthReq:            "LL_LENGTH_REQ",
	LengthRsp:            "LL_LENGTH_RSP",
	PHYReq:               "LL_PHY_REQ",
	PHYRsp:               "LL_PHY_RSP",
	PHYUpdateInd:         "LL_PHY_UPDATE_IND",
	MinUsedChanInd:       "LL_MIN_USED_CHANNELS_IND",
	CTEReq:               "LL_CTE_REQ",
	CTERsp:               "LL_CTE_RSP",
	PeriodicSyncInd:      "LL_PERIODIC_SYNC_IND",
	OpcodeNone:           "none",
}

func (op Opcode) String() string {
	if s, ok := opName[op]; ok {
		return s
	}
	return "LL_UNKNOWN"
}

// Known reports whether op is a control opcode this package can decode.
func (op Opcode) Known() bool {
	_, ok := factory[op]
	return ok
}
