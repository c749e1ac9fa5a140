package llcp

import "fmt"

// ErrorCode is an HCI status code. It is returned by the host API and
// carried in notifications and reject PDUs.
type ErrorCode uint8

const (
	Success                ErrorCode = 0x00
	ErrUnknownConnID       ErrorCode = 0x02
	ErrPINOrKeyMissing     ErrorCode = 0x06
	ErrMemCapacityExceeded ErrorCode = 0x07
	ErrCmdDisallowed       ErrorCode = 0x0C
	ErrUnsuppFeature       ErrorCode = 0x11
	ErrInvalidParam        ErrorCode = 0x12
	ErrRemoteUserTerm      ErrorCode = 0x13
	ErrLocalHostTerm       ErrorCode = 0x16
	ErrUnsuppRemoteFeature ErrorCode = 0x1A
	ErrInvalidLLParam      ErrorCode = 0x1E
	ErrUnspecified         ErrorCode = 0x1F
	ErrUnsuppLLParamVal    ErrorCode = 0x20
	ErrLLProcCollision     ErrorCode = 0x23
	ErrLMPPDUNotAllowed    ErrorCode = 0x24
	ErrInstantPassed       ErrorCode = 0x28
	ErrDiffTransCollision  ErrorCode = 0x2A
	ErrUnacceptConnParam   ErrorCode = 0x3B
	ErrMICFailure          ErrorCode = 0x3D
)

var errName = map[ErrorCode]string{
	Success:                "success",
	ErrUnknownConnID:       "unknown connection identifier",
	ErrPINOrKeyMissing:     "PIN or key missing",
	ErrMemCapacityExceeded: "memory capacity exceeded",
	ErrCmdDisallowed:       "command disallowed",
	ErrUnsuppFeature:       "unsupported feature or parameter value",
	ErrInvalidParam:        "invalid HCI command parameters",
	ErrRemoteUserTerm:      "remote user terminated connection",
	ErrLocalHostTerm:       "connection terminated by local host",
	ErrUnsuppRemoteFeature: "unsupported remote feature",
	ErrInvalidLLParam:      "invalid LL parameters",
	ErrUnspecified:         "unspecified error",
	ErrUnsuppLLParamVal:    "unsupported LL parameter value",
	ErrLLProcCollision:     "LL procedure collision",
	ErrLMPPDUNotAllowed:    "LMP PDU not allowed",
	ErrInstantPassed:       "instant passed",
	ErrDiffTransCollision:  "different transaction collision",
	ErrUnacceptConnParam:   "unacceptable connection parameters",
	ErrMICFailure:          "connection terminated due to MIC failure",
}

func (e ErrorCode) Error() string {
	if s, ok := errName[e]; ok {
		return s
	}
	return fmt.Sprintf("hci error 0x%02X", uint8(e))
}

// rejectStatus maps a reject reason to the status reported to the host.
// A reject must never look like success.
func rejectStatus(code uint8) ErrorCode {
	if code == uint8(Success) {
		return ErrUnspecified
	}
	return ErrorCode(code)
}
