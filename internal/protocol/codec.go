package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"devicehub-backend/internal/model"
)

// Frame delimiter of the device wire protocol. Fields are ASCII tokens
// separated by single null bytes: "<cmd>\x00<pin>[\x00<value>]".
const Delimiter = "\x00"

// Known command tokens.
const (
	CmdVirtualWrite = "vw"
	CmdVirtualRead  = "vr"
	CmdDigitalWrite = "dw"
	CmdDigitalRead  = "dr"
)

// ErrMalformedFrame is returned when a frame cannot be decoded. The caller is
// expected to drop the frame and keep the connection open.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

var (
	cmdRe   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	intRe   = regexp.MustCompile(`^-?\d+$`)
	floatRe = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// Frame is one decoded unit of the wire protocol.
type Frame struct {
	Command  string
	Pin      int
	Value    string
	HasValue bool
}

// IsWrite reports whether the frame carries a value to apply.
func (f Frame) IsWrite() bool {
	return f.HasValue
}

// Encode builds a write frame: "<cmd>\x00<pin>\x00<value>".
func Encode(command string, pin int, value string) []byte {
	return []byte(command + Delimiter + strconv.Itoa(pin) + Delimiter + value)
}

// EncodeRead builds a read request frame: "<cmd>\x00<pin>".
func EncodeRead(command string, pin int) []byte {
	return []byte(command + Delimiter + strconv.Itoa(pin))
}

// Decode parses a raw frame into its parts. It accepts the four core commands
// plus any generic passthrough token; everything else is ErrMalformedFrame.
func Decode(raw []byte) (Frame, error) {
	parts := strings.Split(string(raw), Delimiter)
	if len(parts) < 2 || len(parts) > 3 {
		return Frame{}, fmt.Errorf("%w: expected 2 or 3 fields, got %d", ErrMalformedFrame, len(parts))
	}

	cmd := parts[0]
	if cmd == "" || !cmdRe.MatchString(cmd) {
		return Frame{}, fmt.Errorf("%w: invalid command token %q", ErrMalformedFrame, cmd)
	}

	pin, err := strconv.Atoi(parts[1])
	if err != nil || pin < 0 {
		return Frame{}, fmt.Errorf("%w: invalid pin %q", ErrMalformedFrame, parts[1])
	}

	frame := Frame{Command: cmd, Pin: pin}
	if len(parts) == 3 {
		frame.Value = parts[2]
		frame.HasValue = true
	}

	// Read commands carry no value; write commands must carry one.
	switch cmd {
	case CmdVirtualRead, CmdDigitalRead:
		if frame.HasValue {
			return Frame{}, fmt.Errorf("%w: read command %q with value", ErrMalformedFrame, cmd)
		}
	case CmdVirtualWrite, CmdDigitalWrite:
		if !frame.HasValue {
			return Frame{}, fmt.Errorf("%w: write command %q without value", ErrMalformedFrame, cmd)
		}
	}

	return frame, nil
}

// InferDataType classifies a raw string value that arrived without an explicit
// type. The same rule applies to HTTP ingest and inbound socket frames.
func InferDataType(raw string) model.PinDataType {
	switch {
	case raw == "true" || raw == "false":
		return model.DataTypeBoolean
	case intRe.MatchString(raw):
		return model.DataTypeInteger
	case floatRe.MatchString(raw):
		return model.DataTypeFloat
	default:
		return model.DataTypeString
	}
}

// ParseDataType maps an explicit client-supplied type name onto a PinDataType,
// falling back to inference when the name is empty or unrecognized.
func ParseDataType(name, rawValue string) model.PinDataType {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case string(model.DataTypeString):
		return model.DataTypeString
	case string(model.DataTypeInteger):
		return model.DataTypeInteger
	case string(model.DataTypeFloat):
		return model.DataTypeFloat
	case string(model.DataTypeBoolean):
		return model.DataTypeBoolean
	default:
		return InferDataType(rawValue)
	}
}
