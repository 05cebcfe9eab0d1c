package mimewatch

import (
	"encoding/binary"
	"fmt"

	"github.com/aknrt/mimewatch/internal/wire"
)

// OptAction is the bitmask of mutation actions the MTA offers.
type OptAction uint32

const (
	OptAddHeaders       OptAction = 0x01
	OptChangeBody       OptAction = 0x02
	OptAddRecipients    OptAction = 0x04
	OptDeleteRecipients OptAction = 0x08
	OptQuarantine       OptAction = 0x10
	OptReplaceHeaders   OptAction = 0x20
	OptChangeReply      OptAction = 0x40
)

// OptProtocol is the bitmask of transaction events the MTA proposes to
// withhold.
type OptProtocol uint32

const (
	OptNoConnect OptProtocol = 0x01
	OptNoHelo    OptProtocol = 0x02
	OptNoEnvFrom OptProtocol = 0x04
	OptNoEnvRcpt OptProtocol = 0x08
	OptNoBody    OptProtocol = 0x10
	OptNoHeaders OptProtocol = 0x20
	OptNoUnknown OptProtocol = 0x40
	OptNoData    OptProtocol = 0x80
)

var actionNames = []struct {
	bit  OptAction
	name string
}{
	{OptAddHeaders, "ADD_HEADERS"},
	{OptChangeBody, "CHANGE_BODY"},
	{OptAddRecipients, "ADD_RECIPIENTS"},
	{OptDeleteRecipients, "DELETE_RECIPIENTS"},
	{OptQuarantine, "QUARANTINE"},
	{OptReplaceHeaders, "REPLACE_HEADERS"},
	{OptChangeReply, "CHANGE_REPLY"},
}

var protocolNames = []struct {
	bit  OptProtocol
	name string
}{
	{OptNoConnect, "NO_CONNECT"},
	{OptNoHelo, "NO_HELO"},
	{OptNoEnvFrom, "NO_ENVFROM"},
	{OptNoEnvRcpt, "NO_ENVRCPT"},
	{OptNoBody, "NO_BODY"},
	{OptNoHeaders, "NO_HDRS"},
	{OptNoUnknown, "NO_UNKNOWN"},
	{OptNoData, "NO_DATA"},
}

// negotiation is the decoded OPTNEG triple. It is not kept past the
// handshake.
type negotiation struct {
	Version  uint32
	Actions  OptAction
	Protocol OptProtocol
}

// decodeOptNeg parses an OPTNEG payload: three big-endian 32-bit fields.
func decodeOptNeg(data []byte) (negotiation, error) {
	if len(data) < 12 {
		return negotiation{}, fmt.Errorf("mimewatch: optneg: payload too short: %d bytes", len(data))
	}
	return negotiation{
		Version:  binary.BigEndian.Uint32(data[0:4]),
		Actions:  OptAction(binary.BigEndian.Uint32(data[4:8])),
		Protocol: OptProtocol(binary.BigEndian.Uint32(data[8:12])),
	}, nil
}

// describe lists the version and every set bit of both masks.
func (n negotiation) describe() []string {
	lines := []string{fmt.Sprintf("optneg: version=%d actions=0x%02x protocol=0x%02x", n.Version, uint32(n.Actions), uint32(n.Protocol))}
	for _, a := range actionNames {
		if n.Actions&a.bit != 0 {
			lines = append(lines, "optneg: action "+a.name)
		}
	}
	for _, p := range protocolNames {
		if n.Protocol&p.bit != 0 {
			lines = append(lines, "optneg: protocol "+p.name)
		}
	}
	return lines
}

// response echoes version and actions and clears NO_BODY and NO_HDRS in
// the protocol mask: the MTA must send us header and body frames, or
// there is nothing to report on.
func (n negotiation) response() *Response {
	payload := make([]byte, 0, 12)
	payload = binary.BigEndian.AppendUint32(payload, n.Version)
	payload = binary.BigEndian.AppendUint32(payload, uint32(n.Actions))
	payload = binary.BigEndian.AppendUint32(payload, uint32(n.Protocol&^(OptNoBody|OptNoHeaders)))
	return newResponse(wire.CodeOptNeg, payload)
}
