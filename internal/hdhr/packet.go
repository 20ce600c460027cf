// SPDX-License-Identifier: MIT
package hdhr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

/*
 * libhdhomerun frame layout. Header fields are big-endian, the trailing
 * CRC is little-endian:
 *
 * uint16_t  Packet type
 * uint16_t  Payload length (bytes)
 * uint8_t[] Payload data (TLV items)
 * uint32_t  CRC (Ethernet style 32-bit CRC over type, length and payload)
 */

// Packet types
const (
	TypeDiscoverReq uint16 = 0x0002
	TypeDiscoverRpy uint16 = 0x0003
)

// TLV tags carried in discovery packets
const (
	TagDeviceType    uint8 = 0x01
	TagDeviceID      uint8 = 0x02
	TagTunerCount    uint8 = 0x10
	TagLineupURL     uint8 = 0x27
	TagBaseURL       uint8 = 0x2A
	TagDeviceAuthStr uint8 = 0x2B
)

const (
	DeviceTypeWildcard uint32 = 0xFFFFFFFF
	DeviceTypeTuner    uint32 = 0x00000001
	DeviceIDWildcard   uint32 = 0xFFFFFFFF

	maxTLVLength = 0x7FFF
)

var (
	errShortPacket = errors.New("hdhr: packet too short")
	errTruncated   = errors.New("hdhr: truncated TLV")
)

// Packet is a decoded libhdhomerun frame.
type Packet struct {
	Type    uint16
	Payload []byte
}

// Marshal frames the packet and appends its CRC.
func (p Packet) Marshal() []byte {
	buf := make([]byte, 4, 4+len(p.Payload)+4)
	binary.BigEndian.PutUint16(buf[0:2], p.Type)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(p.Payload)))
	buf = append(buf, p.Payload...)
	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
}

// UnmarshalPacket parses and CRC-checks a frame.
func UnmarshalPacket(data []byte) (Packet, error) {
	if len(data) < 8 {
		return Packet{}, errShortPacket
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if len(data) < 4+length+4 {
		return Packet{}, fmt.Errorf("hdhr: packet truncated: need %d, got %d", 4+length+4, len(data))
	}
	got := binary.LittleEndian.Uint32(data[4+length:])
	if want := crc32.ChecksumIEEE(data[:4+length]); got != want {
		return Packet{}, fmt.Errorf("hdhr: CRC mismatch: got 0x%08x, expected 0x%08x", got, want)
	}
	return Packet{
		Type:    binary.BigEndian.Uint16(data[0:2]),
		Payload: append([]byte(nil), data[4:4+length]...),
	}, nil
}

// TLV is one tag-length-value item.
type TLV struct {
	Tag   uint8
	Value []byte
}

// MarshalTLVs encodes items using libhdhomerun's variable length prefix:
// one byte below 128, otherwise the low seven bits with the high bit set
// followed by the remaining bits.
func MarshalTLVs(items []TLV) []byte {
	var buf []byte
	for _, item := range items {
		n := len(item.Value)
		if n > maxTLVLength {
			n = maxTLVLength
		}
		buf = append(buf, item.Tag)
		if n < 0x80 {
			buf = append(buf, byte(n))
		} else {
			buf = append(buf, byte(n&0x7F)|0x80, byte(n>>7))
		}
		buf = append(buf, item.Value[:n]...)
	}
	return buf
}

// UnmarshalTLVs decodes a TLV payload.
func UnmarshalTLVs(payload []byte) ([]TLV, error) {
	var items []TLV
	for pos := 0; pos < len(payload); {
		if pos+2 > len(payload) {
			return nil, errTruncated
		}
		tag := payload[pos]
		n := int(payload[pos+1])
		pos += 2
		if n&0x80 != 0 {
			if pos >= len(payload) {
				return nil, errTruncated
			}
			n = n&0x7F | int(payload[pos])<<7
			pos++
		}
		if pos+n > len(payload) {
			return nil, fmt.Errorf("%w: need %d, have %d", errTruncated, n, len(payload)-pos)
		}
		items = append(items, TLV{Tag: tag, Value: append([]byte(nil), payload[pos:pos+n]...)})
		pos += n
	}
	return items, nil
}

func findTLV(items []TLV, tag uint8) ([]byte, bool) {
	for _, item := range items {
		if item.Tag == tag {
			return item.Value, true
		}
	}
	return nil, false
}

// NewDiscoverRequest builds the wildcard tuner discovery request.
func NewDiscoverRequest() Packet {
	return Packet{
		Type: TypeDiscoverReq,
		Payload: MarshalTLVs([]TLV{
			{Tag: TagDeviceType, Value: binary.BigEndian.AppendUint32(nil, DeviceTypeTuner)},
			{Tag: TagDeviceID, Value: binary.BigEndian.AppendUint32(nil, DeviceIDWildcard)},
		}),
	}
}

// BroadcastReply is the device information carried in a discovery reply.
type BroadcastReply struct {
	Address    string
	DeviceType uint32
	DeviceID   string
	TunerCount int
	BaseURL    string
	LineupURL  string
	DeviceAuth string
}

// ParseDiscoverReply decodes a discovery reply frame received from addr.
func ParseDiscoverReply(addr string, data []byte) (BroadcastReply, error) {
	pkt, err := UnmarshalPacket(data)
	if err != nil {
		return BroadcastReply{}, err
	}
	if pkt.Type != TypeDiscoverRpy {
		return BroadcastReply{}, fmt.Errorf("hdhr: unexpected packet type 0x%04x", pkt.Type)
	}
	items, err := UnmarshalTLVs(pkt.Payload)
	if err != nil {
		return BroadcastReply{}, err
	}

	r := BroadcastReply{Address: addr}
	if v, ok := findTLV(items, TagDeviceType); ok && len(v) == 4 {
		r.DeviceType = binary.BigEndian.Uint32(v)
	}
	if v, ok := findTLV(items, TagDeviceID); ok && len(v) == 4 {
		r.DeviceID = fmt.Sprintf("%08X", binary.BigEndian.Uint32(v))
	}
	if v, ok := findTLV(items, TagTunerCount); ok && len(v) == 1 {
		r.TunerCount = int(v[0])
	}
	if v, ok := findTLV(items, TagBaseURL); ok {
		r.BaseURL = string(v)
	}
	if v, ok := findTLV(items, TagLineupURL); ok {
		r.LineupURL = string(v)
	}
	if v, ok := findTLV(items, TagDeviceAuthStr); ok {
		r.DeviceAuth = string(v)
	}
	return r, nil
}

// MarshalDiscoverReply encodes r as a reply frame. Used by tests and tools
// that impersonate a tuner.
func MarshalDiscoverReply(r BroadcastReply) []byte {
	var id uint32
	_, _ = fmt.Sscanf(r.DeviceID, "%X", &id)
	items := []TLV{
		{Tag: TagDeviceType, Value: binary.BigEndian.AppendUint32(nil, DeviceTypeTuner)},
		{Tag: TagDeviceID, Value: binary.BigEndian.AppendUint32(nil, id)},
		{Tag: TagTunerCount, Value: []byte{byte(r.TunerCount)}},
	}
	if r.BaseURL != "" {
		items = append(items, TLV{Tag: TagBaseURL, Value: []byte(r.BaseURL)})
	}
	if r.LineupURL != "" {
		items = append(items, TLV{Tag: TagLineupURL, Value: []byte(r.LineupURL)})
	}
	if r.DeviceAuth != "" {
		items = append(items, TLV{Tag: TagDeviceAuthStr, Value: []byte(r.DeviceAuth)})
	}
	return Packet{Type: TypeDiscoverRpy, Payload: MarshalTLVs(items)}.Marshal()
}
