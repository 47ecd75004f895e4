// Package msgs defines the messages of a clock device on the bus.
package msgs

import (
	"time"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/clock.go/pkg/framework"
	bmsgs "github.com/robotalks/clock.go/pkg/bus/msgs"
)

// TypeIDs
const (
	ClockStatusTypeID      = bmsgs.TypeIDKindEvent | bmsgs.GroupClock | 0x0001
	ClockStatusQueryTypeID = bmsgs.TypeIDKindCommand | bmsgs.GroupClock | 0x0001
	ClockResyncTypeID      = bmsgs.TypeIDKindCommand | bmsgs.GroupClock | 0x0002
	ClockBindTypeID        = bmsgs.TypeIDKindCommand | bmsgs.GroupClock | 0x0003
	ClockStatusReplyTypeID = bmsgs.TypeIDKindCommand | bmsgs.GroupClock | bmsgs.TypeIDMaskReply | 0x0001
)

func init() {
	for _, msg := range []bmsgs.SerializableMessage{
		(*ClockStatus)(nil),
		(*ClockStatusQuery)(nil),
		(*ClockStatusReply)(nil),
		(*ClockResync)(nil),
		(*ClockBind)(nil),
	} {
		bmsgs.MessageTypes[msg.TypeID()] = msg
	}
}

// ClockStatus reports the sync state and discipline of a clock.
// It's published when anything interesting changes.
type ClockStatus struct {
	State             string `protobuf:"bytes,1,opt,name=state,proto3" json:"state,omitempty"`
	Server            string `protobuf:"bytes,2,opt,name=server,proto3" json:"server,omitempty"`
	Addr              string `protobuf:"bytes,3,opt,name=addr,proto3" json:"addr,omitempty"`
	HasTime           bool   `protobuf:"varint,4,opt,name=has_time,json=hasTime,proto3" json:"has_time,omitempty"`
	UnixSeconds       int64  `protobuf:"varint,5,opt,name=unix_seconds,json=unixSeconds,proto3" json:"unix_seconds,omitempty"`
	RateMicros        int64  `protobuf:"varint,6,opt,name=rate_micros,json=rateMicros,proto3" json:"rate_micros,omitempty"`
	StepMicros        int64  `protobuf:"varint,7,opt,name=step_micros,json=stepMicros,proto3" json:"step_micros,omitempty"`
	PhaseErrorMicros  int64  `protobuf:"varint,8,opt,name=phase_error_micros,json=phaseErrorMicros,proto3" json:"phase_error_micros,omitempty"`
	Samples           uint64 `protobuf:"varint,9,opt,name=samples,proto3" json:"samples,omitempty"`
	RejectedRates     uint64 `protobuf:"varint,10,opt,name=rejected_rates,json=rejectedRates,proto3" json:"rejected_rates,omitempty"`
	Requests          uint64 `protobuf:"varint,11,opt,name=requests,proto3" json:"requests,omitempty"`
	Replies           uint64 `protobuf:"varint,12,opt,name=replies,proto3" json:"replies,omitempty"`
	InvalidReplies    uint64 `protobuf:"varint,13,opt,name=invalid_replies,json=invalidReplies,proto3" json:"invalid_replies,omitempty"`
	DnsFailures       uint64 `protobuf:"varint,14,opt,name=dns_failures,json=dnsFailures,proto3" json:"dns_failures,omitempty"`
	ProbeOffsetMicros int64  `protobuf:"varint,15,opt,name=probe_offset_micros,json=probeOffsetMicros,proto3" json:"probe_offset_micros,omitempty"`
	ProbeRttMicros    int64  `protobuf:"varint,16,opt,name=probe_rtt_micros,json=probeRttMicros,proto3" json:"probe_rtt_micros,omitempty"`
}

// NewMessage implements Message.
func (m *ClockStatus) NewMessage() fx.Message { return &ClockStatus{} }

// TypeID implements SerializableMessage.
func (m *ClockStatus) TypeID() uint32 { return ClockStatusTypeID }

// Serializable implements SerializableMessage.
func (m *ClockStatus) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *ClockStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ClockStatus) Reset() { *m = ClockStatus{} }

// String implements proto.Message.
func (m *ClockStatus) String() string { return proto.CompactTextString(m) }

// Time returns the reported time in seconds.
func (m *ClockStatus) Time() time.Time {
	return time.Unix(m.UnixSeconds, 0)
}

// ProbeOffset returns the offset measured by the last probe.
func (m *ClockStatus) ProbeOffset() time.Duration {
	return time.Duration(m.ProbeOffsetMicros) * time.Microsecond
}

// ClockStatusQuery asks for a ClockStatusReply.
type ClockStatusQuery struct {
}

// NewMessage implements Message.
func (m *ClockStatusQuery) NewMessage() fx.Message { return &ClockStatusQuery{} }

// TypeID implements SerializableMessage.
func (m *ClockStatusQuery) TypeID() uint32 { return ClockStatusQueryTypeID }

// Serializable implements SerializableMessage.
func (m *ClockStatusQuery) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *ClockStatusQuery) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ClockStatusQuery) Reset() { *m = ClockStatusQuery{} }

// String implements proto.Message.
func (m *ClockStatusQuery) String() string { return proto.CompactTextString(m) }

// ClockStatusReply replies ClockStatusQuery.
type ClockStatusReply struct {
	Status *ClockStatus `protobuf:"bytes,1,opt,name=status,proto3" json:"status,omitempty"`
}

// NewMessage implements Message.
func (m *ClockStatusReply) NewMessage() fx.Message { return &ClockStatusReply{} }

// TypeID implements SerializableMessage.
func (m *ClockStatusReply) TypeID() uint32 { return ClockStatusReplyTypeID }

// Serializable implements SerializableMessage.
func (m *ClockStatusReply) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *ClockStatusReply) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ClockStatusReply) Reset() { *m = ClockStatusReply{} }

// String implements proto.Message.
func (m *ClockStatusReply) String() string { return proto.CompactTextString(m) }

// ClockResync requests a sample right away.
type ClockResync struct {
}

// NewMessage implements Message.
func (m *ClockResync) NewMessage() fx.Message { return &ClockResync{} }

// TypeID implements SerializableMessage.
func (m *ClockResync) TypeID() uint32 { return ClockResyncTypeID }

// Serializable implements SerializableMessage.
func (m *ClockResync) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *ClockResync) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ClockResync) Reset() { *m = ClockResync{} }

// String implements proto.Message.
func (m *ClockResync) String() string { return proto.CompactTextString(m) }

// ClockBind switches the time server.
type ClockBind struct {
	Server string `protobuf:"bytes,1,opt,name=server,proto3" json:"server,omitempty"`
}

// NewMessage implements Message.
func (m *ClockBind) NewMessage() fx.Message { return &ClockBind{} }

// TypeID implements SerializableMessage.
func (m *ClockBind) TypeID() uint32 { return ClockBindTypeID }

// Serializable implements SerializableMessage.
func (m *ClockBind) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *ClockBind) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ClockBind) Reset() { *m = ClockBind{} }

// String implements proto.Message.
func (m *ClockBind) String() string { return proto.CompactTextString(m) }
