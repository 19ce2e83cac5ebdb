package recorder

import "github.com/jki757/topicrecorder/wire"

// MessageInfo describes a raw message delivered by a Node subscription.
type MessageInfo struct {
	Topic    string
	TypeName string
}

// RawCallback is invoked once per message delivered to a subscription.
type RawCallback func(data []byte, info MessageInfo)

// NodeOptions exposes the node-level configuration the recorder needs.
type NodeOptions interface {
	Partition() string
}

// Node is the transport node the recorder subscribes through. The actual
// socket I/O behind it is out of scope for this module; Node is consumed
// only through this interface.
type Node interface {
	Options() NodeOptions
	SubscribeRaw(topic string, cb RawCallback) bool
	TopicList(out *[]string)
}

// ConnectionsCb is invoked by a DiscoveryClient once per advertisement it
// observes.
type ConnectionsCb func(wire.Publisher)

// DiscoveryClient emits advertisement events to a registered callback. Its
// own socket I/O is out of scope for this module.
type DiscoveryClient interface {
	ConnectionsCb(cb ConnectionsCb)
	Start() error
	Close() error
}

// OpenMode selects how a Log is opened.
type OpenMode int

const (
	// OpenWrite opens (creating if necessary) a log for appending.
	OpenWrite OpenMode = iota
)

// Log is the durable message store the recorder appends to. Its on-disk
// format is out of scope for this module; Log is consumed only through
// this interface.
type Log interface {
	Open(path string, mode OpenMode) bool
	InsertMessage(tsUTCNs int64, topic, typeName string, payload []byte) bool
}
