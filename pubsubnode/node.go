// Package pubsubnode provides an in-process reference implementation of
// the recorder.Node interface: a topic broker usable by tests, demos, and
// local publishers without any real socket transport. The spec treats the
// transport node's actual socket I/O as an external collaborator (out of
// scope for this module); this package stands in for it.
package pubsubnode

import (
	"sync"

	"github.com/jki757/topicrecorder/recorder"
)

type options struct {
	partition string
}

func (o options) Partition() string { return o.partition }

type subscription struct {
	cb   recorder.RawCallback
	msgs chan deliveredMessage
}

type deliveredMessage struct {
	data []byte
	info recorder.MessageInfo
}

// Node is a goroutine-safe, in-process stand-in for a real transport node.
type Node struct {
	opts options

	mu   sync.RWMutex
	subs map[string][]*subscription
}

// New constructs a Node configured with the given partition.
func New(partition string) *Node {
	return &Node{
		opts: options{partition: partition},
		subs: make(map[string][]*subscription),
	}
}

// Options returns the node's configuration.
func (n *Node) Options() recorder.NodeOptions { return n.opts }

// SubscribeRaw registers cb to be invoked, on its own delivery goroutine,
// once per message published to topic. Each subscription gets its own
// goroutine and buffered channel so that messages within a subscription
// are delivered in the order Publish was called, matching the spec's
// per-subscription ordering guarantee.
func (n *Node) SubscribeRaw(topic string, cb recorder.RawCallback) bool {
	if topic == "" || cb == nil {
		return false
	}

	sub := &subscription{cb: cb, msgs: make(chan deliveredMessage, 64)}
	go func() {
		for m := range sub.msgs {
			sub.cb(m.data, m.info)
		}
	}()

	n.mu.Lock()
	n.subs[topic] = append(n.subs[topic], sub)
	n.mu.Unlock()

	return true
}

// TopicList reports every topic with at least one active subscription.
func (n *Node) TopicList(out *[]string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	topics := make([]string, 0, len(n.subs))
	for topic := range n.subs {
		topics = append(topics, topic)
	}
	*out = topics
}

// Publish delivers data to every subscription registered on topic at the
// time of the call. It is a test/demo helper, not part of the spec's Node
// interface — a real transport node would deliver bytes that arrived over
// the network instead.
func (n *Node) Publish(topic, typeName string, data []byte) {
	n.mu.RLock()
	subs := append([]*subscription(nil), n.subs[topic]...)
	n.mu.RUnlock()

	info := recorder.MessageInfo{Topic: topic, TypeName: typeName}
	for _, sub := range subs {
		sub.msgs <- deliveredMessage{data: data, info: info}
	}
}
