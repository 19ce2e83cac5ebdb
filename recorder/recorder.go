// Package recorder implements the recorder engine: a concurrent component
// that consumes discovery advertisements, matches topics against
// user-supplied regular-expression patterns, deduplicates subscriptions,
// and durably appends received messages to a log store.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jki757/topicrecorder/topicutil"
	"github.com/jki757/topicrecorder/wire"
)

// processEpoch anchors the monotonic clock reading used to compute
// wallMinusMono. It is read once per process and never adjusted.
var processEpoch = time.Now()

func monotonicNowNs() int64 { return int64(time.Since(processEpoch)) }

// Deps are the collaborators a Recorder is constructed with. Discovery and
// Node are consumed purely through their interfaces — the recorder never
// knows whether it was wired to the real discoverynet/pubsubnode adapters
// or to a test fake.
type Deps struct {
	Discovery DiscoveryClient
	Node      Node
	// NewLog constructs a fresh Log instance each time Start is called.
	NewLog func() Log
	Logger *slog.Logger
}

// Recorder owns the log lifecycle, the pattern set, the subscription set,
// and the wall/monotonic clock offset. See SPEC_FULL.md §3 for the state
// invariants this type maintains.
type Recorder struct {
	discovery DiscoveryClient
	node      Node
	newLog    func() Log
	logger    *slog.Logger

	wallMinusMono int64 // immutable after construction

	topicMu           sync.Mutex
	patterns          []*regexp.Regexp
	alreadySubscribed map[string]struct{}

	logMu sync.Mutex
	log   Log
}

// New constructs a Recorder, computes its wall/monotonic clock offset, and
// starts the supplied discovery client with on_advertisement registered as
// its connection callback. No log is open until Start is called.
func New(deps Deps) (*Recorder, error) {
	if deps.Discovery == nil {
		return nil, errors.New("recorder: Deps.Discovery is required")
	}
	if deps.Node == nil {
		return nil, errors.New("recorder: Deps.Node is required")
	}
	if deps.NewLog == nil {
		return nil, errors.New("recorder: Deps.NewLog is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mono0 := monotonicNowNs()
	wall0 := time.Now().UnixNano()

	r := &Recorder{
		discovery:         deps.Discovery,
		node:              deps.Node,
		newLog:            deps.NewLog,
		logger:            logger,
		wallMinusMono:     wall0 - mono0,
		alreadySubscribed: make(map[string]struct{}),
	}

	deps.Discovery.ConnectionsCb(r.onAdvertisement)
	if err := deps.Discovery.Start(); err != nil {
		return nil, fmt.Errorf("recorder: start discovery client: %w", err)
	}

	return r, nil
}

// Start begins recording to path. It fails with ErrAlreadyRecording if a
// log is already open, or ErrFailedToOpen if the new log fails to open —
// in either failure case state is left unchanged.
func (r *Recorder) Start(path string) error {
	r.logMu.Lock()
	defer r.logMu.Unlock()

	if r.log != nil {
		return ErrAlreadyRecording
	}

	log := r.newLog()
	if !log.Open(path, OpenWrite) {
		return ErrFailedToOpen
	}

	r.log = log
	r.logger.Info("recording started", "path", path)
	return nil
}

// Stop closes the current log, if any. It is idempotent. Subscriptions are
// not cancelled: messages keep arriving and are silently discarded while
// no log is open.
func (r *Recorder) Stop() {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	r.stopLocked()
}

func (r *Recorder) stopLocked() {
	if r.log == nil {
		return
	}
	if closer, ok := r.log.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.logger.Warn("failed to close log cleanly", "error", err)
		}
	}
	r.log = nil
	r.logger.Info("recording stopped")
}

// Close tears the Recorder down: it stops the discovery client first (so
// no new on_advertisement calls can begin), waits for that to return, and
// only then stops the log. This closes the teardown window the spec flags
// as an open question — see SPEC_FULL.md §9.
func (r *Recorder) Close() error {
	err := r.discovery.Close()
	r.Stop()
	return err
}

// AddTopic subscribes to a single raw topic name. Idempotency at this
// entry point is the caller's responsibility; on_advertisement itself
// never double-subscribes.
func (r *Recorder) AddTopic(name string) error {
	if !r.node.SubscribeRaw(name, r.onMessageReceived) {
		return ErrFailedToSubscribe
	}

	r.topicMu.Lock()
	r.alreadySubscribed[name] = struct{}{}
	r.topicMu.Unlock()

	return nil
}

// AddTopicPattern subscribes to every currently-known topic matching
// pattern, then appends pattern to the pattern set unconditionally — even
// if zero topics matched — so future advertisements are evaluated against
// it. It returns the number of new subscriptions made, or
// ErrFailedToSubscribe if any subscription attempt failed.
func (r *Recorder) AddTopicPattern(pattern *regexp.Regexp) (int, error) {
	r.topicMu.Lock()
	defer r.topicMu.Unlock()

	var topics []string
	r.node.TopicList(&topics)

	count := 0
	for _, topic := range topics {
		if !pattern.MatchString(topic) {
			continue
		}
		if _, ok := r.alreadySubscribed[topic]; ok {
			continue
		}
		if !r.node.SubscribeRaw(topic, r.onMessageReceived) {
			return 0, ErrFailedToSubscribe
		}
		r.alreadySubscribed[topic] = struct{}{}
		count++
	}

	r.patterns = append(r.patterns, pattern)
	return count, nil
}

// onAdvertisement is invoked by the discovery client, from its own
// goroutine, once per observed advertisement.
func (r *Recorder) onAdvertisement(pub wire.Publisher) {
	advPartition, topicName := topicutil.DecomposeFullyQualifiedTopic(pub.FullyQualifiedTopic)
	if !partitionMatches(r.node.Options().Partition(), advPartition) {
		return
	}

	r.topicMu.Lock()
	defer r.topicMu.Unlock()

	if _, ok := r.alreadySubscribed[topicName]; ok {
		return
	}

	for _, pattern := range r.patterns {
		if !pattern.MatchString(topicName) {
			continue
		}
		if !r.node.SubscribeRaw(topicName, r.onMessageReceived) {
			r.logger.Warn("failed to subscribe to advertised topic", "topic", topicName)
			return
		}
		r.alreadySubscribed[topicName] = struct{}{}
		// Short-circuit after the first match: see SPEC_FULL.md §9 for why
		// this implementation pins this behavior rather than leaving it
		// ambiguous.
		break
	}
}

// partitionMatches implements the spec's offset-dependent comparison: the
// advertised partition always begins with "/"; the node's configured
// partition may or may not.
func partitionMatches(nodePartition, advPartition string) bool {
	if strings.HasPrefix(nodePartition, "/") {
		return nodePartition == advPartition
	}
	return len(advPartition) > 0 && advPartition[1:] == nodePartition
}

// onMessageReceived is invoked by the node, from a subscriber goroutine,
// once per delivered message.
func (r *Recorder) onMessageReceived(data []byte, info MessageInfo) {
	utcNs := r.wallMinusMono + monotonicNowNs()

	r.logMu.Lock()
	defer r.logMu.Unlock()

	if r.log == nil {
		return
	}
	if !r.log.InsertMessage(utcNs, info.Topic, info.TypeName, data) {
		r.logger.Warn("failed to insert message into log", "topic", info.Topic)
	}
}
