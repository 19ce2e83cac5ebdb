package recorder

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jki757/topicrecorder/wire"
)

// fakeDiscovery is a minimal DiscoveryClient test double: it records the
// registered callback and lets the test drive advertisements directly.
type fakeDiscovery struct {
	mu       sync.Mutex
	cb       ConnectionsCb
	started  bool
	closed   bool
	startErr error
}

func (f *fakeDiscovery) ConnectionsCb(cb ConnectionsCb) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

func (f *fakeDiscovery) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return f.startErr
}

func (f *fakeDiscovery) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDiscovery) fire(pub wire.Publisher) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb(pub)
}

// fakeOptions/fakeNode is a minimal Node test double.
type fakeOptions struct{ partition string }

func (o fakeOptions) Partition() string { return o.partition }

type fakeNode struct {
	mu                  sync.Mutex
	opts                fakeOptions
	topics              []string
	subscribed          map[string]RawCallback
	subscribeCalls      int // successful SubscribeRaw calls, repeats included
	failSubscribeTopics map[string]bool
}

func newFakeNode(partition string) *fakeNode {
	return &fakeNode{opts: fakeOptions{partition: partition}, subscribed: make(map[string]RawCallback)}
}

func (n *fakeNode) Options() NodeOptions { return n.opts }

func (n *fakeNode) SubscribeRaw(topic string, cb RawCallback) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failSubscribeTopics[topic] {
		return false
	}
	n.subscribed[topic] = cb
	n.subscribeCalls++
	return true
}

func (n *fakeNode) TopicList(out *[]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	*out = append([]string(nil), n.topics...)
}

func (n *fakeNode) subscribedTopics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	topics := make([]string, 0, len(n.subscribed))
	for t := range n.subscribed {
		topics = append(topics, t)
	}
	return topics
}

// fakeLog is a minimal Log test double.
type fakeLog struct {
	mu       sync.Mutex
	opened   bool
	openOK   bool
	messages []loggedMessage
	insertOK bool
}

type loggedMessage struct {
	tsUTCNs  int64
	topic    string
	typeName string
	payload  []byte
}

func newFakeLog(openOK, insertOK bool) *fakeLog {
	return &fakeLog{openOK: openOK, insertOK: insertOK}
}

func (l *fakeLog) Open(path string, mode OpenMode) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = l.openOK
	return l.openOK
}

func (l *fakeLog) InsertMessage(tsUTCNs int64, topic, typeName string, payload []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.insertOK {
		return false
	}
	l.messages = append(l.messages, loggedMessage{tsUTCNs, topic, typeName, payload})
	return true
}

func (l *fakeLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func newRecorderForTest(t *testing.T, partition string) (*Recorder, *fakeDiscovery, *fakeNode, *fakeLog) {
	t.Helper()
	disco := &fakeDiscovery{}
	node := newFakeNode(partition)
	log := newFakeLog(true, true)

	rec, err := New(Deps{
		Discovery: disco,
		Node:      node,
		NewLog:    func() Log { return log },
	})
	require.NoError(t, err)
	return rec, disco, node, log
}

func TestNew_StartsDiscoveryAndRegistersCallback(t *testing.T) {
	rec, disco, _, _ := newRecorderForTest(t, "/robot")
	require.NotNil(t, rec)
	assert.True(t, disco.started)
	assert.NotNil(t, disco.cb)
}

func TestNew_RequiresAllDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	_, err = New(Deps{Discovery: &fakeDiscovery{}})
	assert.Error(t, err)

	_, err = New(Deps{Discovery: &fakeDiscovery{}, Node: newFakeNode("/x")})
	assert.Error(t, err)
}

func TestStart_RejectsDoubleStart(t *testing.T) {
	rec, _, _, _ := newRecorderForTest(t, "/robot")

	require.NoError(t, rec.Start("/tmp/one.db"))
	err := rec.Start("/tmp/two.db")
	assert.ErrorIs(t, err, ErrAlreadyRecording)
}

func TestStart_FailsWhenLogFailsToOpen(t *testing.T) {
	disco := &fakeDiscovery{}
	node := newFakeNode("/robot")
	badLog := newFakeLog(false, true)

	rec, err := New(Deps{
		Discovery: disco,
		Node:      node,
		NewLog:    func() Log { return badLog },
	})
	require.NoError(t, err)

	err = rec.Start("/tmp/bad.db")
	assert.ErrorIs(t, err, ErrFailedToOpen)
}

func TestStop_IsIdempotent(t *testing.T) {
	rec, _, _, _ := newRecorderForTest(t, "/robot")
	require.NoError(t, rec.Start("/tmp/one.db"))

	rec.Stop()
	rec.Stop() // must not panic or error
}

func TestClose_ClosesDiscoveryAndStopsLog(t *testing.T) {
	rec, disco, _, log := newRecorderForTest(t, "/robot")
	require.NoError(t, rec.Start("/tmp/one.db"))

	require.NoError(t, rec.Close())
	assert.True(t, disco.closed)
	assert.True(t, log.opened) // the fake log has no Close method, so its flag is untouched
	assert.Nil(t, rec.log)     // the recorder itself no longer holds a log
}

func TestAddTopic_SubscribesAndMarksAlreadySubscribed(t *testing.T) {
	rec, _, node, _ := newRecorderForTest(t, "/robot")

	require.NoError(t, rec.AddTopic("robot/cmd"))
	assert.Contains(t, node.subscribedTopics(), "robot/cmd")
	assert.Contains(t, rec.alreadySubscribed, "robot/cmd")
}

func TestAddTopic_PropagatesSubscribeFailure(t *testing.T) {
	rec, _, node, _ := newRecorderForTest(t, "/robot")
	node.failSubscribeTopics = map[string]bool{"robot/cmd": true}

	err := rec.AddTopic("robot/cmd")
	assert.ErrorIs(t, err, ErrFailedToSubscribe)
}

func TestAddTopicPattern_SubscribesExistingMatchingTopicsOnce(t *testing.T) {
	rec, _, node, _ := newRecorderForTest(t, "/robot")
	node.topics = []string{"robot/cmd", "robot/status", "other/topic"}

	pattern := regexp.MustCompile(`^robot/`)
	count, err := rec.AddTopicPattern(pattern)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"robot/cmd", "robot/status"}, node.subscribedTopics())

	// Re-adding the same pattern must not resubscribe already-subscribed topics.
	count, err = rec.AddTopicPattern(pattern)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAddTopicPattern_RegisteredEvenWithZeroMatches(t *testing.T) {
	rec, disco, node, _ := newRecorderForTest(t, "/robot")

	count, err := rec.AddTopicPattern(regexp.MustCompile(`^nomatch/`))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// A later advertisement matching the pattern must now be picked up.
	disco.fire(wire.Publisher{FullyQualifiedTopic: "@/robot@nomatch/x", TypeName: "t", Address: "a"})
	assert.Contains(t, node.subscribedTopics(), "nomatch/x")
}

func TestOnAdvertisement_DropsNonMatchingPartition(t *testing.T) {
	rec, disco, node, _ := newRecorderForTest(t, "/robot")
	_, err := rec.AddTopicPattern(regexp.MustCompile(`.*`))
	require.NoError(t, err)

	disco.fire(wire.Publisher{FullyQualifiedTopic: "@/other@cmd", TypeName: "t", Address: "a"})
	assert.NotContains(t, node.subscribedTopics(), "cmd")
}

func TestOnAdvertisement_MultiplePatternsSingleSubscribe(t *testing.T) {
	// Pins the short-circuit resolution: when two patterns both match the
	// advertised topic, on_advertisement subscribes once, not twice.
	rec, disco, node, _ := newRecorderForTest(t, "/robot")

	_, err := rec.AddTopicPattern(regexp.MustCompile(`^cmd$`))
	require.NoError(t, err)
	_, err = rec.AddTopicPattern(regexp.MustCompile(`^c`))
	require.NoError(t, err)

	disco.fire(wire.Publisher{FullyQualifiedTopic: "@/robot@cmd", TypeName: "t", Address: "a"})

	assert.Len(t, node.subscribedTopics(), 1)
	assert.Equal(t, 1, node.subscribeCalls)
}

func TestOnAdvertisement_SkipsAlreadySubscribedTopic(t *testing.T) {
	rec, disco, node, _ := newRecorderForTest(t, "/robot")
	require.NoError(t, rec.AddTopic("cmd"))
	_, err := rec.AddTopicPattern(regexp.MustCompile(`.*`))
	require.NoError(t, err)

	disco.fire(wire.Publisher{FullyQualifiedTopic: "@/robot@cmd", TypeName: "t", Address: "a"})

	assert.Len(t, node.subscribedTopics(), 1)
	assert.Equal(t, 1, node.subscribeCalls)
}

func TestOnMessageReceived_DropsSilentlyWhenNoLogOpen(t *testing.T) {
	rec, _, _, log := newRecorderForTest(t, "/robot")

	rec.onMessageReceived([]byte("payload"), MessageInfo{Topic: "cmd", TypeName: "t"})
	assert.Equal(t, 0, log.count())
}

func TestOnMessageReceived_InsertsIntoOpenLog(t *testing.T) {
	rec, _, _, log := newRecorderForTest(t, "/robot")
	require.NoError(t, rec.Start("/tmp/one.db"))

	rec.onMessageReceived([]byte("payload"), MessageInfo{Topic: "cmd", TypeName: "t"})
	assert.Equal(t, 1, log.count())
}

func TestPartitionMatches(t *testing.T) {
	assert.True(t, partitionMatches("/robot", "/robot"))
	assert.False(t, partitionMatches("/robot", "/other"))
	assert.True(t, partitionMatches("robot", "/robot"))
	assert.False(t, partitionMatches("robot", "/other"))
	assert.False(t, partitionMatches("robot", ""))
}
