// Package discoverynet is the reference implementation of the
// recorder.DiscoveryClient interface: a real UDP broadcast sender and
// listener built directly on the wire package's Header/Advertise/
// Subscription codecs.
//
// The read-loop goroutine lifecycle is modeled on the corpus's
// discovery.Listener pattern (a dedicated accept goroutine fed by a
// request channel), adapted here to a callback-driven model since that is
// the shape recorder.DiscoveryClient requires.
package discoverynet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jki757/topicrecorder/recorder"
	"github.com/jki757/topicrecorder/wire"
)

// maxDatagramSize bounds a single discovery packet. Large enough for any
// plausible process UUID plus a fully-qualified topic and type name.
const maxDatagramSize = 8192

// Client listens for discovery broadcasts on the given UDP port and can
// also emit them.
//
// Client is safe for concurrent use once Start has returned.
type Client struct {
	processUUID string
	port        int
	logger      *slog.Logger

	cbMu sync.Mutex
	cb   recorder.ConnectionsCb

	conn   *net.UDPConn
	bcast  *net.UDPAddr
	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
}

// New constructs a Client bound to the well-known discovery port. The
// caller supplies its own process identity (expected to be a
// github.com/google/uuid string) rather than Client generating one, so
// that recorder.New's "fresh UUID" requirement is satisfied by the
// caller — UUID generation beyond its string contract is out of scope for
// this module (spec §1).
func New(processUUID string, port int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{processUUID: processUUID, port: port, logger: logger}
}

// ConnectionsCb registers the function invoked once per observed
// advertisement. It must be called before Start.
func (c *Client) ConnectionsCb(cb recorder.ConnectionsCb) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
}

// Start binds the UDP socket and launches the read loop.
func (c *Client) Start() error {
	laddr := &net.UDPAddr{Port: c.port}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return fmt.Errorf("discoverynet: listen on port %d: %w", c.port, err)
	}
	if err := conn.SetReadBuffer(maxDatagramSize); err != nil {
		c.logger.Warn("discoverynet: failed to set read buffer", "error", err)
	}

	c.conn = conn
	c.bcast = &net.UDPAddr{IP: net.IPv4bcast, Port: c.port}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	group, ctx := errgroup.WithContext(ctx)
	c.group = group
	group.Go(func() error {
		c.readLoop(ctx)
		return nil
	})

	c.logger.Info("discoverynet: listening", "addr", conn.LocalAddr())
	return nil
}

// readLoop consumes datagrams until ctx is cancelled or the socket closes.
func (c *Client) readLoop(ctx context.Context) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("discoverynet: read error", "error", err)
			continue
		}

		c.handleDatagram(buf[:n])
	}
}

func (c *Client) handleDatagram(data []byte) {
	header, hn := wire.UnpackHeader(data)
	if hn == 0 {
		return
	}

	switch header.Type {
	case wire.Advertise:
		adv, n := wire.UnpackAdvertiseBody(data[hn:], header)
		if n == 0 {
			return
		}
		c.cbMu.Lock()
		cb := c.cb
		c.cbMu.Unlock()
		if cb != nil {
			cb(adv.Publisher)
		}
	default:
		// Other control packet types (Subscribe, Heartbeat, Bye, ...) are
		// not consumed by the recorder and are ignored here.
	}
}

// Close stops the read loop and closes the socket, blocking until the
// read-loop goroutine has fully exited. It is idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			err = c.conn.Close()
		}
		if c.group != nil {
			_ = c.group.Wait()
		}
	})
	return err
}

// Advertise broadcasts an AdvertisePacket for pub.
func (c *Client) Advertise(pub wire.Publisher) error {
	header := wire.Header{Version: 1, ProcessUUID: c.processUUID, Type: wire.Advertise}
	packet := wire.AdvertisePacket{Header: header, Publisher: pub}

	buf := make([]byte, packet.Length())
	if packet.Pack(buf) == 0 {
		return fmt.Errorf("discoverynet: failed to pack advertise packet")
	}

	return c.send(buf)
}

// SubscribeWire broadcasts a SubscriptionPacket for topic. It is not used
// by the recorder itself (which subscribes through its injected Node) but
// lets other peers on the wire announce interest the way this protocol
// expects.
func (c *Client) SubscribeWire(topic string) error {
	header := wire.Header{Version: 1, ProcessUUID: c.processUUID, Type: wire.Subscribe}
	packet := wire.SubscriptionPacket{Header: header, Topic: topic}

	buf := make([]byte, packet.Length())
	if packet.Pack(buf) == 0 {
		return fmt.Errorf("discoverynet: failed to pack subscription packet")
	}

	return c.send(buf)
}

func (c *Client) send(buf []byte) error {
	conn, err := net.DialUDP("udp4", nil, c.bcast)
	if err != nil {
		return fmt.Errorf("discoverynet: dial broadcast: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteBuffer(maxDatagramSize); err != nil {
		c.logger.Debug("discoverynet: failed to set write buffer", "error", err)
	}
	_, err = conn.Write(buf)
	return err
}
