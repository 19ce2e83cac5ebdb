// Command publisher-sim periodically broadcasts discovery advertisements
// for one simulated topic (set with -partition and -topic), the way beacon-sim published simulated sensor
// readings in the teacher repo. Unlike beacon-sim, this tool never
// delivers payloads — actual message transport between node and recorder
// is out of scope for the discovery wire protocol (spec §1), so
// publisher-sim only exercises Advertise.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jki757/topicrecorder/discoverynet"
	"github.com/jki757/topicrecorder/wire"
)

func main() {
	discoveryPort := flag.Int("discovery-port", 11319, "UDP discovery port to broadcast on")
	partition := flag.String("partition", "/default", "Partition prefix for the advertised topic, e.g. /robot")
	topic := flag.String("topic", "cmd", "Topic name, combined with -partition into a fully-qualified topic")
	typeName := flag.String("type", "sim.Reading", "Advertised message type name")
	address := flag.String("address", "", "Advertised transport address; defaults to this host's hostname")
	interval := flag.Duration("interval", 2*time.Second, "Interval between advertisements")

	flag.Parse()

	addr := *address
	if addr == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "publisher-sim"
		}
		addr = hostname
	}

	processUUID := uuid.New().String()
	client := discoverynet.New(processUUID, *discoveryPort, nil)
	if err := client.Start(); err != nil {
		log.Fatalf("failed to start discovery client: %v", err)
	}
	defer client.Close()

	fqtn := fmt.Sprintf("@%s@%s", *partition, *topic)
	pub := wire.Publisher{
		FullyQualifiedTopic: fqtn,
		TypeName:            *typeName,
		Address:             addr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	advertise := func() {
		if err := client.Advertise(pub); err != nil {
			log.Printf("advertise error: %v", err)
			return
		}
		log.Printf("advertised topic=%s type=%s address=%s", fqtn, *typeName, addr)
	}

	advertise()

	for {
		select {
		case <-ctx.Done():
			log.Print("received shutdown signal, stopping")
			return
		case <-ticker.C:
			advertise()
		}
	}
}
