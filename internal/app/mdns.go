package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsServiceType = "_topicrecorder._tcp"
	mdnsDomain      = "local."
)

// mdnsServer is an alias so app.go can hold a *mdnsServer field without
// importing zeroconf directly.
type mdnsServer = zeroconf.Server

// startMDNS registers an mDNS service so operators can find a running
// recorder on the LAN with dns-sd/avahi-browse. This is deliberately
// separate from the pub/sub discovery wire protocol the recorder itself
// speaks (spec §4.A mandates a fixed custom binary header, not mDNS TXT
// records) — it is pure operational convenience, the same role the
// teacher's mdns.go plays for its MQTT broker.
func (a *App) startMDNS() error {
	a.stopMDNS()

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "topicrecorder"
	}

	instance := sanitizeMDNSInstance(fmt.Sprintf("Topic Recorder (%s)", hostname))
	hostLabel := sanitizeMDNSHost(hostname)
	hostFQDN := hostLabel
	if !strings.Contains(hostFQDN, ".") {
		hostFQDN = hostLabel + ".local"
	}

	txt := []string{
		fmt.Sprintf("discovery_port=%d", a.cfg.DiscoveryPort),
		fmt.Sprintf("http_port=%d", a.cfg.HTTPPort),
		fmt.Sprintf("partition=%s", a.cfg.Partition),
		"proto=v1",
		fmt.Sprintf("host=%s", hostFQDN),
	}

	server, err := zeroconf.Register(instance, mdnsServiceType, mdnsDomain, a.cfg.HTTPPort, txt, nil)
	if err != nil {
		return err
	}

	a.mdns = server
	a.logger.Info("mDNS advertisement started", "instance", instance)
	return nil
}

func (a *App) stopMDNS() {
	if a.mdns == nil {
		return
	}

	a.mdns.Shutdown()
	a.logger.Info("mDNS advertisement stopped")
	a.mdns = nil
}

func sanitizeMDNSInstance(name string) string {
	cleaned := strings.TrimSpace(name)
	cleaned = strings.ReplaceAll(cleaned, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, ".", " ")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")
	if cleaned == "" {
		cleaned = "Topic Recorder"
	}
	runes := []rune(cleaned)
	const maxLen = 63
	if len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}

func sanitizeMDNSHost(name string) string {
	cleaned := strings.TrimSpace(strings.ToLower(name))
	replacer := strings.NewReplacer(" ", "-", "_", "-", "\n", "", "\r", "")
	cleaned = replacer.Replace(cleaned)
	if cleaned == "" {
		cleaned = "topicrecorder"
	}
	// Host labels must be <=63 characters.
	irunes := []rune(cleaned)
	if len(irunes) > 63 {
		cleaned = string(irunes[:63])
	}
	return cleaned
}
