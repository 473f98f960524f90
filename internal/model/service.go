package model

import "strings"

// Service identifies an upstream tool whose shared account can be borrowed.
type Service string

const (
	ServicePipiads    Service = "pipiads"
	ServiceElevenLabs Service = "elevenlabs"
	ServiceBrainFM    Service = "brainfm"
	ServiceTrendTrack Service = "trendtrack"
)

var knownServices = map[Service]struct{}{
	ServicePipiads:    {},
	ServiceElevenLabs: {},
	ServiceBrainFM:    {},
	ServiceTrendTrack: {},
}

// ParseService normalizes s and reports whether it names a known service.
func ParseService(s string) (Service, bool) {
	svc := Service(strings.ToLower(strings.TrimSpace(s)))
	_, ok := knownServices[svc]
	return svc, ok
}
