package domain

import (
	"errors"
	"time"
)

// Domain Errors for Sample construction
var (
	ErrMissingSourceIP = errors.New("traffic sample requires a source ip")
	ErrMissingDeviceID = errors.New("activity sample requires a device id")
	ErrMissingAction   = errors.New("activity sample requires an action")
)

// SampleKind discriminates the two observation shapes the pipeline ingests.
type SampleKind string

const (
	SampleTraffic  SampleKind = "traffic"
	SampleActivity SampleKind = "activity"
)

// Sample is one immutable observation handed to the detection rules.
// Concrete shapes are TrafficSample and ActivitySample.
type Sample interface {
	Kind() SampleKind
	ObservedAt() time.Time
}

// TrafficSample describes aggregated network traffic seen on the edge.
type TrafficSample struct {
	SourceIP      string    `json:"source_ip"`
	DestinationIP string    `json:"destination_ip"`
	Protocol      string    `json:"protocol"`
	Port          int       `json:"port"`
	PacketCount   int       `json:"packet_count"`
	ByteCount     int64     `json:"byte_count"`
	Timestamp     time.Time `json:"timestamp"`
}

func (s TrafficSample) Kind() SampleKind      { return SampleTraffic }
func (s TrafficSample) ObservedAt() time.Time { return s.Timestamp }

// NewTrafficSample validates the observation before it enters the pipeline.
func NewTrafficSample(srcIP, dstIP, protocol string, port, packets int, bytes int64, ts time.Time) (TrafficSample, error) {
	if srcIP == "" {
		return TrafficSample{}, ErrMissingSourceIP
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return TrafficSample{
		SourceIP:      srcIP,
		DestinationIP: dstIP,
		Protocol:      protocol,
		Port:          port,
		PacketCount:   packets,
		ByteCount:     bytes,
		Timestamp:     ts,
	}, nil
}

// Activity action tags recognized by the stateful rules. Producers are free
// to send other actions; rules ignore what they do not understand.
const (
	ActionLoginFailed    = "login_failed"
	ActionLoginSuccess   = "login_success"
	ActionARPAnnounce    = "arp_announce"
	ActionARPReply       = "arp_reply"
	ActionFirmwareUpdate = "firmware_update"
	ActionBehaviorReport = "behavior_report"
)

// ActivitySample describes one device-level event (authentication attempt,
// ARP traffic, firmware update, behavioral report).
type ActivitySample struct {
	DeviceID   string         `json:"device_id"`
	DeviceType string         `json:"device_type"`
	Action     string         `json:"action"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (s ActivitySample) Kind() SampleKind      { return SampleActivity }
func (s ActivitySample) ObservedAt() time.Time { return s.Timestamp }

// NewActivitySample validates the observation before it enters the pipeline.
func NewActivitySample(deviceID, deviceType, action string, payload map[string]any, ts time.Time) (ActivitySample, error) {
	if deviceID == "" {
		return ActivitySample{}, ErrMissingDeviceID
	}
	if action == "" {
		return ActivitySample{}, ErrMissingAction
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return ActivitySample{
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Action:     action,
		Payload:    payload,
		Timestamp:  ts,
	}, nil
}

// PayloadString is a tolerant accessor for string payload fields.
func (s ActivitySample) PayloadString(key string) string {
	if s.Payload == nil {
		return ""
	}
	if v, ok := s.Payload[key].(string); ok {
		return v
	}
	return ""
}
