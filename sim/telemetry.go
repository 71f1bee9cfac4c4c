package sim

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// EventKind enumerates the telemetry vocabulary.
type EventKind string

const (
	EventScenario        EventKind = "scenario"
	EventCellReplicated  EventKind = "cell_replicated"
	EventCellDied        EventKind = "cell_died"
	EventLineageShift    EventKind = "lineage_shift"
	EventSignalEmitted   EventKind = "signal_emitted"
	EventLinkAdded       EventKind = "link_added"
	EventLinkRemoved     EventKind = "link_removed"
	EventPeerQuarantined EventKind = "peer_quarantined"
	EventAnomalyDetected EventKind = "anomaly_detected"
	EventVoteCast        EventKind = "vote_cast"
	EventStepSummary     EventKind = "step_summary"
)

// TelemetryEvent is one observation of the substrate. Only the fields
// relevant to a Kind are populated; the zero values are omitted on the
// wire.
type TelemetryEvent struct {
	Kind        EventKind `json:"kind"`
	Step        int       `json:"step"`
	CellID      string    `json:"cell_id,omitempty"`
	TargetID    string    `json:"target_id,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	Lineage     string    `json:"lineage,omitempty"`
	Magnitude   float64   `json:"magnitude,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	ThreatScore float64   `json:"threat_score,omitempty"`
	CellCount   int       `json:"cell_count,omitempty"`
	Scenario    string    `json:"scenario,omitempty"`
}

// TelemetrySink receives events as the simulation produces them.
type TelemetrySink interface {
	Record(event TelemetryEvent)
}

// InMemorySink buffers events for in-process analysis and tests.
type InMemorySink struct {
	events []TelemetryEvent
}

func (s *InMemorySink) Record(event TelemetryEvent) {
	s.events = append(s.events, event)
}

// Events returns the recorded events in order.
func (s *InMemorySink) Events() []TelemetryEvent {
	return s.events
}

type persistedRecord struct {
	TimestampMS int64          `json:"timestamp_ms"`
	Event       TelemetryEvent `json:"event"`
}

// JSONLSink appends events to a file, one JSON record per line. Write
// failures are logged, not fatal: telemetry loss must never kill a run.
type JSONLSink struct {
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLSink opens (or creates) path for appending.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{file: f, writer: bufio.NewWriter(f)}, nil
}

func (s *JSONLSink) Record(event TelemetryEvent) {
	record := persistedRecord{
		TimestampMS: time.Now().UnixMilli(),
		Event:       event,
	}
	data, err := json.Marshal(record)
	if err != nil {
		logrus.Warnf("Failed to encode telemetry record: %v", err)
		return
	}
	if _, err := s.writer.Write(append(data, '\n')); err != nil {
		logrus.Warnf("Failed to write telemetry record: %v", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		logrus.Warnf("Failed to flush telemetry record: %v", err)
	}
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

// TelemetryPipeline fans events out to an in-memory sink (always) and an
// optional file sink.
type TelemetryPipeline struct {
	memory InMemorySink
	file   *JSONLSink
}

// NewTelemetryPipeline returns a pipeline with an optional file sink; pass
// nil for memory-only capture.
func NewTelemetryPipeline(file *JSONLSink) *TelemetryPipeline {
	return &TelemetryPipeline{file: file}
}

func (p *TelemetryPipeline) Record(event TelemetryEvent) {
	p.memory.Record(event)
	if p.file != nil {
		p.file.Record(event)
	}
}

// Events exposes the in-memory buffer.
func (p *TelemetryPipeline) Events() []TelemetryEvent {
	return p.memory.Events()
}
