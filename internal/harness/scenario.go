package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gpsform/internal/record"
)

// Scenario defines one end-to-end run of the form against a scripted sink.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Online is the initial connectivity signal.
	Online bool `yaml:"online"`

	// Storage enables the durable queue. Defaults to true.
	Storage *bool `yaml:"storage,omitempty"`

	// ClearAfterSubmit drops held coordinates once a submission resolves.
	ClearAfterSubmit bool `yaml:"clear_after_submit,omitempty"`

	// Fix is the position the capture action returns when a step gives none.
	// Without it geolocation is unavailable.
	Fix *RecordInput `yaml:"fix,omitempty"`

	// Queued records are in the queue before the engine starts, as if left
	// over from an earlier session.
	Queued []RecordInput `yaml:"queued,omitempty"`

	// Flow contains the steps, executed in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// StorageEnabled reports whether the scenario runs with a durable queue.
func (s *Scenario) StorageEnabled() bool {
	return s.Storage == nil || *s.Storage
}

// RecordInput describes a record's coordinates. A nil coordinate is absent.
type RecordInput struct {
	Latitude  *float64 `yaml:"latitude,omitempty"`
	Longitude *float64 `yaml:"longitude,omitempty"`
	Timestamp string   `yaml:"timestamp,omitempty"`
}

// Coordinates converts r into record coordinates.
func (r RecordInput) Coordinates() (lat, lon record.Coordinate) {
	if r.Latitude != nil {
		lat = record.Coord(*r.Latitude)
	}
	if r.Longitude != nil {
		lon = record.Coord(*r.Longitude)
	}
	return lat, lon
}

// Flow step actions.
const (
	ActionCapture    = "capture"
	ActionSubmit     = "submit"
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
	ActionSync       = "sync"
	ActionSink       = "sink"
)

var validActions = map[string]bool{
	ActionCapture:    true,
	ActionSubmit:     true,
	ActionConnect:    true,
	ActionDisconnect: true,
	ActionSync:       true,
	ActionSink:       true,
}

// FlowStep is one user or host action.
type FlowStep struct {
	// Action is one of capture, submit, connect, disconnect, sync, sink.
	Action string `yaml:"action"`

	// Latitude and Longitude give capture an explicit fix. Both or neither.
	Latitude  *float64 `yaml:"latitude,omitempty"`
	Longitude *float64 `yaml:"longitude,omitempty"`

	// Fail sets the HTTP status every later send fails with (sink only).
	// Zero makes sends succeed again.
	Fail int `yaml:"fail,omitempty"`

	// Script queues per-send outcomes ahead of Fail (sink only).
	// 0 is a success, anything else an HTTP status to fail with.
	Script []int `yaml:"script,omitempty"`

	// Expect validates the step's result. Nil means the step must not fail.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected step results. Unset fields are not checked.
type ExpectClause struct {
	// Outcome is "sent" or "buffered" (submit).
	Outcome string `yaml:"outcome,omitempty"`

	// Error is the expected error code, e.g. STORAGE_UNAVAILABLE or OFFLINE.
	Error string `yaml:"error,omitempty"`

	// Synced reports whether a connect step ran a reconcile pass.
	Synced *bool `yaml:"synced,omitempty"`

	// Delivered, Failed and Remaining check the reconcile report.
	Delivered *int `yaml:"delivered,omitempty"`
	Failed    *int `yaml:"failed,omitempty"`
	Remaining *int `yaml:"remaining,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_count": Event appears exactly Count times (optionally with Trigger)
	// - "trace_order": Events appear in order
	// - "pending_count": Queue holds Count records at the end
	// - "sink_calls": Sink was called Count times
	// - "final_queue": Queue holds exactly Records, in order
	Type string `yaml:"type"`

	Event   string `yaml:"event,omitempty"`
	Trigger string `yaml:"trigger,omitempty"`

	Count int `yaml:"count,omitempty"`

	Events []string `yaml:"events,omitempty"`

	Records []RecordInput `yaml:"records,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceCount   = "trace_count"
	AssertTraceOrder   = "trace_order"
	AssertPendingCount = "pending_count"
	AssertSinkCalls    = "sink_calls"
	AssertFinalQueue   = "final_queue"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(path), s.Name, prev)
		}
		seen[s.Name] = filepath.Base(path)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if len(s.Queued) > 0 && !s.StorageEnabled() {
		return fmt.Errorf("queued records require storage")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(i int, step FlowStep) error {
	if step.Action == "" {
		return fmt.Errorf("flow[%d]: action is required", i)
	}
	if !validActions[step.Action] {
		return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
	}
	if (step.Latitude == nil) != (step.Longitude == nil) {
		return fmt.Errorf("flow[%d]: latitude and longitude must be set together", i)
	}
	if step.Latitude != nil && step.Action != ActionCapture {
		return fmt.Errorf("flow[%d]: coordinates are only valid for capture", i)
	}
	if (step.Fail != 0 || len(step.Script) > 0) && step.Action != ActionSink {
		return fmt.Errorf("flow[%d]: fail and script are only valid for sink", i)
	}
	if step.Action == ActionSink && step.Expect != nil {
		return fmt.Errorf("flow[%d]: sink steps take no expect clause", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertPendingCount, AssertSinkCalls:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertFinalQueue:
		// An empty records list asserts an empty queue
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
