package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// StimulusCommand injects one signal at a given step. An empty Target means
// broadcast.
type StimulusCommand struct {
	Step      int     `json:"step"`
	Topic     string  `json:"topic"`
	Magnitude float64 `json:"magnitude"`
	Target    string  `json:"target,omitempty"`
}

// StimulusSchedule is an externally supplied timeline of signal injections,
// keyed by step. The evolution harness crosses over and mutates schedules
// at whole-step granularity, so the per-step command set is the atomic unit.
type StimulusSchedule struct {
	commands map[int][]StimulusCommand
}

// NewStimulusSchedule returns an empty schedule.
func NewStimulusSchedule() *StimulusSchedule {
	return &StimulusSchedule{commands: make(map[int][]StimulusCommand)}
}

// LoadStimulusSchedule reads a JSONL stimulus file: one StimulusCommand per
// line, blank lines skipped.
func LoadStimulusSchedule(path string) (*StimulusSchedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stimulus schedule %s: %w", path, err)
	}
	defer f.Close()

	schedule := NewStimulusSchedule()
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var cmd StimulusCommand
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			return nil, fmt.Errorf("parse stimulus line %d: %w", line, err)
		}
		schedule.Append(cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stimulus schedule %s: %w", path, err)
	}
	return schedule, nil
}

// Append adds a command under its step key.
func (s *StimulusSchedule) Append(cmd StimulusCommand) {
	if s.commands == nil {
		s.commands = make(map[int][]StimulusCommand)
	}
	s.commands[cmd.Step] = append(s.commands[cmd.Step], cmd)
}

// CommandsFor returns the commands scheduled at step, without consuming
// them.
func (s *StimulusSchedule) CommandsFor(step int) []StimulusCommand {
	if s == nil {
		return nil
	}
	return s.commands[step]
}

// SetStep replaces the whole command set for a step.
func (s *StimulusSchedule) SetStep(step int, cmds []StimulusCommand) {
	if s.commands == nil {
		s.commands = make(map[int][]StimulusCommand)
	}
	s.commands[step] = append([]StimulusCommand(nil), cmds...)
}

// Steps returns the scheduled step keys in ascending order.
func (s *StimulusSchedule) Steps() []int {
	if s == nil {
		return nil
	}
	steps := make([]int, 0, len(s.commands))
	for step := range s.commands {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps
}

// Len returns the total number of scheduled commands.
func (s *StimulusSchedule) Len() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, cmds := range s.commands {
		total += len(cmds)
	}
	return total
}

// Clone returns a deep copy of the schedule.
func (s *StimulusSchedule) Clone() *StimulusSchedule {
	if s == nil {
		return nil
	}
	clone := NewStimulusSchedule()
	for step, cmds := range s.commands {
		clone.commands[step] = append([]StimulusCommand(nil), cmds...)
	}
	return clone
}

// Scale multiplies the magnitude of every command on topic by factor.
func (s *StimulusSchedule) Scale(topic string, factor float64) {
	if s == nil {
		return
	}
	for step, cmds := range s.commands {
		for i := range cmds {
			if cmds[i].Topic == topic {
				cmds[i].Magnitude *= factor
			}
		}
		s.commands[step] = cmds
	}
}

// MarshalJSON flattens the schedule to an ordered command list so snapshots
// round-trip verbatim regardless of map iteration order.
func (s *StimulusSchedule) MarshalJSON() ([]byte, error) {
	flat := make([]StimulusCommand, 0, s.Len())
	for _, step := range s.Steps() {
		flat = append(flat, s.commands[step]...)
	}
	return json.Marshal(flat)
}

// UnmarshalJSON rebuilds the step-keyed map from a flat command list.
func (s *StimulusSchedule) UnmarshalJSON(data []byte) error {
	var flat []StimulusCommand
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	s.commands = make(map[int][]StimulusCommand, len(flat))
	for _, cmd := range flat {
		s.commands[cmd.Step] = append(s.commands[cmd.Step], cmd)
	}
	return nil
}
