package types

import (
	"fmt"
	"strings"
	"time"
)

// Stage names used as DebugInfo keys.
const (
	StageAnalyze   = "analyze"
	StageEmbed     = "embed"
	StageDense     = "dense"
	StageSparse    = "sparse"
	StageFuse      = "fuse"
	StageRerank    = "rerank"
	StageDiversity = "diversity"
	StageTotal     = "total"
)

// DebugInfo carries per-request observability: stage timings in
// milliseconds, candidate counts per stage, the effective parameters, and
// free-form notes about degraded-mode decisions. It is populated on every
// request, including failures and empty results.
type DebugInfo struct {
	Timings map[string]float64     `json:"timings_ms"`
	Counts  map[string]int         `json:"counts"`
	Params  map[string]interface{} `json:"params"`
	Notes   []string               `json:"notes,omitempty"`
}

// NewDebugInfo returns an empty, ready-to-populate DebugInfo.
func NewDebugInfo() *DebugInfo {
	return &DebugInfo{
		Timings: make(map[string]float64),
		Counts:  make(map[string]int),
		Params:  make(map[string]interface{}),
	}
}

// RecordTiming stores the elapsed time for a stage in milliseconds.
// Repeated calls for the same stage accumulate, so retry iterations report
// their combined cost.
func (d *DebugInfo) RecordTiming(stage string, elapsed time.Duration) {
	d.Timings[stage] += float64(elapsed.Microseconds()) / 1000.0
}

// SetCount records the candidate count for a stage.
func (d *DebugInfo) SetCount(stage string, n int) {
	d.Counts[stage] = n
}

// SetParam records an effective parameter value.
func (d *DebugInfo) SetParam(name string, v interface{}) {
	d.Params[name] = v
}

// AddNote appends a formatted annotation (degraded mode, skipped stages,
// retry widening).
func (d *DebugInfo) AddNote(format string, args ...interface{}) {
	d.Notes = append(d.Notes, fmt.Sprintf(format, args...))
}

// HasNote reports whether any note contains the given substring.
func (d *DebugInfo) HasNote(substr string) bool {
	for _, n := range d.Notes {
		if strings.Contains(strings.ToLower(n), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
