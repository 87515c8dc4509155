// Package progress renders executor status transitions as they happen —
// a terminal table for interactive use, or JSON lines for scripting.
package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/carbonfact/lea/pkg/core"
)

// Phase identifies which stage of a node's lifecycle an Event describes.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// Event is emitted by the executor for every node status transition, in
// strict START -> {DONE|ERRORED|SKIPPED|...} order per node, never
// interleaved for the same node.
type Event struct {
	Node     string        `json:"node"`
	Phase    Phase         `json:"phase"`
	Status   core.NodeStatus `json:"status,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Rows     *int64        `json:"rows,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Sink receives Events. The executor calls Emit only from its single
// scheduling loop, never from worker goroutines; Terminal relies on this
// and does no locking of its own.
type Sink interface {
	Emit(Event)
}

// Silent discards every event.
type Silent struct{}

func (Silent) Emit(Event) {}

// JSONLines writes one JSON object per event, newline-delimited.
type JSONLines struct {
	Writer io.Writer
}

func (j JSONLines) Emit(e Event) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	_, _ = j.Writer.Write(append(b, '\n'))
}

// Terminal accumulates END events and renders a summary table on Flush,
// following the go-pretty table style used elsewhere in this project's
// CLI output.
type Terminal struct {
	Writer io.Writer
	rows   []Event
}

func (t *Terminal) Emit(e Event) {
	if e.Phase != PhaseEnd {
		return
	}
	t.rows = append(t.rows, e)
}

// Flush renders the accumulated end events as a table.
func (t *Terminal) Flush() {
	tw := table.NewWriter()
	tw.SetOutputMirror(t.Writer)
	tw.AppendHeader(table.Row{"Node", "Status", "Duration", "Rows"})
	for _, e := range t.rows {
		rows := "-"
		if e.Rows != nil {
			rows = fmt.Sprintf("%d", *e.Rows)
		}
		tw.AppendRow(table.Row{e.Node, e.Status, e.Duration.Round(time.Millisecond), rows})
	}
	tw.Render()
}
