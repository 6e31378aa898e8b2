package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter implements Emitter by writing structured log output to a
// writer.
//
// Supports two output modes:
//   - Text mode (default): human-readable format with key=value pairs
//   - JSON mode: machine-readable JSON, one event per line
//
// Example text output:
//
//	[cycle_check] graphID=tenant-7 nodeID=task-a meta={"depends_on":"task-b","would_cycle":false}
//
// Example JSON output:
//
//	{"graph_id":"tenant-7","node_id":"task-a","msg":"cycle_check","meta":{"depends_on":"task-b","would_cycle":false}}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a new LogEmitter writing to the provided writer
// (os.Stdout if nil). If jsonMode is true events are emitted as one JSON
// object per line; otherwise as human-readable text.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes the event to the configured writer in the configured format.
// Write failures are swallowed; an unavailable log sink must not fail a
// validation.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		fmt.Fprintf(l.writer, `{"msg":"emit_error","meta":{"error":%q}}`+"\n", err.Error())
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	line := "[" + event.Msg + "]"
	if event.GraphID != "" {
		line += " graphID=" + event.GraphID
	}
	if event.NodeID != "" {
		line += " nodeID=" + event.NodeID
	}
	if len(event.Meta) > 0 {
		if meta, err := json.Marshal(event.Meta); err == nil {
			line += " meta=" + string(meta)
		}
	}
	fmt.Fprintln(l.writer, line)
}
