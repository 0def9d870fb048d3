package circulation

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Notifier receives plain-text circulation events. Publishing is
// fire-and-forget: no delivery guarantee, no acknowledgment. The engines
// call Publish only after a state change has committed.
type Notifier interface {
	Publish(message string)
}

// FanOut broadcasts every event to all registered sinks. A FanOut with no
// sinks swallows events, which is the correct behaviour for callers that
// do not care about notifications.
type FanOut struct {
	mu    sync.RWMutex
	sinks []Notifier
}

// NewFanOut returns a broadcaster over the given sinks.
func NewFanOut(sinks ...Notifier) *FanOut {
	return &FanOut{sinks: sinks}
}

// Add registers another sink.
func (f *FanOut) Add(n Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, n)
}

// Publish delivers message to every sink in registration order.
func (f *FanOut) Publish(message string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sink := range f.sinks {
		sink.Publish(message)
	}
}

// WriterNotifier writes one line per event to w, addressed to a named
// recipient. Stands in for a real delivery channel such as email.
type WriterNotifier struct {
	Recipient string

	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier returns a sink that writes events for recipient to w.
func NewWriterNotifier(recipient string, w io.Writer) *WriterNotifier {
	return &WriterNotifier{Recipient: recipient, w: w}
}

// Publish writes the event line. Write errors are dropped, matching the
// fire-and-forget contract.
func (n *WriterNotifier) Publish(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "notify %s: %s\n", n.Recipient, message)
}

type journalEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// JournalNotifier appends events to w as JSON lines with a timestamp, one
// object per event.
type JournalNotifier struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewJournalNotifier returns a JSON-lines sink writing to w.
func NewJournalNotifier(w io.Writer) *JournalNotifier {
	return &JournalNotifier{w: w, now: time.Now}
}

// Publish encodes and appends one journal line. Encoding or write failures
// are dropped.
func (n *JournalNotifier) Publish(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	line, err := jsoniter.ConfigFastest.Marshal(journalEntry{At: n.now(), Message: message})
	if err != nil {
		return
	}
	n.w.Write(append(line, '\n'))
}

// CaptureNotifier records events in memory. Used by tests and dry runs.
type CaptureNotifier struct {
	mu       sync.Mutex
	messages []string
}

// Publish appends the event.
func (n *CaptureNotifier) Publish(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

// Messages returns a copy of everything published so far.
func (n *CaptureNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}
