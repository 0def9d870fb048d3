package circulation

import (
	"bytes"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_FanOut_BroadcastsToAllSinks(t *testing.T) {
	first := &CaptureNotifier{}
	second := &CaptureNotifier{}
	fan := NewFanOut(first)
	fan.Add(second)

	fan.Publish("copy returned")
	fan.Publish("copy borrowed")

	assert.Equal(t, []string{"copy returned", "copy borrowed"}, first.Messages())
	assert.Equal(t, []string{"copy returned", "copy borrowed"}, second.Messages())
}

func Test_FanOut_WithoutSinksSwallowsEvents(t *testing.T) {
	fan := NewFanOut()
	fan.Publish("nobody listening") // must not panic
}

func Test_WriterNotifier_FormatsRecipientLines(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriterNotifier("front-desk", &buf)

	n.Publish("copy returned")

	assert.Equal(t, "notify front-desk: copy returned\n", buf.String())
}

func Test_JournalNotifier_WritesTimestampedJSONLines(t *testing.T) {
	var buf bytes.Buffer
	n := NewJournalNotifier(&buf)
	stamp := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return stamp }

	n.Publish("copy borrowed")
	n.Publish("copy returned")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var entry journalEntry
	require.NoError(t, jsoniter.ConfigFastest.Unmarshal(lines[0], &entry))
	assert.Equal(t, "copy borrowed", entry.Message)
	assert.True(t, entry.At.Equal(stamp))
}
