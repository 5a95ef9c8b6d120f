package nuimo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type writerHarness struct {
	writer   *matrixWriter
	sent     [][]byte
	sendErr  error
	failures []error
	clock    time.Time
}

func newWriterHarness() *writerHarness {
	h := &writerHarness{clock: time.Unix(1000, 0)}
	h.writer = newMatrixWriter(
		func(payload []byte) error {
			if h.sendErr != nil {
				return h.sendErr
			}
			h.sent = append(h.sent, payload)
			return nil
		},
		func(err error) { h.failures = append(h.failures, err) },
	)
	h.writer.now = func() time.Time { return h.clock }
	return h
}

func (h *writerHarness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func frameRequest(pattern string, suppress bool) displayRequest {
	return displayRequest{
		matrix:     NewLedMatrix(pattern),
		interval:   2 * time.Second,
		brightness: 1.0,
		suppress:   suppress,
	}
}

func TestWriterTransmitsFirstFrame(t *testing.T) {
	h := newWriterHarness()
	h.writer.Write(frameRequest("*", false))
	require.Len(t, h.sent, 1)
	require.Len(t, h.sent[0], 13)
}

func TestWriterSuppressesDuplicateWhileDisplayed(t *testing.T) {
	h := newWriterHarness()
	req := frameRequest("*", true)
	req.interval = 5 * time.Second
	h.writer.Write(req)
	h.writer.writeCompleted()

	h.advance(2 * time.Second)
	h.writer.Write(req)
	require.Len(t, h.sent, 1)
}

func TestWriterSuppressesIndefinitelyWithoutInterval(t *testing.T) {
	h := newWriterHarness()
	req := frameRequest("*", true)
	req.interval = -1
	h.writer.Write(req)
	h.writer.writeCompleted()

	// A frame without a timeout stays lit until replaced, so its duplicates
	// never age out.
	h.advance(time.Hour)
	h.writer.Write(req)
	require.Len(t, h.sent, 1)
}

func TestWriterRetransmitsAfterIntervalElapsed(t *testing.T) {
	h := newWriterHarness()
	h.writer.Write(frameRequest("*", true))
	h.writer.writeCompleted()

	h.advance(2 * time.Second)
	h.writer.Write(frameRequest("*", true))
	require.Len(t, h.sent, 2)
}

func TestWriterSuppressionIgnoresRequestedInterval(t *testing.T) {
	h := newWriterHarness()
	first := frameRequest("*", true)
	first.interval = 10 * time.Second
	h.writer.Write(first)
	h.writer.writeCompleted()

	// Still displayed, so the duplicate is dropped even though it asks for a
	// different interval.
	h.advance(time.Second)
	second := frameRequest("*", true)
	second.interval = 3 * time.Second
	h.writer.Write(second)
	require.Len(t, h.sent, 1)
}

func TestWriterDoesNotSuppressDifferentFrame(t *testing.T) {
	h := newWriterHarness()
	h.writer.Write(frameRequest("*", true))
	h.writer.writeCompleted()
	h.writer.Write(frameRequest("**", true))
	require.Len(t, h.sent, 2)
}

func TestWriterDoesNotSuppressWithoutFlag(t *testing.T) {
	h := newWriterHarness()
	h.writer.Write(frameRequest("*", false))
	h.writer.writeCompleted()
	h.writer.Write(frameRequest("*", false))
	require.Len(t, h.sent, 2)
}

func TestWriterDefersWhileInFlight(t *testing.T) {
	h := newWriterHarness()
	h.writer.Write(frameRequest("*", false))
	require.Len(t, h.sent, 1)

	// Frames queued behind an unacknowledged write collapse to the newest.
	h.writer.Write(frameRequest("**", false))
	h.writer.Write(frameRequest("***", false))
	require.Len(t, h.sent, 1)

	h.writer.writeCompleted()
	require.Len(t, h.sent, 2)
	require.Equal(t, encodeMatrix(NewLedMatrix("***"), 1.0, 2*time.Second, false), h.sent[1])

	h.writer.writeCompleted()
	require.Len(t, h.sent, 2)
}

func TestWriterTransmitsPastDebounceWindowDespiteFlight(t *testing.T) {
	h := newWriterHarness()
	h.writer.Write(frameRequest("*", false))
	require.Len(t, h.sent, 1)

	// The unacknowledged write no longer throttles once the window passed.
	h.advance(writeDebounceWindow)
	h.writer.Write(frameRequest("**", false))
	require.Len(t, h.sent, 2)

	h.writer.writeCompleted()
	require.Len(t, h.sent, 2)
}

func TestWriterFailedAckDropsDeferredFrame(t *testing.T) {
	h := newWriterHarness()
	h.writer.Write(frameRequest("*", false))
	h.writer.Write(frameRequest("**", false))
	require.Len(t, h.sent, 1)

	h.writer.writeFailed()
	require.Len(t, h.sent, 1)

	// The writer is idle again; a fresh frame transmits and nothing stale
	// follows its acknowledgment.
	h.writer.Write(frameRequest("***", false))
	require.Len(t, h.sent, 2)
	h.writer.writeCompleted()
	require.Len(t, h.sent, 2)
}

func TestWriterDropsFailedFrameWithoutRetry(t *testing.T) {
	h := newWriterHarness()
	h.sendErr = errors.New("link gone")
	h.writer.Write(frameRequest("*", false))
	require.Empty(t, h.sent)
	require.Len(t, h.failures, 1)

	// The writer is idle again; a later frame transmits normally.
	h.sendErr = nil
	h.writer.Write(frameRequest("**", false))
	require.Len(t, h.sent, 1)
}

func TestWriterResetForgetsHistory(t *testing.T) {
	h := newWriterHarness()
	h.writer.Write(frameRequest("*", true))
	h.writer.writeCompleted()

	h.writer.reset()
	h.writer.Write(frameRequest("*", true))
	require.Len(t, h.sent, 2)
}
