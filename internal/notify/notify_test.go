package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sshcore/transport/internal/server"
)

type fakeNotifier struct {
	calls []string
	err   error
}

func (f *fakeNotifier) Notify(summary, body string) error {
	f.calls = append(f.calls, summary+"|"+body)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleForwardsErrorPhaseChange(t *testing.T) {
	t.Parallel()

	fn := &fakeNotifier{}
	s := newSinkWithNotifier(fn, testLogger())

	s.handle(server.Event{
		Type:      server.EventPhaseChanged,
		SessionID: 7,
		Session:   server.Snapshot{InError: true, Error: "FATAL: mac verification failed"},
	})

	if len(fn.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fn.calls))
	}
	if fn.calls[0] != "sshcore session 7 entered ERROR|FATAL: mac verification failed" {
		t.Errorf("unexpected call: %q", fn.calls[0])
	}
}

func TestHandleIgnoresNonErrorPhaseChange(t *testing.T) {
	t.Parallel()

	fn := &fakeNotifier{}
	s := newSinkWithNotifier(fn, testLogger())

	s.handle(server.Event{
		Type:      server.EventPhaseChanged,
		SessionID: 1,
		Session:   server.Snapshot{InError: false},
	})

	if len(fn.calls) != 0 {
		t.Errorf("calls = %d, want 0 for a non-error phase change", len(fn.calls))
	}
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	t.Parallel()

	fn := &fakeNotifier{}
	s := newSinkWithNotifier(fn, testLogger())

	s.handle(server.Event{
		Type:      server.EventSessionAdded,
		SessionID: 1,
		Session:   server.Snapshot{InError: true},
	})
	s.handle(server.Event{
		Type:      server.EventSessionRemoved,
		SessionID: 1,
		Session:   server.Snapshot{InError: true},
	})

	if len(fn.calls) != 0 {
		t.Errorf("calls = %d, want 0 for SESSION_ADDED/SESSION_REMOVED", len(fn.calls))
	}
}

func TestHandleLogsNotifyFailureWithoutPanicking(t *testing.T) {
	t.Parallel()

	fn := &fakeNotifier{err: errors.New("dbus: no reply")}
	s := newSinkWithNotifier(fn, testLogger())

	s.handle(server.Event{
		Type:      server.EventPhaseChanged,
		SessionID: 3,
		Session:   server.Snapshot{InError: true, Error: "boom"},
	})

	if len(fn.calls) != 1 {
		t.Errorf("calls = %d, want 1 even though Notify returned an error", len(fn.calls))
	}
}

func TestWatchStopsOnChannelClose(t *testing.T) {
	t.Parallel()

	fn := &fakeNotifier{}
	s := newSinkWithNotifier(fn, testLogger())

	ch := make(chan server.Event)
	done := make(chan struct{})
	go func() {
		s.Watch(context.Background(), ch)
		close(done)
	}()

	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after channel closed")
	}
}

func TestWatchStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	fn := &fakeNotifier{}
	s := newSinkWithNotifier(fn, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan server.Event)
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, ch)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after context cancel")
	}
}

func TestWatchForwardsErrorEventsFromChannel(t *testing.T) {
	t.Parallel()

	fn := &fakeNotifier{}
	s := newSinkWithNotifier(fn, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan server.Event, 1)
	ch <- server.Event{
		Type:      server.EventPhaseChanged,
		SessionID: 9,
		Session:   server.Snapshot{InError: true, Error: "FATAL: oversize packet"},
	}

	done := make(chan struct{})
	go func() {
		s.Watch(ctx, ch)
		close(done)
	}()

	// Give the goroutine a moment to process the buffered event, then
	// cancel and make sure Watch exits cleanly.
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if len(fn.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fn.calls))
	}
}

func TestCloseWithoutConnIsNoop(t *testing.T) {
	t.Parallel()

	s := newSinkWithNotifier(&fakeNotifier{}, testLogger())
	if err := s.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
