package systemd

import (
	"errors"
	"testing"

	"github.com/coreos/go-systemd/v22/daemon"
)

func TestNotifierMessages(t *testing.T) {
	var sent []string
	n := &Notifier{send: func(state string) (bool, error) {
		sent = append(sent, state)
		return true, nil
	}}

	if err := n.Ready(); err != nil {
		t.Fatal(err)
	}
	if err := n.Status("%d captures running", 2); err != nil {
		t.Fatal(err)
	}
	if err := n.Stopping(); err != nil {
		t.Fatal(err)
	}

	want := []string{daemon.SdNotifyReady, "STATUS=2 captures running", daemon.SdNotifyStopping}
	if len(sent) != len(want) {
		t.Fatalf("sent %q, want %q", sent, want)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, sent[i], want[i])
		}
	}
}

func TestNotifierError(t *testing.T) {
	cause := errors.New("connection refused")
	n := &Notifier{send: func(string) (bool, error) { return false, cause }}
	if err := n.Ready(); !errors.Is(err, cause) {
		t.Errorf("Ready() error = %v, want %v", err, cause)
	}
}

func TestNotifierOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if err := NewNotifier().Ready(); err != nil {
		t.Errorf("Ready() outside systemd error = %v", err)
	}
}
