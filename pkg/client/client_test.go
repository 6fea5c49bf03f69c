package client

import (
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/charlie0129/curtain/pkg/types"
)

// serveUnix serves h on a unix socket in a temporary directory.
func serveUnix(t *testing.T, h http.Handler) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "curtain.sock")
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: h}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return path
}

func TestClientDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.GetVersion()
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("GetVersion() error = %v, want ErrDaemonNotRunning", err)
	}
}

func TestClientAPIs(t *testing.T) {
	var gotTarget string
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"v1.2.3"`))
	})
	mux.HandleFunc("/devices", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"name": "a", "current_pos": 12, "state": "increasing"}]`))
	})
	mux.HandleFunc("/devices/a/target", func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		n, _ := r.Body.Read(buf)
		gotTarget = string(buf[:n])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`"moving a"`))
	})

	mux.HandleFunc("/devices/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`"device missing not found"`))
	})
	mux.HandleFunc("/devices/b/target", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`"target_pos must be within [0, 100], got 150"`))
	})

	c := NewClient(serveUnix(t, mux))

	v, err := c.GetVersion()
	if err != nil || v != "v1.2.3" {
		t.Errorf("GetVersion() = %q, %v", v, err)
	}

	states, err := c.GetDevices()
	if err != nil {
		t.Fatalf("GetDevices() error: %v", err)
	}
	want := []types.DeviceState{{Name: "a", CurrentPos: 12, State: "increasing"}}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("GetDevices() mismatch (-want +got):\n%s", diff)
	}

	msg, err := c.SetTarget("a", 37.5)
	if err != nil || msg != "moving a" {
		t.Errorf("SetTarget() = %q, %v", msg, err)
	}
	if gotTarget != "37.5" {
		t.Errorf("daemon received %q, want 37.5", gotTarget)
	}

	_, err = c.GetDevice("missing")
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("GetDevice(missing) error = %v, want ErrUnknownDevice", err)
	}
	if err != nil && !strings.Contains(err.Error(), "device missing not found") {
		t.Errorf("GetDevice(missing) error = %q, want the daemon's message", err)
	}

	if _, err := c.SetTarget("b", 150); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("SetTarget(b, 150) error = %v, want ErrInvalidTarget", err)
	}
}
