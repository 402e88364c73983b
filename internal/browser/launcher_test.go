package browser

import (
	"context"
	"net"
	"slices"
	"testing"
)

func TestArgs(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9333, ProfileDir: "/tmp/profile", Headless: true})
	args := l.args()

	for _, want := range []string{
		"--remote-debugging-port=9333",
		"--remote-debugging-address=127.0.0.1",
		"--user-data-dir=/tmp/profile",
		"--headless=new",
	} {
		if !slices.Contains(args, want) {
			t.Fatalf("args() = %v; missing %q", args, want)
		}
	}
	if last := args[len(args)-1]; last != "about:blank" {
		t.Fatalf("last arg = %q; want start URL about:blank", last)
	}
}

func TestLaunchSkipsWhenPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: port})
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if l.Started() {
		t.Fatalf("Started() = true; want false when a browser is already listening")
	}
	l.Stop()
}
