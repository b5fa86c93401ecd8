package procutil

import (
	"net"
	"testing"
)

func TestPortBindableFree(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	if !PortBindable("127.0.0.1", port) {
		t.Errorf("expected port %d to be bindable after closing listener", port)
	}
}

func TestPortBindableOccupied(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	if PortBindable("127.0.0.1", port) {
		t.Errorf("expected port %d to be unbindable while held", port)
	}
}

func TestPortListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	if !PortListening("127.0.0.1", port) {
		t.Errorf("expected port %d to be listening", port)
	}
}

func TestPortListeningFree(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	if PortListening("127.0.0.1", port) {
		t.Errorf("expected port %d to not be listening after close", port)
	}
}
