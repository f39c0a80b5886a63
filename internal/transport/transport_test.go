package transport

import (
	"context"
	"errors"
	"testing"
)

func TestIPTransport_DefaultPort(t *testing.T) {
	tr := NewIPTransport("radio.local", 0)
	if tr.port != defaultIPPort {
		t.Fatalf("default port = %d, want %d", tr.port, defaultIPPort)
	}
}

func TestIPTransport_NotConnectedInitially(t *testing.T) {
	tr := NewIPTransport("radio.local", 4403)
	if tr.Connected() {
		t.Fatal("transport should not be connected initially")
	}
}

func TestIPTransport_WriteWithoutConnection(t *testing.T) {
	tr := NewIPTransport("radio.local", 4403)
	if err := tr.WriteFrame(context.Background(), []byte("hi")); err == nil {
		t.Fatal("expected error writing to an unconnected transport")
	}
}

func TestIPTransport_ReadWithoutConnection(t *testing.T) {
	tr := NewIPTransport("radio.local", 4403)
	if _, err := tr.ReadFrame(context.Background()); err == nil {
		t.Fatal("expected error reading from an unconnected transport")
	}
}

func TestSerialTransport_ConnectRejectsEmptyPort(t *testing.T) {
	tr := NewSerialTransport("", 115200)
	if err := tr.Connect(context.Background()); err == nil {
		t.Fatal("expected error connecting with an empty port name")
	}
}

func TestSerialTransport_ContextCancellation(t *testing.T) {
	tr := NewSerialTransport("/dev/ttyUSB0", 115200)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tr.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTransport_ImplementsInterface(t *testing.T) {
	var _ Transport = (*IPTransport)(nil)
	var _ Transport = (*SerialTransport)(nil)
}
