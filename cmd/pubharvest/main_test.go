package main

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestInterruptContext(t *testing.T) {
	ctx, stop := interruptContext(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("sending SIGTERM: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}

func TestInterruptContext_Stop(t *testing.T) {
	ctx, stop := interruptContext(context.Background())
	stop()
	if ctx.Err() == nil {
		t.Error("stop should cancel the context")
	}
}
