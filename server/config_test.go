package server

import (
	"testing"
	"time"

	"github.com/badu/reactor/message"
)

func TestDefaultConfigValues(t *testing.T) {
	c := DefaultConfig()
	if c.HeaderLengthLimit != 16*1024 {
		t.Errorf("HeaderLengthLimit = %d; want 16KiB", c.HeaderLengthLimit)
	}
	if c.BodyLengthLimit != 2*1024*1024 {
		t.Errorf("BodyLengthLimit = %d; want 2MiB", c.BodyLengthLimit)
	}
	if c.IOBufferSize != 512 {
		t.Errorf("IOBufferSize = %d; want 512", c.IOBufferSize)
	}
	if c.KeepAliveMax != 0 {
		t.Errorf("KeepAliveMax = %d; want 0 (disabled)", c.KeepAliveMax)
	}
	if c.ConnectionIdleTimeout != 0 {
		t.Errorf("ConnectionIdleTimeout = %v; want 0", c.ConnectionIdleTimeout)
	}
	if c.DefaultExceptionStatus != 500 {
		t.Errorf("DefaultExceptionStatus = %d; want 500", c.DefaultExceptionStatus)
	}
	if !c.EmitDate {
		t.Error("EmitDate = false; want true by default")
	}
}

func TestNewAppliesOptionsOverDefaults(t *testing.T) {
	c := New(
		WithHeaderLimit(1024),
		WithBodyLimit(2048),
		WithIOBufferSize(128),
		WithKeepAliveMax(10),
		WithIdleTimeout(5*time.Second),
		WithDefaultExceptionStatus(502),
		WithDateHeader(false),
	)
	if c.HeaderLengthLimit != 1024 {
		t.Errorf("HeaderLengthLimit = %d; want 1024", c.HeaderLengthLimit)
	}
	if c.BodyLengthLimit != 2048 {
		t.Errorf("BodyLengthLimit = %d; want 2048", c.BodyLengthLimit)
	}
	if c.IOBufferSize != 128 {
		t.Errorf("IOBufferSize = %d; want 128", c.IOBufferSize)
	}
	if c.KeepAliveMax != 10 {
		t.Errorf("KeepAliveMax = %d; want 10", c.KeepAliveMax)
	}
	if c.ConnectionIdleTimeout != 5*time.Second {
		t.Errorf("ConnectionIdleTimeout = %v; want 5s", c.ConnectionIdleTimeout)
	}
	if c.DefaultExceptionStatus != 502 {
		t.Errorf("DefaultExceptionStatus = %d; want 502", c.DefaultExceptionStatus)
	}
	if c.EmitDate {
		t.Error("EmitDate = true; want false after WithDateHeader(false)")
	}
}

func TestWithSupportedMethodsOverridesTable(t *testing.T) {
	custom := message.MethodTable{"PATCH": true}
	c := New(WithSupportedMethods(custom))
	if _, known := c.SupportedMethods.AcceptsBody("PATCH"); !known {
		t.Fatal("expected custom method table to be applied")
	}
}
