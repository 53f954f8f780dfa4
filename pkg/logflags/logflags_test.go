package logflags

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func resetFlags() {
	proc = false
	miWire = false
	gdb = false
	lldb = false
	dap = false
	dapClient = false
}

func TestSetupComponents(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "proc,miwire,dapclient"); err != nil {
		t.Fatal(err)
	}
	if !Proc() || !MIWire() || !DAPClient() {
		t.Errorf("expected proc, miwire and dapclient to be enabled")
	}
	if GdbBackend() || LLDBBackend() || DAP() {
		t.Errorf("expected gdb, lldb and dap to stay disabled")
	}
}

func TestSetupDefault(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, ""); err != nil {
		t.Fatal(err)
	}
	if !GdbBackend() || !LLDBBackend() || !DAP() {
		t.Errorf("expected default components to be enabled")
	}
}

func TestSetupOutputWithoutLog(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, "gdb"); err == nil {
		t.Errorf("expected an error for --log-output without --log")
	}
}

func TestDisabledLoggerLevel(t *testing.T) {
	defer resetFlags()
	logger := GdbBackendLogger()
	if logger.Logger.Level != logrus.PanicLevel {
		t.Errorf("disabled logger level = %v, want PanicLevel", logger.Logger.Level)
	}
	gdb = true
	logger = GdbBackendLogger()
	if logger.Logger.Level != logrus.DebugLevel {
		t.Errorf("enabled logger level = %v, want DebugLevel", logger.Logger.Level)
	}
}
