// Package logflags configures per-component debug logging for the debug
// engine. Each component gets a logrus entry tagged with a "layer" field;
// loggers for components that were not enabled are set to panic level so
// call sites do not need to be conditional.
package logflags

import (
	"errors"
	"io"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var proc = false
var miWire = false
var gdb = false
var lldb = false
var dap = false
var dapClient = false

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Proc returns true if the process supervisor should log subprocess
// lifecycle events.
func Proc() bool {
	return proc
}

// ProcLogger returns a configured logger for the process supervisor.
func ProcLogger() *logrus.Entry {
	return makeLogger(proc, logrus.Fields{"layer": "proc"})
}

// MIWire returns true if the GDB/MI layer should log every line
// exchanged with the debugger.
func MIWire() bool {
	return miWire
}

// MIWireLogger returns a configured logger for the GDB/MI wire protocol.
func MIWireLogger() *logrus.Entry {
	return makeLogger(miWire, logrus.Fields{"layer": "miwire"})
}

// GdbBackend returns true if the GDB backend should log.
func GdbBackend() bool {
	return gdb
}

// GdbBackendLogger returns a logger for the GDB backend.
func GdbBackendLogger() *logrus.Entry {
	return makeLogger(gdb, logrus.Fields{"layer": "backend", "kind": "gdb"})
}

// LLDBBackend returns true if the LLDB backend should log.
func LLDBBackend() bool {
	return lldb
}

// LLDBBackendLogger returns a logger for the LLDB backend.
func LLDBBackendLogger() *logrus.Entry {
	return makeLogger(lldb, logrus.Fields{"layer": "backend", "kind": "lldb"})
}

// DAP returns true if the DAP server should log.
func DAP() bool {
	return dap
}

// DAPLogger returns a logger for the DAP server.
func DAPLogger() *logrus.Entry {
	return makeLogger(dap, logrus.Fields{"layer": "dap"})
}

// DAPClient returns true if the DAP client should log.
func DAPClient() bool {
	return dapClient
}

// DAPClientLogger returns a logger for the DAP client.
func DAPClientLogger() *logrus.Entry {
	return makeLogger(dapClient, logrus.Fields{"layer": "dapclient"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets component logging flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "gdb,lldb,dap"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "proc":
			proc = true
		case "miwire":
			miWire = true
		case "gdb":
			gdb = true
		case "lldb":
			lldb = true
		case "dap":
			dap = true
		case "dapclient":
			dapClient = true
		}
	}
	return nil
}
