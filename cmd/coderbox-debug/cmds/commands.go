// Package cmds implements the coderbox-debug command tree.
package cmds

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	_ "github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend/gdb"
	_ "github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend/lldb"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/logflags"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/version"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/service/dap"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should
	// produce debug output.
	logOutput string
	// addr is the DAP server listen address.
	addr string
	// stdio serves DAP over the process's own stdin/stdout instead of
	// a socket.
	stdio bool
	// backendName selects the default debugger backend.
	backendName string
	// debuggerPath overrides the debugger executable.
	debuggerPath string
	// commandTimeout bounds every debugger command.
	commandTimeout time.Duration
)

const rootLongDesc = `coderbox-debug drives native debuggers (gdb, lldb) through a uniform
engine and exposes them to IDE frontends as a Debug Adapter Protocol
server.

Run 'coderbox-debug dap' to start the adapter, then point a DAP client
at it.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "coderbox-debug",
		Short: "A debug engine for native programs.",
		Long:  rootLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (proc, miwire, gdb, lldb, dap, dapclient).")

	dapCommand := &cobra.Command{
		Use:   "dap",
		Short: "Starts a DAP server.",
		Long: `Starts a DAP (Debug Adapter Protocol) server that a frontend can use to
launch or attach to a debug target. The server accepts one client for
one debug session and exits when the client disconnects.`,
		Run: dapCmd,
	}
	dapCommand.Flags().StringVarP(&addr, "listen", "l", "127.0.0.1:0", "DAP server listen address.")
	dapCommand.Flags().BoolVar(&stdio, "stdio", false, "Serve DAP over stdin/stdout instead of a socket.")
	dapCommand.Flags().StringVar(&backendName, "backend", defaultBackend(), "Default debugger backend (gdb, lldb).")
	dapCommand.Flags().StringVar(&debuggerPath, "debugger-path", "", "Path of the debugger executable, overriding lookup by name.")
	dapCommand.Flags().DurationVar(&commandTimeout, "command-timeout", backend.DefaultCommandTimeout, "Timeout for individual debugger commands.")
	rootCommand.AddCommand(dapCommand)

	backendsCommand := &cobra.Command{
		Use:   "backends",
		Short: "Prints the available debugger backends.",
		Run:   backendsCmd,
	}
	rootCommand.AddCommand(backendsCommand)

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("coderbox-debug\n%s\n", version.EngineVersion)
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

// defaultBackend picks the conventional system debugger per platform.
func defaultBackend() string {
	if runtime.GOOS == "darwin" {
		return "lldb"
	}
	return "gdb"
}

func dapCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}

		disconnectChan := make(chan struct{})
		conf := &dap.Config{
			DisconnectChan: disconnectChan,
			Backend:        backendName,
			BackendConfig: backend.Config{
				DebuggerPath:   debuggerPath,
				CommandTimeout: commandTimeout,
			},
		}

		var server *dap.Server
		if stdio {
			// Anything the engine prints would corrupt the protocol
			// stream, so logging moves to stderr.
			server = dap.NewServer(conf)
			server.RunStdio(os.Stdin, os.Stdout)
		} else {
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "couldn't start listener: %s\n", err)
				return 1
			}
			conf.Listener = listener
			server = dap.NewServer(conf)
			fmt.Printf("DAP server listening at: %s\n", listener.Addr())
			server.Run()
		}
		defer server.Stop()

		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-disconnectChan:
		case sig := <-ch:
			fmt.Fprintf(os.Stderr, "received %v, stopping\n", sig)
		}
		return 0
	}()
	os.Exit(status)
}

func backendsCmd(cmd *cobra.Command, args []string) {
	for _, name := range backend.Names() {
		result := backend.Probe(name)
		if result.Available {
			fmt.Printf("%-8s %s\n", name, result.Version)
		} else {
			fmt.Printf("%-8s unavailable (%v)\n", name, result.Err)
		}
	}
}
