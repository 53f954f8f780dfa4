// Package dap implements a Debug Adapter Protocol (DAP) server on top
// of the uniform debugger backend interface. The frontend connects
// over TCP or the adapter's stdio and drives one debug session;
// requests are serviced synchronously by the request loop while
// backend session events are translated to DAP events concurrently.
// For DAP details see https://microsoft.github.io/debug-adapter-protocol.
package dap

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/config"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/logflags"
)

// Config is all the information necessary to run the server.
type Config struct {
	// Listener accepts the client connection in TCP mode. The server
	// takes its ownership.
	Listener net.Listener
	// DisconnectChan is closed when the client disconnects or requests
	// shutdown. Once it is closed, Stop() must be called.
	DisconnectChan chan struct{}
	// Backend names the default debugger backend for sessions that do
	// not select one.
	Backend string
	// BackendConfig carries debugger construction parameters.
	BackendConfig backend.Config
	// NewDebugger overrides backend construction. Tests inject fakes
	// here; nil means the registry.
	NewDebugger func(name string, cfg backend.Config) (backend.Debugger, error)
}

// Server accepts a single client for a single debug session. It does
// not support restarting. Two goroutines carry a session: the request
// loop reads, decodes and services requests, and the event translator
// forwards backend session events to the client. The transport
// serializes concurrent writes.
type Server struct {
	config   *Config
	listener net.Listener
	// transport is the accepted client connection.
	transport Transport
	// stopChan is closed when the server is Stop()-ed.
	stopChan chan struct{}
	log      *logrus.Entry

	// dbg is the debugger serving this session, nil before launch or
	// attach.
	dbg backend.Debugger
	// launched is true when the session owns the target process, which
	// selects kill over detach on disconnect.
	launched bool
	// bpFile is the breakpoint persistence store path, restored on
	// session start and written back on teardown.
	bpFile string
	// translatorDone is closed when the event translator drained the
	// session's events.
	translatorDone chan struct{}

	// handlesMu guards the handle tables, which the request loop and
	// the event translator both touch.
	handlesMu sync.Mutex
	// stackFrameHandles maps frame ids across threads.
	stackFrameHandles *handlesMap
	// variableHandles maps scopes and compound variables.
	variableHandles *handlesMap
	// gotoHandles maps goto target ids handed out by gotoTargets.
	gotoHandles *handlesMap
}

// scopeRef marks a Locals scope handle.
type scopeRef struct {
	threadID int
	frame    int
}

// registersRef marks a Registers scope handle.
type registersRef struct {
	threadID int
}

// gotoTarget is the location behind a goto target id.
type gotoTarget struct {
	file string
	line int
}

// NewServer creates a DAP server from an opened listener, taking its
// ownership.
func NewServer(conf *Config) *Server {
	logger := logflags.DAPLogger()
	if conf.Listener != nil {
		logger.Debugf("DAP server listening at: %s", conf.Listener.Addr())
	}
	logger.Debug("DAP server pid = ", os.Getpid())
	return &Server{
		config:            conf,
		listener:          conf.Listener,
		stopChan:          make(chan struct{}),
		log:               logger,
		stackFrameHandles: newHandlesMap(),
		variableHandles:   newHandlesMap(),
		gotoHandles:       newHandlesMap(),
	}
}

// Stop closes the listener and the client connection and tears down
// the debug session, killing the target if this session launched it.
// This method mustn't be called more than once.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	close(s.stopChan)
	if s.transport != nil {
		// Closing the transport fails the next read, breaking the
		// request loop.
		s.transport.Close()
	}
	s.teardownSession()
}

func (s *Server) teardownSession() {
	if s.dbg == nil {
		return
	}
	s.persistBreakpoints()
	var err error
	if s.launched {
		err = s.dbg.Terminate()
	} else {
		err = s.dbg.Detach()
	}
	if err != nil {
		s.log.Error(err)
	}
	if s.translatorDone != nil {
		<-s.translatorDone
	}
	s.dbg = nil
}

// signalDisconnect closes config.DisconnectChan if not nil, signaling
// client disconnect or connection failure to the server's owner. It
// guards against closing the channel twice: the disconnect request
// handler and the request loop exit can both arrive here.
func (s *Server) signalDisconnect() {
	if s.config.DisconnectChan != nil {
		close(s.config.DisconnectChan)
		s.config.DisconnectChan = nil
	}
}

// Run accepts one client connection and processes requests from it in
// a new goroutine. Use Stop() to close the connection. A new server
// must be started for every debug session.
func (s *Server) Run() {
	go func() {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				s.log.Errorf("Error accepting client connection: %s", err)
			}
			s.signalDisconnect()
			return
		}
		s.transport = NewConnTransport(conn)
		s.serveDAPCodec()
	}()
}

// RunStdio serves the session over the adapter's own stdio instead of
// a socket, in a new goroutine.
func (s *Server) RunStdio(in io.ReadCloser, out io.WriteCloser) {
	s.transport = NewStreamTransport(in, out)
	go s.serveDAPCodec()
}

// serveDAPCodec reads and decodes requests from the client until it
// encounters an error or EOF, when it sends the disconnect signal and
// returns.
func (s *Server) serveDAPCodec() {
	defer s.signalDisconnect()
	for {
		request, err := s.transport.ReadMessage()
		if err != nil {
			stopRequested := false
			select {
			case <-s.stopChan:
				stopRequested = true
			default:
			}
			if err != io.EOF && err != ErrTransportClosed && !stopRequested {
				s.log.Error("DAP error: ", err)
			}
			return
		}
		s.handleRequest(request)
	}
}

func (s *Server) handleRequest(request dap.Message) {
	defer func() {
		// A panicking handler must not take the whole server down.
		if ierr := recover(); ierr != nil {
			s.sendInternalErrorResponse(request.GetSeq(), fmt.Sprintf("%v", ierr))
		}
	}()

	jsonmsg, _ := json.Marshal(request)
	s.log.Debug("[<- from client]", string(jsonmsg))

	switch request := request.(type) {
	case *dap.InitializeRequest:
		s.onInitializeRequest(request)
	case *dap.LaunchRequest:
		s.onLaunchRequest(request)
	case *dap.AttachRequest:
		s.onAttachRequest(request)
	case *dap.DisconnectRequest:
		s.onDisconnectRequest(request)
	case *dap.TerminateRequest:
		s.onTerminateRequest(request)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpointsRequest(request)
	case *dap.SetFunctionBreakpointsRequest:
		s.onSetFunctionBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		s.onSetExceptionBreakpointsRequest(request)
	case *dap.DataBreakpointInfoRequest:
		s.onDataBreakpointInfoRequest(request)
	case *dap.SetDataBreakpointsRequest:
		s.onSetDataBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		s.onConfigurationDoneRequest(request)
	case *dap.ContinueRequest:
		s.onContinueRequest(request)
	case *dap.NextRequest:
		s.onNextRequest(request)
	case *dap.StepInRequest:
		s.onStepInRequest(request)
	case *dap.StepOutRequest:
		s.onStepOutRequest(request)
	case *dap.PauseRequest:
		s.onPauseRequest(request)
	case *dap.GotoTargetsRequest:
		s.onGotoTargetsRequest(request)
	case *dap.GotoRequest:
		s.onGotoRequest(request)
	case *dap.StackTraceRequest:
		s.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		s.onScopesRequest(request)
	case *dap.VariablesRequest:
		s.onVariablesRequest(request)
	case *dap.EvaluateRequest:
		s.onEvaluateRequest(request)
	case *dap.ThreadsRequest:
		s.onThreadsRequest(request)
	case *dap.ReadMemoryRequest:
		s.onReadMemoryRequest(request)
	case *dap.WriteMemoryRequest:
		s.onWriteMemoryRequest(request)
	case *dap.DisassembleRequest:
		s.onDisassembleRequest(request)
	case *dap.ModulesRequest:
		s.onModulesRequest(request)
	case *dap.RestartRequest,
		*dap.StepBackRequest,
		*dap.ReverseContinueRequest,
		*dap.RestartFrameRequest,
		*dap.SetVariableRequest,
		*dap.SetExpressionRequest,
		*dap.SourceRequest,
		*dap.TerminateThreadsRequest,
		*dap.StepInTargetsRequest,
		*dap.CompletionsRequest,
		*dap.ExceptionInfoRequest,
		*dap.LoadedSourcesRequest:
		s.sendUnsupportedErrorResponse(*request.(dap.RequestMessage).GetRequest())
	default:
		s.sendInternalErrorResponse(request.GetSeq(), fmt.Sprintf("Unable to process %#v", request))
	}
}

func (s *Server) send(message dap.Message) {
	jsonmsg, _ := json.Marshal(message)
	s.log.Debug("[-> to client]", string(jsonmsg))
	if err := s.transport.WriteMessage(message); err != nil {
		s.log.Error("write error: ", err)
	}
}

func (s *Server) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{Response: *newResponse(request.Request)}
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsFunctionBreakpoints = true
	response.Body.SupportsDataBreakpoints = true
	response.Body.SupportsLogPoints = true
	response.Body.SupportsTerminateRequest = true
	response.Body.SupportsGotoTargetsRequest = true
	response.Body.SupportsModulesRequest = true
	response.Body.SupportsReadMemoryRequest = true
	response.Body.SupportsWriteMemoryRequest = true
	response.Body.SupportsDisassembleRequest = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsSetVariable = false
	s.send(response)
}

// launchAttachArgs are the arguments of both launch and attach
// requests; DAP leaves their layout to each implementation. mode
// selects how the session acquires its target.
type launchAttachArgs struct {
	// Mode is "exec" (default) to launch Program, "attach" to attach
	// to ProcessID or ProcessName, "remote" to connect to Target, or
	// "core" to open CoreFile against Program.
	Mode        string            `json:"mode,omitempty"`
	Program     string            `json:"program,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	StopOnEntry bool              `json:"stopOnEntry,omitempty"`
	Console     string            `json:"console,omitempty"`
	PreLaunch   string            `json:"preLaunchCommand,omitempty"`

	Backend      string `json:"backend,omitempty"`
	DebuggerPath string `json:"debuggerPath,omitempty"`

	ProcessID   int    `json:"processId,omitempty"`
	ProcessName string `json:"processName,omitempty"`
	Target      string `json:"target,omitempty"`
	CoreFile    string `json:"coreFilePath,omitempty"`

	// ConfigFile names a saved launch configuration; explicit
	// attributes above override its fields.
	ConfigFile string `json:"configFile,omitempty"`
	// BreakpointsFile names a breakpoint persistence store restored
	// when the session starts and written back when it ends.
	BreakpointsFile string `json:"breakpointsFile,omitempty"`
}

func (s *Server) newDebugger(name string) (backend.Debugger, error) {
	if name == "" {
		name = s.config.Backend
	}
	if name == "" {
		name = "gdb"
	}
	cfg := s.config.BackendConfig
	if s.config.NewDebugger != nil {
		return s.config.NewDebugger(name, cfg)
	}
	return backend.New(name, cfg)
}

func (s *Server) onLaunchRequest(request *dap.LaunchRequest) {
	var args launchAttachArgs
	if err := json.Unmarshal(request.Arguments, &args); err != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", err.Error())
		return
	}
	if args.Mode == "" {
		args.Mode = "exec"
	}
	s.startSession(request.Request, args, FailedToLaunch, "Failed to launch")
}

func (s *Server) onAttachRequest(request *dap.AttachRequest) {
	var args launchAttachArgs
	if err := json.Unmarshal(request.Arguments, &args); err != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", err.Error())
		return
	}
	if args.Mode == "" {
		args.Mode = "attach"
	}
	s.startSession(request.Request, args, FailedToAttach, "Failed to attach")
}

// startSession services launch and attach, which differ only in how
// the target is acquired. On success the acknowledging response is
// followed by the initialized event.
func (s *Server) startSession(request dap.Request, args launchAttachArgs, errID int, errSummary string) {
	if s.dbg != nil {
		s.sendErrorResponse(request, errID, errSummary, "debug session already in progress")
		return
	}

	cfg, err := s.buildLaunchConfig(args)
	if err != nil {
		s.sendErrorResponse(request, errID, errSummary, err.Error())
		return
	}

	dbg, err := s.newDebugger(cfg.Backend)
	if err != nil {
		s.sendErrorResponse(request, errID, errSummary, err.Error())
		return
	}

	switch args.Mode {
	case "exec":
		if cfg.Program == "" {
			s.sendErrorResponse(request, errID, errSummary, "The program attribute is missing in debug configuration.")
			return
		}
		err = dbg.Launch(cfg)
		s.launched = true
	case "attach":
		switch {
		case args.ProcessID != 0:
			err = dbg.Attach(args.ProcessID)
		case args.ProcessName != "":
			err = dbg.AttachByName(args.ProcessName)
		default:
			s.sendErrorResponse(request, errID, errSummary, "attach mode needs processId or processName")
			return
		}
	case "remote":
		target := args.Target
		if target == "" {
			target = cfg.RemoteTarget
		}
		if target == "" {
			s.sendErrorResponse(request, errID, errSummary, "remote mode needs a target address")
			return
		}
		err = dbg.ConnectRemote(target)
	case "core":
		core := args.CoreFile
		if core == "" {
			core = cfg.CoreFile
		}
		if cfg.Program == "" || core == "" {
			s.sendErrorResponse(request, errID, errSummary, "core mode needs program and coreFilePath")
			return
		}
		err = dbg.LoadCoreDump(cfg.Program, core)
	default:
		s.sendErrorResponse(request, errID, errSummary, fmt.Sprintf("unsupported mode %q", args.Mode))
		return
	}
	if err != nil {
		s.launched = false
		s.sendErrorResponse(request, errID, errSummary, err.Error())
		return
	}

	s.dbg = dbg
	s.bpFile = args.BreakpointsFile
	s.translatorDone = make(chan struct{})
	go s.translateEvents(dbg)

	s.restoreBreakpoints()

	switch request.Command {
	case "attach":
		s.send(&dap.AttachResponse{Response: *newResponse(request)})
	default:
		s.send(&dap.LaunchResponse{Response: *newResponse(request)})
	}
	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})

	e := &dap.ProcessEvent{Event: *newEvent("process")}
	e.Body.Name = cfg.Program
	e.Body.SystemProcessId = dbg.Session().TargetPid()
	e.Body.IsLocalProcess = args.Mode != "remote"
	if s.launched {
		e.Body.StartMethod = "launch"
	} else {
		e.Body.StartMethod = "attach"
	}
	s.send(e)
}

// restoreBreakpoints replays the persistence store into the new
// session. Failures are logged, not fatal: a stale location simply
// stays pending or invalid.
func (s *Server) restoreBreakpoints() {
	if s.bpFile == "" {
		return
	}
	saved, err := config.LoadBreakpoints(s.bpFile)
	if err != nil {
		s.log.Errorf("could not read breakpoint store %s: %v", s.bpFile, err)
		return
	}
	for _, sb := range saved {
		kind := backend.LineBreakpoint
		switch {
		case sb.LogMessage != "":
			kind = backend.Logpoint
		case sb.Condition != "":
			kind = backend.ConditionalBreakpoint
		case sb.Function != "":
			kind = backend.FunctionBreakpoint
		case sb.Address != 0:
			kind = backend.AddressBreakpoint
		}
		loc := backend.Location{File: sb.File, Line: sb.Line, Function: sb.Function, Address: sb.Address}
		bp, err := s.dbg.SetBreakpoint(loc, kind, sb.Condition, sb.LogMessage)
		if err != nil {
			s.log.Errorf("could not restore breakpoint %s: %v", loc, err)
			continue
		}
		if !sb.Enabled {
			if err := s.dbg.EnableBreakpoint(bp.ID, false); err != nil {
				s.log.Errorf("could not disable restored breakpoint %d: %v", bp.ID, err)
			}
		}
	}
}

// persistBreakpoints writes the session's breakpoints back to the
// store. Watchpoints are not persisted: watched expressions are only
// meaningful within the address space they were created in.
func (s *Server) persistBreakpoints() {
	if s.bpFile == "" || s.dbg == nil {
		return
	}
	var saved []config.SavedBreakpoint
	for _, bp := range s.dbg.Session().Breakpoints.All() {
		if bp.Kind == backend.Watchpoint {
			continue
		}
		saved = append(saved, config.SavedBreakpoint{
			File:       bp.Loc.File,
			Line:       bp.Loc.Line,
			Function:   bp.Loc.Function,
			Address:    bp.Loc.Address,
			Condition:  bp.Condition,
			LogMessage: bp.LogMessage,
			Enabled:    bp.Enabled,
		})
	}
	if err := config.SaveBreakpoints(s.bpFile, saved); err != nil {
		s.log.Errorf("could not write breakpoint store %s: %v", s.bpFile, err)
	}
}

// buildLaunchConfig merges a saved configuration file with request
// attributes; explicit attributes win.
func (s *Server) buildLaunchConfig(args launchAttachArgs) (*config.LaunchConfig, error) {
	cfg := &config.LaunchConfig{}
	if args.ConfigFile != "" {
		loaded, err := config.LoadLaunchConfig(args.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if args.Program != "" {
		program, err := filepath.Abs(args.Program)
		if err != nil {
			return nil, err
		}
		cfg.Program = program
	}
	if len(args.Args) > 0 {
		cfg.Args = joinArgs(args.Args)
	}
	if args.Cwd != "" {
		cfg.WorkingDir = args.Cwd
	}
	if len(args.Env) > 0 {
		if cfg.Env == nil {
			cfg.Env = make(map[string]string)
		}
		for k, v := range args.Env {
			cfg.Env[k] = v
		}
	}
	if args.Backend != "" {
		cfg.Backend = args.Backend
	}
	if args.DebuggerPath != "" {
		cfg.DebuggerPath = args.DebuggerPath
	}
	if args.Console != "" {
		cfg.Console = config.ConsoleMode(args.Console)
	}
	if args.PreLaunch != "" {
		cfg.PreLaunch = args.PreLaunch
	}
	if args.StopOnEntry {
		cfg.StopOnEntry = true
	}
	return cfg, nil
}

// joinArgs renders an argument vector into the quoted single-string
// form launch configurations use.
func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'\\") {
			quoted[i] = strconv.Quote(a)
		} else {
			quoted[i] = a
		}
	}
	return strings.Join(quoted, " ")
}

func (s *Server) onDisconnectRequest(request *dap.DisconnectRequest) {
	s.teardownSession()
	s.send(&dap.DisconnectResponse{Response: *newResponse(request.Request)})
	s.signalDisconnect()
}

func (s *Server) onTerminateRequest(request *dap.TerminateRequest) {
	if s.dbg != nil {
		if err := s.dbg.Terminate(); err != nil {
			s.log.Error(err)
		}
	}
	s.send(&dap.TerminateResponse{Response: *newResponse(request.Request)})
	s.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
}

func (s *Server) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	s.send(&dap.ConfigurationDoneResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, UnableToSetBreakpoints, "Unable to set breakpoints", "no debug session")
		return
	}
	path := request.Arguments.Source.Path

	// The request replaces all breakpoints of the file.
	for _, bp := range s.dbg.Session().Breakpoints.All() {
		if bp.Kind == backend.Watchpoint || bp.Kind == backend.FunctionBreakpoint {
			continue
		}
		if bp.Loc.File != path {
			continue
		}
		if err := s.dbg.RemoveBreakpoint(bp.ID); err != nil {
			s.log.Errorf("could not clear breakpoint %d: %v", bp.ID, err)
		}
	}

	response := &dap.SetBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i, want := range request.Arguments.Breakpoints {
		kind := backend.LineBreakpoint
		switch {
		case want.LogMessage != "":
			kind = backend.Logpoint
		case want.Condition != "":
			kind = backend.ConditionalBreakpoint
		}
		bp, err := s.dbg.SetBreakpoint(
			backend.Location{File: path, Line: want.Line},
			kind, want.Condition, want.LogMessage)
		if err != nil {
			response.Body.Breakpoints[i] = dap.Breakpoint{
				Verified: false,
				Message:  err.Error(),
				Line:     want.Line,
			}
			continue
		}
		response.Body.Breakpoints[i] = toDAPBreakpoint(bp)
	}
	s.send(response)
}

func (s *Server) onSetFunctionBreakpointsRequest(request *dap.SetFunctionBreakpointsRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, UnableToSetBreakpoints, "Unable to set breakpoints", "no debug session")
		return
	}
	for _, bp := range s.dbg.Session().Breakpoints.All() {
		if bp.Kind != backend.FunctionBreakpoint {
			continue
		}
		if err := s.dbg.RemoveBreakpoint(bp.ID); err != nil {
			s.log.Errorf("could not clear breakpoint %d: %v", bp.ID, err)
		}
	}

	response := &dap.SetFunctionBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i, want := range request.Arguments.Breakpoints {
		bp, err := s.dbg.SetBreakpoint(
			backend.Location{Function: want.Name},
			backend.FunctionBreakpoint, want.Condition, "")
		if err != nil {
			response.Body.Breakpoints[i] = dap.Breakpoint{Verified: false, Message: err.Error()}
			continue
		}
		response.Body.Breakpoints[i] = toDAPBreakpoint(bp)
	}
	s.send(response)
}

func (s *Server) onSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) {
	// Signal filtering is not configurable; stops on signals are
	// always reported.
	s.send(&dap.SetExceptionBreakpointsResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onDataBreakpointInfoRequest(request *dap.DataBreakpointInfoRequest) {
	response := &dap.DataBreakpointInfoResponse{Response: *newResponse(request.Request)}
	response.Body.DataId = request.Arguments.Name
	response.Body.Description = request.Arguments.Name
	response.Body.AccessTypes = []dap.DataBreakpointAccessType{"read", "write", "readWrite"}
	s.send(response)
}

func (s *Server) onSetDataBreakpointsRequest(request *dap.SetDataBreakpointsRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, UnableToSetWatchpoints, "Unable to set watchpoints", "no debug session")
		return
	}
	for _, bp := range s.dbg.Session().Breakpoints.All() {
		if bp.Kind != backend.Watchpoint {
			continue
		}
		if err := s.dbg.RemoveBreakpoint(bp.ID); err != nil {
			s.log.Errorf("could not clear watchpoint %d: %v", bp.ID, err)
		}
	}

	response := &dap.SetDataBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i, want := range request.Arguments.Breakpoints {
		write := want.AccessType == "" || want.AccessType == "write" || want.AccessType == "readWrite"
		read := want.AccessType == "read" || want.AccessType == "readWrite"
		bp, err := s.dbg.SetWatchpoint(want.DataId, write, read)
		if err != nil {
			response.Body.Breakpoints[i] = dap.Breakpoint{Verified: false, Message: err.Error()}
			continue
		}
		response.Body.Breakpoints[i] = dap.Breakpoint{Id: bp.ID, Verified: true}
	}
	s.send(response)
}

func (s *Server) onContinueRequest(request *dap.ContinueRequest) {
	if err := s.execControl(func() error { return s.dbg.Continue() }); err != nil {
		s.sendErrorResponse(request.Request, UnableToControlExecution, "Unable to continue", err.Error())
		return
	}
	response := &dap.ContinueResponse{Response: *newResponse(request.Request)}
	response.Body.AllThreadsContinued = true
	s.send(response)
}

func (s *Server) onNextRequest(request *dap.NextRequest) {
	step := backend.Debugger.StepOver
	if request.Arguments.Granularity == "instruction" {
		step = backend.Debugger.StepInstruction
	}
	if err := s.execControl(func() error { return step(s.dbg) }); err != nil {
		s.sendErrorResponse(request.Request, UnableToControlExecution, "Unable to step", err.Error())
		return
	}
	s.send(&dap.NextResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onStepInRequest(request *dap.StepInRequest) {
	if err := s.execControl(func() error { return s.dbg.StepInto() }); err != nil {
		s.sendErrorResponse(request.Request, UnableToControlExecution, "Unable to step in", err.Error())
		return
	}
	s.send(&dap.StepInResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onStepOutRequest(request *dap.StepOutRequest) {
	if err := s.execControl(func() error { return s.dbg.StepOut() }); err != nil {
		s.sendErrorResponse(request.Request, UnableToControlExecution, "Unable to step out", err.Error())
		return
	}
	s.send(&dap.StepOutResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onPauseRequest(request *dap.PauseRequest) {
	if err := s.execControl(func() error { return s.dbg.Pause() }); err != nil {
		s.sendErrorResponse(request.Request, UnableToControlExecution, "Unable to pause", err.Error())
		return
	}
	s.send(&dap.PauseResponse{Response: *newResponse(request.Request)})
}

// execControl runs one execution-control operation against the live
// session.
func (s *Server) execControl(op func() error) error {
	if s.dbg == nil {
		return fmt.Errorf("no debug session")
	}
	return op()
}

func (s *Server) onGotoTargetsRequest(request *dap.GotoTargetsRequest) {
	response := &dap.GotoTargetsResponse{Response: *newResponse(request.Request)}
	s.handlesMu.Lock()
	id := s.gotoHandles.create(gotoTarget{
		file: request.Arguments.Source.Path,
		line: request.Arguments.Line,
	})
	s.handlesMu.Unlock()
	response.Body.Targets = []dap.GotoTarget{{
		Id:    id,
		Label: fmt.Sprintf("%s:%d", filepath.Base(request.Arguments.Source.Path), request.Arguments.Line),
		Line:  request.Arguments.Line,
	}}
	s.send(response)
}

func (s *Server) onGotoRequest(request *dap.GotoRequest) {
	s.handlesMu.Lock()
	v, ok := s.gotoHandles.get(request.Arguments.TargetId)
	s.handlesMu.Unlock()
	if !ok || s.dbg == nil {
		s.sendErrorResponse(request.Request, UnableToControlExecution, "Unable to goto", "unknown goto target")
		return
	}
	target := v.(gotoTarget)
	if err := s.dbg.SetNextStatement(target.file, target.line); err != nil {
		s.sendErrorResponse(request.Request, UnableToControlExecution, "Unable to goto", err.Error())
		return
	}
	s.send(&dap.GotoResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onThreadsRequest(request *dap.ThreadsRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, NoDebugSession, "Unable to display threads", "no debug session")
		return
	}
	threads, err := s.dbg.Threads()
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToDisplayThreads, "Unable to display threads", err.Error())
		return
	}
	response := &dap.ThreadsResponse{Response: *newResponse(request.Request)}
	response.Body.Threads = make([]dap.Thread, 0, len(threads))
	for _, th := range threads {
		name := th.Name
		if name == "" {
			name = fmt.Sprintf("thread %d", th.ID)
		}
		response.Body.Threads = append(response.Body.Threads, dap.Thread{Id: th.ID, Name: name})
	}
	if len(response.Body.Threads) == 0 {
		// Some frontends can't handle an empty list.
		response.Body.Threads = []dap.Thread{{Id: 1, Name: "thread 1"}}
	}
	s.send(response)
}

func (s *Server) onStackTraceRequest(request *dap.StackTraceRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, NoDebugSession, "Unable to produce stack trace", "no debug session")
		return
	}
	threadID := request.Arguments.ThreadId
	depth := 0
	if request.Arguments.Levels > 0 {
		depth = request.Arguments.StartFrame + request.Arguments.Levels
	}
	frames, err := s.dbg.Stacktrace(threadID, depth)
	if err != nil {
		s.sendErrorResponse(request.Request, inspectErrorID(err, UnableToProduceStackTrace), "Unable to produce stack trace", err.Error())
		return
	}

	response := &dap.StackTraceResponse{Response: *newResponse(request.Request)}
	response.Body.TotalFrames = len(frames)
	if request.Arguments.StartFrame > 0 {
		if request.Arguments.StartFrame >= len(frames) {
			frames = nil
		} else {
			frames = frames[request.Arguments.StartFrame:]
		}
	}
	response.Body.StackFrames = make([]dap.StackFrame, 0, len(frames))
	for _, fr := range frames {
		s.handlesMu.Lock()
		id := s.stackFrameHandles.create(frameID{threadID, fr.Level})
		s.handlesMu.Unlock()
		dapFrame := dap.StackFrame{
			Id:                          id,
			Name:                        fr.Function,
			Line:                        fr.Line,
			InstructionPointerReference: fmt.Sprintf("%#x", fr.Address),
		}
		if dapFrame.Name == "" {
			dapFrame.Name = fmt.Sprintf("%#x", fr.Address)
		}
		if fr.File != "" {
			dapFrame.Source = &dap.Source{Name: filepath.Base(fr.File), Path: fr.File}
		}
		response.Body.StackFrames = append(response.Body.StackFrames, dapFrame)
	}
	s.send(response)
}

func (s *Server) onScopesRequest(request *dap.ScopesRequest) {
	s.handlesMu.Lock()
	v, ok := s.stackFrameHandles.get(request.Arguments.FrameId)
	s.handlesMu.Unlock()
	if !ok {
		s.sendErrorResponse(request.Request, UnableToListVariables, "Unable to list locals", fmt.Sprintf("unknown frame id %d", request.Arguments.FrameId))
		return
	}
	frame := v.(frameID)

	s.handlesMu.Lock()
	localsRef := s.variableHandles.create(scopeRef{frame.threadID, frame.frame})
	regsRef := s.variableHandles.create(registersRef{frame.threadID})
	s.handlesMu.Unlock()

	response := &dap.ScopesResponse{Response: *newResponse(request.Request)}
	response.Body.Scopes = []dap.Scope{
		{Name: "Locals", VariablesReference: localsRef},
		{Name: "Registers", VariablesReference: regsRef, Expensive: true},
	}
	s.send(response)
}

func (s *Server) onVariablesRequest(request *dap.VariablesRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, NoDebugSession, "Unable to lookup variable", "no debug session")
		return
	}
	s.handlesMu.Lock()
	v, ok := s.variableHandles.get(request.Arguments.VariablesReference)
	s.handlesMu.Unlock()
	if !ok {
		s.sendErrorResponse(request.Request, UnableToListVariables, "Unable to lookup variable",
			fmt.Sprintf("unknown reference %d", request.Arguments.VariablesReference))
		return
	}

	var (
		vars []backend.Variable
		err  error
	)
	switch ref := v.(type) {
	case scopeRef:
		vars, err = s.dbg.Variables(ref.threadID, ref.frame)
	case registersRef:
		var regs []backend.Register
		regs, err = s.dbg.Registers(ref.threadID)
		for _, r := range regs {
			vars = append(vars, backend.Variable{Name: r.Name, Value: r.Value})
		}
	case varRef:
		vars, err = s.dbg.VariableChildren(ref.backendRef)
	}
	if err != nil {
		s.sendErrorResponse(request.Request, inspectErrorID(err, UnableToListVariables), "Unable to lookup variable", err.Error())
		return
	}

	response := &dap.VariablesResponse{Response: *newResponse(request.Request)}
	response.Body.Variables = make([]dap.Variable, 0, len(vars))
	for _, bv := range vars {
		response.Body.Variables = append(response.Body.Variables, s.toDAPVariable(bv))
	}
	s.send(response)
}

func (s *Server) toDAPVariable(v backend.Variable) dap.Variable {
	dv := dap.Variable{
		Name:  v.Name,
		Value: v.Value,
		Type:  v.Type,
	}
	if dv.Value == "" {
		dv.Value = v.Type
	}
	if v.Ref > 0 {
		s.handlesMu.Lock()
		dv.VariablesReference = s.variableHandles.create(varRef{backendRef: v.Ref})
		s.handlesMu.Unlock()
		if v.NumChildren > 0 {
			dv.NamedVariables = v.NumChildren
		}
	}
	return dv
}

func (s *Server) onEvaluateRequest(request *dap.EvaluateRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, NoDebugSession, "Unable to evaluate expression", "no debug session")
		return
	}
	threadID, frame := s.dbg.Session().ActiveThread(), 0
	if request.Arguments.FrameId > 0 {
		s.handlesMu.Lock()
		v, ok := s.stackFrameHandles.get(request.Arguments.FrameId)
		s.handlesMu.Unlock()
		if ok {
			fid := v.(frameID)
			threadID, frame = fid.threadID, fid.frame
		}
	}
	result, err := s.dbg.Evaluate(threadID, frame, request.Arguments.Expression)
	if err != nil {
		s.sendErrorResponse(request.Request, inspectErrorID(err, UnableToEvaluateExpression), "Unable to evaluate expression", err.Error())
		return
	}
	response := &dap.EvaluateResponse{Response: *newResponse(request.Request)}
	dv := s.toDAPVariable(*result)
	response.Body.Result = dv.Value
	response.Body.Type = dv.Type
	response.Body.VariablesReference = dv.VariablesReference
	s.send(response)
}

func (s *Server) onReadMemoryRequest(request *dap.ReadMemoryRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, NoDebugSession, "Unable to read memory", "no debug session")
		return
	}
	addr, err := strconv.ParseUint(request.Arguments.MemoryReference, 0, 64)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToReadMemory, "Unable to read memory", err.Error())
		return
	}
	addr += uint64(request.Arguments.Offset)
	data, err := s.dbg.ReadMemory(addr, request.Arguments.Count)
	if err != nil {
		s.sendErrorResponse(request.Request, inspectErrorID(err, UnableToReadMemory), "Unable to read memory", err.Error())
		return
	}
	response := &dap.ReadMemoryResponse{Response: *newResponse(request.Request)}
	response.Body.Address = fmt.Sprintf("%#x", addr)
	response.Body.Data = base64.StdEncoding.EncodeToString(data)
	if len(data) < request.Arguments.Count {
		response.Body.UnreadableBytes = request.Arguments.Count - len(data)
	}
	s.send(response)
}

func (s *Server) onWriteMemoryRequest(request *dap.WriteMemoryRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, NoDebugSession, "Unable to write memory", "no debug session")
		return
	}
	addr, err := strconv.ParseUint(request.Arguments.MemoryReference, 0, 64)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToWriteMemory, "Unable to write memory", err.Error())
		return
	}
	addr += uint64(request.Arguments.Offset)
	data, err := base64.StdEncoding.DecodeString(request.Arguments.Data)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToWriteMemory, "Unable to write memory", err.Error())
		return
	}
	if err := s.dbg.WriteMemory(addr, data); err != nil {
		s.sendErrorResponse(request.Request, inspectErrorID(err, UnableToWriteMemory), "Unable to write memory", err.Error())
		return
	}
	response := &dap.WriteMemoryResponse{Response: *newResponse(request.Request)}
	response.Body.BytesWritten = len(data)
	s.send(response)
}

// maxInstrBytes bounds the memory range disassembled per instruction
// requested.
const maxInstrBytes = 16

func (s *Server) onDisassembleRequest(request *dap.DisassembleRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, NoDebugSession, "Unable to disassemble", "no debug session")
		return
	}
	addr, err := strconv.ParseUint(request.Arguments.MemoryReference, 0, 64)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToDisassemble, "Unable to disassemble", err.Error())
		return
	}
	addr += uint64(request.Arguments.Offset)
	count := request.Arguments.InstructionCount
	if count <= 0 {
		count = 1
	}
	instrs, err := s.dbg.Disassemble(addr, addr+uint64(count*maxInstrBytes))
	if err != nil {
		s.sendErrorResponse(request.Request, inspectErrorID(err, UnableToDisassemble), "Unable to disassemble", err.Error())
		return
	}
	if len(instrs) > count {
		instrs = instrs[:count]
	}
	response := &dap.DisassembleResponse{Response: *newResponse(request.Request)}
	response.Body.Instructions = make([]dap.DisassembledInstruction, 0, len(instrs))
	for _, in := range instrs {
		response.Body.Instructions = append(response.Body.Instructions, dap.DisassembledInstruction{
			Address:          fmt.Sprintf("%#x", in.Address),
			Instruction:      in.Text,
			InstructionBytes: in.Opcodes,
		})
	}
	s.send(response)
}

func (s *Server) onModulesRequest(request *dap.ModulesRequest) {
	if s.dbg == nil {
		s.sendErrorResponse(request.Request, NoDebugSession, "Unable to list modules", "no debug session")
		return
	}
	mods, err := s.dbg.Modules()
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToListModules, "Unable to list modules", err.Error())
		return
	}
	response := &dap.ModulesResponse{Response: *newResponse(request.Request)}
	response.Body.TotalModules = len(mods)
	response.Body.Modules = make([]dap.Module, 0, len(mods))
	for _, m := range mods {
		response.Body.Modules = append(response.Body.Modules, toDAPModule(m))
	}
	s.send(response)
}

// translateEvents forwards session events to the client until the
// session's event channel is closed. Stop and continue events
// invalidate the protocol handle tables.
func (s *Server) translateEvents(dbg backend.Debugger) {
	defer close(s.translatorDone)
	for ev := range dbg.Session().Events() {
		switch ev.Kind {
		case backend.EventStopped:
			s.clearProcessStateHandles()
			e := &dap.StoppedEvent{Event: *newEvent("stopped")}
			e.Body.Reason = dapStopReason(ev.Reason)
			e.Body.AllThreadsStopped = true
			e.Body.ThreadId = ev.ThreadID
			if ev.Breakpoint != nil {
				e.Body.HitBreakpointIds = []int{ev.Breakpoint.ID}
			}
			s.send(e)
		case backend.EventContinued:
			s.clearProcessStateHandles()
			e := &dap.ContinuedEvent{Event: *newEvent("continued")}
			e.Body.AllThreadsContinued = true
			s.send(e)
		case backend.EventExited:
			e := &dap.ExitedEvent{Event: *newEvent("exited")}
			e.Body.ExitCode = ev.ExitCode
			s.send(e)
			s.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
		case backend.EventThread:
			e := &dap.ThreadEvent{Event: *newEvent("thread")}
			e.Body.ThreadId = ev.ThreadID
			if ev.ThreadCreated {
				e.Body.Reason = "started"
			} else {
				e.Body.Reason = "exited"
			}
			s.send(e)
		case backend.EventOutput:
			e := &dap.OutputEvent{Event: *newEvent("output")}
			e.Body.Output = ev.Output
			e.Body.Category = dapOutputCategory(ev.Channel)
			s.send(e)
		case backend.EventBreakpointChanged:
			if ev.Breakpoint == nil {
				continue
			}
			e := &dap.BreakpointEvent{Event: *newEvent("breakpoint")}
			e.Body.Reason = "changed"
			e.Body.Breakpoint = toDAPBreakpoint(ev.Breakpoint)
			s.send(e)
		case backend.EventModule:
			if ev.Module == nil {
				continue
			}
			e := &dap.ModuleEvent{Event: *newEvent("module")}
			if ev.Loaded {
				e.Body.Reason = "new"
			} else {
				e.Body.Reason = "removed"
			}
			e.Body.Module = toDAPModule(*ev.Module)
			s.send(e)
		case backend.EventError:
			e := &dap.OutputEvent{Event: *newEvent("output")}
			e.Body.Output = fmt.Sprintf("ERROR: %v\n", ev.Err)
			e.Body.Category = "stderr"
			s.send(e)
			s.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
		}
	}
}

func (s *Server) clearProcessStateHandles() {
	s.handlesMu.Lock()
	defer s.handlesMu.Unlock()
	s.stackFrameHandles.reset()
	s.variableHandles.reset()
}

func dapStopReason(r backend.StopReason) string {
	switch r {
	case backend.StopBreakpoint:
		return "breakpoint"
	case backend.StopWatchpoint:
		return "data breakpoint"
	case backend.StopStep:
		return "step"
	case backend.StopPause:
		return "pause"
	case backend.StopEntry:
		return "entry"
	case backend.StopSignal:
		return "exception"
	default:
		return "unknown"
	}
}

func dapOutputCategory(ch backend.OutputChannel) string {
	switch ch {
	case backend.OutputTarget:
		return "stdout"
	case backend.OutputStderr:
		return "stderr"
	default:
		return "console"
	}
}

func toDAPBreakpoint(bp *backend.Breakpoint) dap.Breakpoint {
	dbp := dap.Breakpoint{
		Id:       bp.ID,
		Verified: bp.Validity == backend.ValidBreakpoint,
		Line:     bp.Loc.Line,
	}
	if bp.Loc.File != "" {
		dbp.Source = &dap.Source{Name: filepath.Base(bp.Loc.File), Path: bp.Loc.File}
	}
	if bp.Validity == backend.InvalidBreakpoint {
		dbp.Message = "could not resolve location"
	}
	return dbp
}

func toDAPModule(m backend.Module) dap.Module {
	dm := dap.Module{Id: m.Name, Name: m.Name, Path: m.Path}
	if m.Address != 0 {
		dm.AddressRange = fmt.Sprintf("%#x", m.Address)
	}
	return dm
}

// inspectErrorID picks the error id for requests that need a paused
// target. A state error while the target executes maps to
// DebuggeeIsRunning so clients can tell "busy" apart from a real
// failure.
func inspectErrorID(err error, fallback int) int {
	var ise *backend.InvalidStateError
	if errors.As(err, &ise) {
		switch ise.State {
		case backend.StateRunning, backend.StateStepping:
			return DebuggeeIsRunning
		}
	}
	return fallback
}

func (s *Server) sendErrorResponse(request dap.Request, id int, summary, details string) {
	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.Command = request.Command
	er.RequestSeq = request.Seq
	er.Success = false
	er.Message = summary
	er.Body.Error = &dap.ErrorMessage{
		Id:     id,
		Format: fmt.Sprintf("%s: %s", summary, details),
	}
	s.log.Error(er.Body.Error.Format)
	s.send(er)
}

// sendInternalErrorResponse sends an "internal error" response back
// to the client. It only takes a seq so no assumptions are made about
// the message this error is a reply to.
func (s *Server) sendInternalErrorResponse(seq int, details string) {
	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.RequestSeq = seq
	er.Success = false
	er.Message = "Internal Error"
	er.Body.Error = &dap.ErrorMessage{
		Id:     InternalError,
		Format: fmt.Sprintf("%s: %s", er.Message, details),
	}
	s.log.Error(er.Body.Error.Format)
	s.send(er)
}

func (s *Server) sendUnsupportedErrorResponse(request dap.Request) {
	s.sendErrorResponse(request, UnsupportedCommand, "Unsupported command",
		fmt.Sprintf("cannot process %q request", request.Command))
}

func newResponse(request dap.Request) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    request.Command,
		RequestSeq: request.Seq,
		Success:    true,
	}
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}
