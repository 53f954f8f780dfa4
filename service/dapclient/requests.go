package dapclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"
)

// Initialize performs the initialize handshake and returns the
// adapter's capabilities.
func (c *Client) Initialize(ctx context.Context, adapterID string) (*dap.Capabilities, error) {
	resp, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.InitializeRequest{Request: c.newRequest(seq, "initialize")}
		r.Arguments = dap.InitializeRequestArguments{
			AdapterID:       adapterID,
			PathFormat:      "path",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
		}
		return r
	})
	if err != nil {
		return nil, err
	}
	ir, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T to initialize", resp)
	}
	return &ir.Body, nil
}

// Launch sends a launch request with implementation-defined arguments.
func (c *Client) Launch(ctx context.Context, args interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	_, err = c.Call(ctx, func(seq int) dap.Message {
		return &dap.LaunchRequest{Request: c.newRequest(seq, "launch"), Arguments: raw}
	})
	return err
}

// Attach sends an attach request with implementation-defined arguments.
func (c *Client) Attach(ctx context.Context, args interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	_, err = c.Call(ctx, func(seq int) dap.Message {
		return &dap.AttachRequest{Request: c.newRequest(seq, "attach"), Arguments: raw}
	})
	return err
}

// SetBreakpoints replaces the breakpoints of one source file.
func (c *Client) SetBreakpoints(ctx context.Context, file string, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	resp, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.SetBreakpointsRequest{Request: c.newRequest(seq, "setBreakpoints")}
		r.Arguments.Source = dap.Source{Path: file}
		r.Arguments.Breakpoints = bps
		return r
	})
	if err != nil {
		return nil, err
	}
	br, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T to setBreakpoints", resp)
	}
	return br.Body.Breakpoints, nil
}

// ConfigurationDone signals the end of the configuration sequence.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := c.Call(ctx, func(seq int) dap.Message {
		return &dap.ConfigurationDoneRequest{Request: c.newRequest(seq, "configurationDone")}
	})
	return err
}

// Continue resumes the target.
func (c *Client) Continue(ctx context.Context, threadID int) error {
	_, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.ContinueRequest{Request: c.newRequest(seq, "continue")}
		r.Arguments.ThreadId = threadID
		return r
	})
	return err
}

// Next steps over the current line.
func (c *Client) Next(ctx context.Context, threadID int) error {
	_, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.NextRequest{Request: c.newRequest(seq, "next")}
		r.Arguments.ThreadId = threadID
		return r
	})
	return err
}

// StepIn steps into the call at the current line.
func (c *Client) StepIn(ctx context.Context, threadID int) error {
	_, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.StepInRequest{Request: c.newRequest(seq, "stepIn")}
		r.Arguments.ThreadId = threadID
		return r
	})
	return err
}

// StepOut runs until the current function returns.
func (c *Client) StepOut(ctx context.Context, threadID int) error {
	_, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.StepOutRequest{Request: c.newRequest(seq, "stepOut")}
		r.Arguments.ThreadId = threadID
		return r
	})
	return err
}

// Pause interrupts the running target.
func (c *Client) Pause(ctx context.Context, threadID int) error {
	_, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.PauseRequest{Request: c.newRequest(seq, "pause")}
		r.Arguments.ThreadId = threadID
		return r
	})
	return err
}

// Threads lists the target's threads.
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	resp, err := c.Call(ctx, func(seq int) dap.Message {
		return &dap.ThreadsRequest{Request: c.newRequest(seq, "threads")}
	})
	if err != nil {
		return nil, err
	}
	tr, ok := resp.(*dap.ThreadsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T to threads", resp)
	}
	return tr.Body.Threads, nil
}

// StackTrace fetches frames of one thread.
func (c *Client) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	resp, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.StackTraceRequest{Request: c.newRequest(seq, "stackTrace")}
		r.Arguments.ThreadId = threadID
		r.Arguments.StartFrame = startFrame
		r.Arguments.Levels = levels
		return r
	})
	if err != nil {
		return nil, err
	}
	sr, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T to stackTrace", resp)
	}
	return sr.Body.StackFrames, nil
}

// Scopes lists the variable scopes of one frame.
func (c *Client) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	resp, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.ScopesRequest{Request: c.newRequest(seq, "scopes")}
		r.Arguments.FrameId = frameID
		return r
	})
	if err != nil {
		return nil, err
	}
	sr, ok := resp.(*dap.ScopesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T to scopes", resp)
	}
	return sr.Body.Scopes, nil
}

// Variables lists the children of a variables reference.
func (c *Client) Variables(ctx context.Context, ref int) ([]dap.Variable, error) {
	resp, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.VariablesRequest{Request: c.newRequest(seq, "variables")}
		r.Arguments.VariablesReference = ref
		return r
	})
	if err != nil {
		return nil, err
	}
	vr, ok := resp.(*dap.VariablesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T to variables", resp)
	}
	return vr.Body.Variables, nil
}

// Evaluate evaluates an expression in a frame context.
func (c *Client) Evaluate(ctx context.Context, expr string, frameID int, context_ string) (*dap.EvaluateResponseBody, error) {
	resp, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.EvaluateRequest{Request: c.newRequest(seq, "evaluate")}
		r.Arguments.Expression = expr
		r.Arguments.FrameId = frameID
		r.Arguments.Context = context_
		return r
	})
	if err != nil {
		return nil, err
	}
	er, ok := resp.(*dap.EvaluateResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T to evaluate", resp)
	}
	return &er.Body, nil
}

// Disconnect ends the session. terminate requests that the debuggee be
// killed even if it was attached to.
func (c *Client) Disconnect(ctx context.Context, terminate bool) error {
	_, err := c.Call(ctx, func(seq int) dap.Message {
		r := &dap.DisconnectRequest{Request: c.newRequest(seq, "disconnect")}
		r.Arguments = &dap.DisconnectArguments{TerminateDebuggee: terminate}
		return r
	})
	return err
}

// Terminate asks the adapter to kill the debuggee.
func (c *Client) Terminate(ctx context.Context) error {
	_, err := c.Call(ctx, func(seq int) dap.Message {
		return &dap.TerminateRequest{Request: c.newRequest(seq, "terminate")}
	})
	return err
}
