package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"lmsbridge/internal/discovery"
	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

// CommandName is one of the commands the host bus can send.
type CommandName string

const (
	CmdDiscoverApis    CommandName = "discoverApis"
	CmdTestApi         CommandName = "testApi"
	CmdSetCompletion   CommandName = "setCompletion"
	CmdForceCompletion CommandName = "forceCompletion"
	CmdGetCmiData      CommandName = "getCmiData"
)

// Command is an inbound bus message. Request and Options fall back to the
// dispatcher defaults when omitted.
type Command struct {
	Name    CommandName               `json:"name"`
	Index   int                       `json:"index"`
	Request *domain.CompletionRequest `json:"request,omitempty"`
	Options *CompletionOptions        `json:"options,omitempty"`
}

// Response is the outbound reply. Exactly the fields of the command's
// result are set.
type Response struct {
	Name      CommandName                   `json:"name"`
	Discovery *discovery.Result             `json:"discovery,omitempty"`
	Handles   []domain.ApiHandle            `json:"handles,omitempty"`
	Result    *domain.CompletionResult      `json:"result,omitempty"`
	Report    *domain.ForceCompletionReport `json:"report,omitempty"`
	CMI       map[string]string             `json:"cmi,omitempty"`
	Error     string                        `json:"error,omitempty"`
	ErrorKind domain.ErrorKind              `json:"error_kind,omitempty"`
}

// RootFunc returns the environment commands run against.
type RootFunc func(ctx context.Context) (host.Environment, error)

// Dispatcher routes bus commands to the orchestrator.
type Dispatcher struct {
	orch   *Orchestrator
	root   RootFunc
	logger *zap.Logger

	mu      sync.RWMutex
	request domain.CompletionRequest
	options CompletionOptions
}

// NewDispatcher creates a dispatcher with the given defaults.
func NewDispatcher(orch *Orchestrator, root RootFunc, request domain.CompletionRequest, options CompletionOptions, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{orch: orch, root: root, request: request, options: options, logger: logger}
}

// SetDefaults replaces the request and options used when a command omits
// them. Commands already running keep the old values.
func (d *Dispatcher) SetDefaults(request domain.CompletionRequest, options CompletionOptions) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.request = request
	d.options = options
}

// Handle runs cmd. Errors are reported in the response, never returned.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) Response {
	resp := Response{Name: cmd.Name}
	d.logger.Debug("command", zap.String("name", string(cmd.Name)), zap.Int("index", cmd.Index))

	root, err := d.root(ctx)
	if err != nil {
		return resp.fail(fmt.Errorf("resolve root environment: %w", err))
	}

	d.mu.RLock()
	req, opts := d.request, d.options
	d.mu.RUnlock()
	if cmd.Request != nil {
		req = *cmd.Request
	}
	if cmd.Options != nil {
		opts = *cmd.Options
	}

	switch cmd.Name {
	case CmdDiscoverApis:
		res, err := d.orch.Discover(ctx, root)
		if err != nil {
			return resp.fail(err)
		}
		resp.Discovery = res
		resp.Handles = res.Handles

	case CmdTestApi:
		handles, err := d.orch.TestHandles(ctx, root, cmd.Index)
		if err != nil {
			return resp.fail(err)
		}
		resp.Handles = handles

	case CmdSetCompletion:
		result, err := d.orch.SetCompletion(ctx, root, cmd.Index, req)
		if err != nil {
			return resp.fail(err)
		}
		resp.Result = &result

	case CmdForceCompletion:
		resp.Report = d.orch.ForceCompletion(ctx, root, cmd.Index, req, opts)
		if !resp.Report.Success {
			resp.Error = resp.Report.Summary()
		}

	case CmdGetCmiData:
		data, h, err := d.orch.ReadCMI(ctx, root, cmd.Index)
		if h != nil {
			resp.Handles = []domain.ApiHandle{*h}
		}
		if err != nil {
			return resp.fail(err)
		}
		resp.CMI = data

	default:
		return resp.fail(domain.Errorf(domain.KindNotFound, "dispatch", "unknown command %q", cmd.Name))
	}
	return resp
}

func (r Response) fail(err error) Response {
	r.Error = err.Error()
	r.ErrorKind = domain.KindOf(err)
	return r
}

// StaticRoot returns a RootFunc for a fixed environment.
func StaticRoot(env host.Environment) RootFunc {
	return func(context.Context) (host.Environment, error) {
		if env == nil {
			return nil, domain.Errorf(domain.KindNotFound, "root", "no environment attached")
		}
		return env, nil
	}
}
