package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lmsbridge/internal/service"
)

// run sends one command through the dispatcher against the target and
// prints the part of the response the command produced.
func (c *cli) run(cmd *cobra.Command, t target, command service.Command, archive bool) (service.Response, error) {
	ctx, stop := withSignals(cmd.Context())
	defer stop()

	orch, err := c.newOrchestrator(nil)
	if err != nil {
		return service.Response{}, err
	}
	if archive {
		repo, err := c.openArchive()
		if err != nil {
			return service.Response{}, err
		}
		defer repo.Close()
		orch.SetReportStore(repo)
	}

	res := c.resolver(t)
	defer res.Close()

	d := service.NewDispatcher(orch, res.Root, c.cfg.Request(), c.cfg.CompletionOptions(), c.logger)
	resp := d.Handle(ctx, command)
	if resp.Error != "" {
		c.logger.Debug("command failed",
			zap.String("name", string(command.Name)),
			zap.String("kind", string(resp.ErrorKind)),
			zap.String("error", resp.Error))
	}
	return resp, nil
}

func (c *cli) discoverCmd() *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the completion APIs the course exposes",
		Long: `Walks the launch window, its parents, frames and opener and lists every
SCORM, AICC, xAPI/cmi5 and custom completion handle found. Nothing is
invoked. With --static the launch page is fetched over HTTP and only
URL-launched protocols (AICC, cmi5) can be found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.run(cmd, t, service.Command{Name: service.CmdDiscoverApis}, false)
			if err != nil {
				return err
			}
			if resp.Discovery != nil {
				if err := c.print(cmd, resp.Discovery); err != nil {
					return err
				}
			}
			return responseError(resp)
		},
	}
	t.register(cmd)
	return cmd
}

func (c *cli) testCmd() *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "test [index]",
		Short: "Round-trip discovered handles to see which ones work",
		Long: `Makes a harmless call against the handle at index (every handle when
omitted) and reports it as functional, failed or unknown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args, -1)
			if err != nil {
				return err
			}
			resp, err := c.run(cmd, t, service.Command{Name: service.CmdTestApi, Index: index}, false)
			if err != nil {
				return err
			}
			if resp.Handles != nil {
				if err := c.print(cmd, resp.Handles); err != nil {
					return err
				}
			}
			return responseError(resp)
		},
	}
	t.register(cmd)
	return cmd
}

func (c *cli) completeCmd() *cobra.Command {
	var (
		t       target
		f       requestFlags
		single  bool
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "complete [index]",
		Short: "Report completion through the handle at index, with fallback",
		Long: `Forces completion through the handle at index (default 0). When that
fails every other discovered handle is tried in adapter priority order,
then the status is read back to verify it. The full report is printed and
archived.

With --single only the selected handle is written, without fallback or
verification.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args, 0)
			if err != nil {
				return err
			}
			req, opts, err := f.apply(cmd, c.cfg.Request(), c.cfg.CompletionOptions())
			if err != nil {
				return err
			}

			command := service.Command{Name: service.CmdForceCompletion, Index: index, Request: &req, Options: &opts}
			if single {
				command.Name = service.CmdSetCompletion
			}
			resp, err := c.run(cmd, t, command, archive && !single)
			if err != nil {
				return err
			}

			switch {
			case resp.Report != nil:
				err = c.print(cmd, resp.Report)
			case resp.Result != nil:
				err = c.print(cmd, resp.Result)
			}
			if err != nil {
				return err
			}
			if resp.Result != nil && !resp.Result.Success && resp.Error == "" {
				return errors.New("completion failed")
			}
			return responseError(resp)
		},
	}
	t.register(cmd)
	f.register(cmd)
	cmd.Flags().BoolVar(&single, "single", false, "Write through the selected handle only")
	cmd.Flags().BoolVar(&archive, "archive", true, "Store the report in the archive")
	return cmd
}

func (c *cli) cmiCmd() *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "cmi [index]",
		Short: "Read learner state from a SCORM or AICC handle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args, 0)
			if err != nil {
				return err
			}
			resp, err := c.run(cmd, t, service.Command{Name: service.CmdGetCmiData, Index: index}, false)
			if err != nil {
				return err
			}
			if resp.CMI != nil {
				if err := c.print(cmd, resp.CMI); err != nil {
					return err
				}
			}
			return responseError(resp)
		},
	}
	t.register(cmd)
	return cmd
}

func responseError(resp service.Response) error {
	if resp.Error == "" {
		return nil
	}
	return errors.New(resp.Error)
}

// withSignals cancels ctx on SIGINT or SIGTERM.
func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
