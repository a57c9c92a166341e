package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/loader"
	"lmsbridge/internal/service"
)

// selftestFixture is the built-in launch: the player holds a working SCORM
// 2004 runtime, its navigation frame a broken SCORM 1.2 runtime, a third
// frame is cross-origin, and the course runs in the content frame.
const selftestFixture = `
version: "1"
root: content
windows:
  player:
    url: https://lms.example/player?course=selftest
    frames: [nav, content, ads]
    apis:
      API_1484_11: {type: scorm2004}
  nav:
    url: https://lms.example/nav.html
    apis:
      API: {type: scorm12, broken: true}
  content:
    url: https://lms.example/content/index.html
  ads:
    url: https://ads.example/
    denied: true
`

// selftestBrokenIndex is the discovery index of the broken SCORM 1.2 API
// as seen from the content frame.
const selftestBrokenIndex = 1

func (c *cli) selftestCmd() *cobra.Command {
	var (
		f       requestFlags
		fixture string
		index   int
	)
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run a forced completion against a simulated LMS",
		Long: `Builds an in-memory LMS and forces completion through it. The built-in
launch has nested frames, a broken SCORM 1.2 API and a working SCORM 2004
API in the parent player; completion is forced through the broken handle,
so a passing run shows discovery, fallback and verification working end to
end without a browser.

--fixture runs against a launch described in YAML instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, opts, err := f.apply(cmd, c.cfg.Request(), c.cfg.CompletionOptions())
			if err != nil {
				return err
			}

			var launch *loader.Launch
			if fixture != "" {
				launch, err = loader.LoadFixture(fixture)
			} else {
				launch, err = loader.ParseFixture([]byte(selftestFixture))
				if !cmd.Flags().Changed("index") {
					index = selftestBrokenIndex
				}
			}
			if err != nil {
				return err
			}

			report, err := c.selftest(cmd, launch, index, req, opts)
			if err != nil {
				return err
			}
			if fixture == "" && report.Success {
				if err := checkSelftestRuntime(launch, req.Status); err != nil {
					return err
				}
			}
			if err := c.print(cmd, report); err != nil {
				return err
			}
			if !report.Success {
				return errors.New(report.Summary())
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&fixture, "fixture", "", "YAML file describing the simulated launch")
	cmd.Flags().IntVar(&index, "index", 0, "Handle to complete through")
	return cmd
}

func (c *cli) selftest(cmd *cobra.Command, launch *loader.Launch, index int, req domain.CompletionRequest, opts service.CompletionOptions) (*domain.ForceCompletionReport, error) {
	orch, err := c.newOrchestrator(nil)
	if err != nil {
		return nil, err
	}
	d := service.NewDispatcher(orch, service.StaticRoot(launch.Root), req, opts, c.logger)
	resp := d.Handle(cmd.Context(), service.Command{Name: service.CmdForceCompletion, Index: index})
	if resp.Report == nil {
		return nil, fmt.Errorf("selftest: %s", resp.Error)
	}
	return resp.Report, nil
}

// checkSelftestRuntime confirms the built-in SCORM 2004 runtime holds what
// the report claims was written.
func checkSelftestRuntime(launch *loader.Launch, status domain.Status) error {
	rt := launch.Runtime("player", "API_1484_11")
	if rt == nil {
		return errors.New("selftest: built-in SCORM 2004 runtime missing")
	}
	completion, success := domain.Scorm2004Status(status)
	if got := rt.Value("cmi.completion_status"); got != completion {
		return fmt.Errorf("selftest: SCORM 2004 runtime holds completion_status %q, want %q", got, completion)
	}
	if got := rt.Value("cmi.success_status"); success != "" && got != success {
		return fmt.Errorf("selftest: SCORM 2004 runtime holds success_status %q, want %q", got, success)
	}
	return nil
}
