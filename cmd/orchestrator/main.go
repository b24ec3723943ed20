// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/version"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "orchestrator",
	Short:         "orchestrator runs pipeline plans as trees of node executions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the event processors, step executor and maintenance jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, cleanup, err := initApp(ctx, configFile)
		if err != nil {
			return err
		}
		defer cleanup()
		return app.Run(ctx)
	},
}

var (
	planFile    string
	triggeredBy string
	setupPairs  map[string]string
	waitTimeout time.Duration
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "start a plan and wait for its execution to finish",
	RunE: func(cmd *cobra.Command, _ []string) error {
		plan, err := loadPlan(planFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, cleanup, err := initApp(ctx, configFile)
		if err != nil {
			return err
		}
		defer cleanup()
		stopApp := app.Start(ctx)

		pe, err := app.Engine.StartPlan(ctx, plan, model.ExecutionMetadata{TriggeredBy: triggeredBy}, setupPairs)
		if err != nil {
			_ = stopApp()
			return err
		}
		log.Infow("plan started", "planExecutionId", pe.ID, "planId", pe.PlanID)

		final, waitErr := awaitPlan(ctx, app.PlanExecs.Get, pe.ID, waitTimeout)
		if err := stopApp(); err != nil {
			log.Warnw("stop orchestrator", "error", err)
		}
		if waitErr != nil {
			return waitErr
		}
		return printJSON(cmd, final)
	},
}

var (
	planExecutionID string
	issuer          string
)

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "abort every active node of a plan execution",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, cleanup, err := initApp(cmd.Context(), configFile)
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := app.Engine.AbortPlan(cmd.Context(), planExecutionID, issuer)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"planExecutionId": planExecutionID, "aborted": n})
	},
}

// awaitPlan polls the plan execution until it reaches a final status.
func awaitPlan(ctx context.Context, get func(context.Context, string) (*model.PlanExecution, error), id string, timeout time.Duration) (*model.PlanExecution, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		pe, err := get(ctx, id)
		if err != nil {
			return nil, err
		}
		if pe.Status.IsFinal() {
			return pe, nil
		}
		select {
		case <-ctx.Done():
			return pe, fmt.Errorf("plan execution %s still %s: %w", id, pe.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "conf", "c", "", "config file path, e.g. -c conf.d/config.yaml")

	triggerCmd.Flags().StringVarP(&planFile, "plan", "p", "", "plan file (yaml or json)")
	triggerCmd.Flags().StringVar(&triggeredBy, "triggered-by", "cli", "recorded as the plan execution trigger")
	triggerCmd.Flags().StringToStringVar(&setupPairs, "setup", nil, "setup values, e.g. --setup accountId=acme")
	triggerCmd.Flags().DurationVar(&waitTimeout, "timeout", time.Hour, "how long to wait for the plan to finish")
	_ = triggerCmd.MarkFlagRequired("plan")

	abortCmd.Flags().StringVar(&planExecutionID, "plan-execution", "", "plan execution id")
	abortCmd.Flags().StringVar(&issuer, "issuer", "cli", "recorded as the interrupt issuer")
	_ = abortCmd.MarkFlagRequired("plan-execution")

	rootCmd.AddCommand(serveCmd, triggerCmd, abortCmd, version.Cmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
