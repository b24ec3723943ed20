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

package stepexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/pkg/duration"
	"github.com/go-arcade/orchestrator/pkg/log"
)

// ShellParams are the step parameters a shell step understands.
type ShellParams struct {
	Command string            `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
	Timeout string            `json:"timeout,omitempty"`
}

// ShellRunner runs a step's command with the configured shell. A step
// without a command succeeds.
type ShellRunner struct {
	Shell   string
	Timeout time.Duration
}

func NewShellRunner() *ShellRunner {
	return &ShellRunner{Shell: "/bin/sh", Timeout: 10 * time.Minute}
}

func (r *ShellRunner) Run(ctx context.Context, e *event.InitiateNodeEvent) (model.Status, *model.FailureInfo) {
	var params ShellParams
	if len(e.StepParameters) > 0 {
		if err := sonic.Unmarshal(e.StepParameters, &params); err != nil {
			return model.StatusErrored, &model.FailureInfo{Message: fmt.Sprintf("decode step parameters: %v", err), ErrorType: "INVALID_PARAMETERS"}
		}
	}
	if strings.TrimSpace(params.Command) == "" {
		return model.StatusSucceeded, nil
	}

	timeout := r.Timeout
	if params.Timeout != "" {
		d, err := duration.Parse(params.Timeout)
		if err != nil {
			return model.StatusErrored, &model.FailureInfo{Message: fmt.Sprintf("invalid timeout %q", params.Timeout), ErrorType: "INVALID_PARAMETERS"}
		}
		timeout = d
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Shell, "-c", params.Command)
	// children of the shell may outlive it and hold the output pipes
	cmd.WaitDelay = time.Second
	cmd.Env = os.Environ()
	for k, v := range params.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	log.Debugw("shell step ran",
		"node_execution_id", e.RuntimeID,
		"duration", time.Since(start),
		"stdout", stdout.String(),
		"error", err,
	)
	if err == nil {
		return model.StatusSucceeded, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.StatusExpired, &model.FailureInfo{Message: fmt.Sprintf("timed out after %s", timeout), ErrorType: "TIMEOUT"}
	}
	failure := &model.FailureInfo{Message: err.Error(), ErrorType: "COMMAND"}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure.Message = fmt.Sprintf("exit code %d", exitErr.ExitCode())
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		failure.Details = []string{s}
	}
	return model.StatusFailed, failure
}
