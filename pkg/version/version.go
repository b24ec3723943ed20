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

package version

import (
	"fmt"
	"runtime"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/go-arcade/orchestrator/pkg/version.Version=..."
var (
	Version   = "dev"
	GitBranch = ""
	GitCommit = ""
	BuildTime = ""
)

type Info struct {
	Version   string `json:"version"`
	GitBranch string `json:"gitBranch,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func GetVersion() Info {
	return Info{
		Version:   Version,
		GitBranch: GitBranch,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (v Info) String() string {
	if v.GitCommit == "" {
		return v.Version
	}
	return fmt.Sprintf("%s (%s)", v.Version, v.GitCommit)
}

// Cmd prints build information as indented json.
var Cmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := sonic.ConfigStd.MarshalIndent(GetVersion(), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}
