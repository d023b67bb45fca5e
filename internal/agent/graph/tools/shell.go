package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

const ToolShell = "shell"

const defaultShellMaxOutput = 8000

type ShellInput struct {
	Command string `json:"command"`
}

type ShellOutput struct {
	Output    string `json:"output"`
	ExitCode  int    `json:"exit_code"`
	Truncated bool   `json:"truncated,omitempty"`
}

// NewShellTool runs commands with sh -c. A non-zero exit status is a result; a
// command killed by its deadline is an error.
func NewShellTool(maxOutput int) tool.InvokableTool {
	if maxOutput <= 0 {
		maxOutput = defaultShellMaxOutput
	}
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolShell,
			Desc: "Run a shell command on the host and return its combined stdout and stderr.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"command": {Type: schema.String, Desc: "The command line to run with sh -c.", Required: true},
			}),
		},
		func(ctx context.Context, in *ShellInput) (*ShellOutput, error) {
			cmdline := strings.TrimSpace(in.Command)
			if cmdline == "" {
				return &ShellOutput{Output: "no command given", ExitCode: -1}, nil
			}

			var buf bytes.Buffer
			cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
			cmd.Stdout = &buf
			cmd.Stderr = &buf
			runErr := cmd.Run()

			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("shell command %q: %w", cmdline, ctxErr)
			}

			out := &ShellOutput{}
			var exitErr *exec.ExitError
			switch {
			case runErr == nil:
			case errors.As(runErr, &exitErr):
				out.ExitCode = exitErr.ExitCode()
			default:
				return nil, fmt.Errorf("shell command %q: %w", cmdline, runErr)
			}

			out.Output, out.Truncated = clip(buf.String(), maxOutput)
			logx.Debug().
				Str("tool_name", ToolShell).
				Int("exit_code", out.ExitCode).
				Bool("truncated", out.Truncated).
				Msg("shell command finished")
			return out, nil
		},
	)
}

func clip(s string, max int) (string, bool) {
	if utf8.RuneCountInString(s) <= max {
		return s, false
	}
	r := []rune(s)
	return string(r[:max]), true
}
