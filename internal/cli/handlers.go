package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	"github.com/Chative-core-poc-v1/convoengine/internal/host"
)

const prompt = "you> "

func runChat(cmd *cobra.Command, s *host.Session) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Conversation %s (model %s). /quit to leave.\n", s.ConversationID(), s.RunContext().Model)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := s.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		case "/state":
			state, err := s.State(ctx)
			if err != nil {
				return err
			}
			printState(out, state)
			continue
		}

		res, err := s.Send(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A failed turn leaves the conversation as it was; keep the session open.
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "ai> %s\n", res.Reply.Content)
	}
}

func runAsk(cmd *cobra.Command, s *host.Session, text string, showPath bool) error {
	res, err := s.Send(cmd.Context(), text)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Reply.Content)
	if showPath {
		fmt.Fprintf(out, "\npath: %s\ndecision: %s\ncost: $%.6f\n",
			strings.Join(res.Path, " -> "), res.Gate.Decision, res.CostUSD)
	}
	return nil
}

func runTables(cmd *cobra.Command, path string) error {
	if !fileExists(path) {
		return errx.Configuration("sqlite database %q not found (set TOOLS_SQLITE_PATH)", path)
	}
	db, err := tools.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer db.Close()

	names, err := db.Tables(cmd.Context())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.New("database has no tables")
	}
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}

func printState(w io.Writer, s *model.ConversationState) {
	fmt.Fprintf(w, "conversation: %s\nturns: %d\nlog: %d messages, live: %d\n",
		s.ConversationID, s.Turns, len(s.Log), s.Len())
	if s.Summary != "" {
		fmt.Fprintf(w, "summary: %s\n", s.Summary)
	}
	providers := make([]string, 0, len(s.RetrievedContext))
	for p := range s.RetrievedContext {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		fmt.Fprintf(w, "context[%s]: %d chars\n", p, len(s.RetrievedContext[p]))
	}
}
