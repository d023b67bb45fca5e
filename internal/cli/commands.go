package cli

import (
	"github.com/spf13/cobra"
)

func buildChatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation. Each line is one turn.

Commands inside the session:
  /state   show the stored conversation state
  /reset   clear the conversation
  /quit    leave the session`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd, a.session(g.conversationID))
		},
	}
}

func buildAskCmd(g *globalFlags) *cobra.Command {
	var showPath bool
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run a single turn and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return runAsk(cmd, a.session(g.conversationID), args[0], showPath)
		},
	}
	cmd.Flags().BoolVar(&showPath, "show-path", false, "print the router path and turn cost")
	return cmd
}

func buildTablesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the configured SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.setup(cmd)
			if err != nil {
				return err
			}
			return runTables(cmd, cfg.Tools.SQLitePath)
		},
	}
}
