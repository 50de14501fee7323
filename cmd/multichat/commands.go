package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"MultiModel-Chat/sdk/go/multichat"
)

const defaultServer = "http://localhost:8000"

type rootOptions struct {
	server string
	asJSON bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "multichat",
		Short:        "Talk to the multi-model chat service",
		SilenceUsage: true,
	}

	server := os.Getenv("MULTICHAT_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "Base URL of the chat service (env MULTICHAT_SERVER)")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print raw JSON responses")

	root.AddCommand(
		newChatCommand(opts),
		newExecCommand(opts),
		newHealthCommand(opts),
		newHistoryCommand(opts),
	)
	return root
}

func (o *rootOptions) client() (*multichat.Client, error) {
	return multichat.NewClient(o.server, nil)
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	var (
		auto     bool
		maxTurns int
	)
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send a message to every default endpoint",
		Long: `Sends one user message to the configured endpoints and prints every response.

Example:
  multichat chat --auto --max-turns 3 "Is P equal to NP?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			result, err := client.Chat(cmd.Context(), multichat.ChatRequest{
				Messages:     []multichat.Message{{Role: "user", Content: strings.Join(args, " ")}},
				AutoContinue: auto,
				MaxTurns:     maxTurns,
			})
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			out := cmd.OutOrStdout()
			for _, resp := range result.Responses {
				fmt.Fprintf(out, "--- %s\n%s\n\n", resp.Name, resp.Content)
			}
			fmt.Fprintf(out, "run %s: %d turn(s), %s\n", result.RunID, result.Turns, result.StopReason)
			return nil
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "Let the models keep talking while they ask follow-up questions")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "Maximum number of turns (server default when 0)")
	return cmd
}

func newExecCommand(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "exec <file|->",
		Short: "Run a Python file on the server and print its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			output, err := client.ExecuteCode(cmd.Context(), code, timeout)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{"output": output})
			}
			_, err = io.WriteString(cmd.OutOrStdout(), output)
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Execution timeout (server default when 0)")
	return cmd
}

func newHealthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show service health and default endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), health)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status: %s\n", health.Status)
			if len(health.MissingEnvVars) > 0 {
				fmt.Fprintf(out, "missing: %s\n", strings.Join(health.MissingEnvVars, ", "))
			}
			for _, endpoint := range health.DefaultEndpoints {
				fmt.Fprintf(out, "endpoint: %s (%s)\n", endpoint.Name, endpoint.Model)
			}
			return nil
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List archived conversations or show one of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				conv, err := client.GetConversation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.asJSON {
					return printJSON(out, conv)
				}
				for _, resp := range conv.Responses {
					fmt.Fprintf(out, "--- %s\n%s\n\n", resp.Name, resp.Content)
				}
				fmt.Fprintf(out, "run %s: %d turn(s), %s\n", conv.ID, conv.Turns, conv.StopReason)
				return nil
			}

			list, err := client.ListConversations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(out, list)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tTURNS\tSTOP REASON\tENDPOINTS")
			for _, conv := range list {
				created := time.Unix(conv.CreatedAt, 0).Format(time.RFC3339)
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", conv.ID, created, conv.Turns, conv.StopReason, strings.Join(conv.Endpoints, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of conversations to list")
	return cmd
}

func readSource(stdin io.Reader, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
