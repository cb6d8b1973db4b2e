package threadscmder

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatgate/pkg/client"
	"github.com/papercomputeco/chatgate/pkg/thread"
)

const threadsLongDesc string = `Inspect and delete threads stored by a running gateway.

Examples:
  chatgate threads list http://localhost:8000
  chatgate threads show http://localhost:8000 trip-plans
  chatgate threads delete http://localhost:8000 trip-plans`

const threadsShortDesc string = "Manage chat threads on a gateway"

func NewThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: threadsShortDesc,
		Long:  threadsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <server-url>",
		Short: "List threads, most recently updated first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd, client.New(args[0]))
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <server-url> <thread-id>",
		Short: "Print the messages of a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), cmd, client.New(args[0]), args[1])
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <server-url> <thread-id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[1]
			if err := client.New(args[0]).DeleteThread(cmd.Context(), id); err != nil {
				return describe(err, id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted thread %s\n", id)
			return nil
		},
	}
}

func runList(ctx context.Context, cmd *cobra.Command, cl *client.Client) error {
	threads, err := cl.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("could not list threads: %w", err)
	}
	if len(threads) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No threads.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THREAD\tTITLE\tMESSAGES\tUPDATED")
	for _, t := range threads {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.ThreadID, t.Title, t.MessageCount, t.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runShow(ctx context.Context, cmd *cobra.Command, cl *client.Client, id string) error {
	msgs, err := cl.Messages(ctx, id)
	if err != nil {
		return describe(err, id)
	}

	out := cmd.OutOrStdout()
	renderer := lipgloss.NewRenderer(out)
	stamp := renderer.NewStyle().Faint(true)
	roles := map[thread.Role]lipgloss.Style{
		thread.RoleUser:      renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		thread.RoleAssistant: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
	}

	for _, m := range msgs {
		fmt.Fprintf(out, "%s %s: %s\n",
			stamp.Render("["+m.Timestamp.Local().Format(time.DateTime)+"]"),
			roles[m.Role].Render(string(m.Role)),
			m.Content,
		)
		if m.Image != "" {
			fmt.Fprintf(out, "    image: %s\n", m.Image)
		}
	}
	return nil
}

func describe(err error, id string) error {
	if thread.IsNotFound(err) {
		return fmt.Errorf("thread %s does not exist", id)
	}
	return err
}
