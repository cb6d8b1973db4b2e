package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatgate/gateway"
	"github.com/papercomputeco/chatgate/pkg/client"
)

const chatLongDesc string = `Chat with a running gateway.

Each message argument is sent as one frame on a single connection.
With no message arguments, every line read from stdin is sent instead.
An image given with --image is uploaded first and attached to the first
message.

Examples:
  chatgate chat http://localhost:8000 "hello"
  chatgate chat --thread trip-plans http://localhost:8000 "where should I go in May?"
  chatgate chat --image cat.jpg --language French http://localhost:8000 "what is this?"
  echo "hello" | chatgate chat http://localhost:8000`

const chatShortDesc string = "Send messages to a chat gateway"

type chatCommander struct {
	threadID string
	image    string
	language string
	timeout  time.Duration
	raw      bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat <server-url> [message...]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0], args[1:])
		},
	}

	cmd.Flags().StringVarP(&cmder.threadID, "thread", "t", "", "Thread id (default: a new random id)")
	cmd.Flags().StringVarP(&cmder.image, "image", "i", "", "Image file to upload and attach")
	cmd.Flags().StringVarP(&cmder.language, "language", "l", "", "Reply language (default: server default)")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 5*time.Minute, "How long to wait for each reply")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print replies without markdown rendering")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string, messages []string) error {
	cl := client.New(serverURL)

	threadID := c.threadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	var imageURL string
	if c.image != "" {
		up, err := cl.Upload(ctx, c.image)
		if err != nil {
			return fmt.Errorf("could not upload image: %w", err)
		}
		imageURL = up.URL
	}

	session, err := cl.Dial(ctx, c.timeout)
	if err != nil {
		return err
	}
	defer session.Close()

	out := newPrinter(cmd.OutOrStdout(), c.raw)
	out.header(threadID)

	send := func(content string) error {
		in := gateway.Inbound{
			ThreadID: threadID,
			Content:  content,
			Image:    imageURL,
			Language: c.language,
		}
		imageURL = ""

		resp, err := session.Send(in)
		if err != nil {
			return err
		}
		out.reply(resp.Reply)
		return nil
	}

	if len(messages) > 0 {
		for _, m := range messages {
			if err := send(m); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := send(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// an image with no text still gets one frame
	if imageURL != "" {
		return send("")
	}
	return nil
}
