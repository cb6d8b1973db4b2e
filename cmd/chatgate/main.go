package main

import (
	"os"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatgate/cmd/chatgate/chat"
	servecmder "github.com/papercomputeco/chatgate/cmd/chatgate/serve"
	threadscmder "github.com/papercomputeco/chatgate/cmd/chatgate/threads"
)

const rootLongDesc string = `chatgate is a real-time chat gateway.

Browsers keep one WebSocket open and send messages tagged with a
thread id. Each message is saved to the thread's history and answered
from a phrase table or a language model, optionally looking at an
uploaded image.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatgate",
		Short:         "Real-time chat gateway",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(threadscmder.NewThreadsCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
