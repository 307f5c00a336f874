package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittonet/pkg/frame"
	"github.com/spf13/cobra"
)

func callCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	var closeAfter bool

	cmd := &cobra.Command{
		Use:   "call KEY [BODY]",
		Short: "Send one FRAME request and print the reply",
		Example: `  dittonet call ECHO "hello"
  dittonet call --addr 10.0.0.5:9000 ECHO "hello"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := frame.Dial(ctx, addr, timeout)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			var body []byte
			if len(args) == 2 {
				body = []byte(args[1])
			}

			var flags byte
			if closeAfter {
				flags |= frame.FlagClose
			}

			reply, err := client.Call(args[0], body, flags)
			if err != nil {
				return err
			}
			if err := reply.Err(); err != nil {
				return fmt.Errorf("server error: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(reply.Body), "\n"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:9000", "Server address")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Dial and call timeout")
	cmd.Flags().BoolVar(&closeAfter, "close", false, "Ask the server to close the connection after the reply")

	return cmd
}
