package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/1broseidon/winmesh/internal/ipc"
)

func newRelayCmd(a *app) *cobra.Command {
	var socket string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Serve the local broadcast relay for the relay transport",
		Long: `Serve the unix socket relay that window instances using the relay transport
join. Every line a member sends is forwarded to every other member of the same
channel. The relay keeps no state of its own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if socket == "" {
				socket = a.cfg.Transport.Socket
			}
			srv, err := ipc.NewServer(ipc.ServerConfig{SocketPath: socket, Logger: a.logger})
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			<-cmd.Context().Done()
			srv.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "", "socket path (default transport.socket or $XDG_RUNTIME_DIR/winmesh.sock)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show relay channels and member counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if socket == "" {
				socket = a.cfg.Transport.Socket
			}
			st, err := ipc.Status(cmd.Context(), socket)
			if err != nil {
				return err
			}
			return printRelayStatus(cmd.OutOrStdout(), st)
		},
	}
	status.Flags().StringVar(&socket, "socket", "", "socket path (default transport.socket or $XDG_RUNTIME_DIR/winmesh.sock)")
	cmd.AddCommand(status)
	return cmd
}

func printRelayStatus(w io.Writer, st *ipc.StatusData) error {
	fmt.Fprintf(w, "uptime: %ds\ndropped: %d\n", st.UptimeSeconds, st.Dropped)
	if len(st.Channels) == 0 {
		fmt.Fprintln(w, "no channels")
		return nil
	}

	names := make([]string, 0, len(st.Channels))
	for name := range st.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tMEMBERS")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\n", name, st.Channels[name])
	}
	return tw.Flush()
}
