package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/replication"
	"github.com/1broseidon/winmesh/internal/topology"
)

type renderOptions struct {
	input  string
	mode   string
	window string
	json   bool
}

func newRenderCmd(a *app) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a topology snapshot as SVG",
		Long: `Render a topology snapshot, a JSON object mapping window ids to geometry as
carried by snapshot messages, to a standalone SVG document.

  winmesh render --input snapshot.json > mesh.svg
  curl -s localhost:7717/topology | jq '.windows | map({(.id): .geometry}) | add' | winmesh render`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if opts.input != "" && opts.input != "-" {
				f, err := os.Open(opts.input)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			b := a.cfg.Builder()
			return renderSnapshot(in, cmd.OutOrStdout(), b, a.cfg.SVGOptions(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "snapshot file, - for stdin")
	cmd.Flags().StringVar(&opts.mode, "mode", string(pathbuilder.ModeGlobal), "global or local")
	cmd.Flags().StringVar(&opts.window, "window", "", "focal window id for local mode")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the frame as JSON instead of SVG")
	return cmd
}

func renderSnapshot(in io.Reader, out io.Writer, b *pathbuilder.Builder, svg pathbuilder.SVGOptions, opts *renderOptions) error {
	var snap replication.Snapshot
	if err := json.NewDecoder(in).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	for id, g := range snap {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("window %s: %w", id, err)
		}
	}
	top := topology.FromSnapshot(snap)

	focal := ""
	switch pathbuilder.Mode(opts.mode) {
	case pathbuilder.ModeGlobal:
	case pathbuilder.ModeLocal:
		if opts.window == "" {
			return fmt.Errorf("local mode needs --window")
		}
		if top.Index(opts.window) < 0 {
			return fmt.Errorf("window %q is not in the snapshot", opts.window)
		}
		focal = opts.window
	default:
		return fmt.Errorf("invalid mode %q: must be local or global", opts.mode)
	}

	frame := b.Frame(top, focal)
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(frame)
	}
	_, err := io.WriteString(out, frame.SVG(svg))
	return err
}
