package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/gnemet/SlideClean/internal/archive"
	"github.com/gnemet/SlideClean/internal/pptx"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// openReadOnly extracts the deck into memory. Nothing is written back.
func (a *app) openReadOnly(name string) (*archive.Workspace, error) {
	if err := fileExists(name); err != nil {
		return nil, err
	}
	return archive.OpenFile(name,
		archive.WithFs(afero.NewMemMapFs()),
		archive.WithLogger(a.logger))
}

func newPartsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parts <deck.pptx>",
		Short: "List the parts of a deck and how each may be edited",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.openReadOnly(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tCLASS\tSIZE")
			for _, p := range ws.Parts() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Path, p.Class, p.Size)
			}
			return tw.Flush()
		},
	}
}

func newOutlineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "outline <deck.pptx>",
		Short: "Print the text, styles, notes and comments of every slide as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.openReadOnly(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			deck, err := pptx.Open(ws, pptx.WithLogger(a.logger))
			if err != nil {
				return err
			}
			outline, err := deck.Outline()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(outline); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
