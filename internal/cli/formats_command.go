package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"auralis.click/internal/audio"
)

// newFormatsCommand lists the asset container formats that can be decoded
func newFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported asset formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := audio.NewDefaultRegistry()
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Supported asset formats:")
			for _, f := range registry.GetSupportedFormats() {
				fmt.Fprintf(w, "  %s\n", f)
			}
			return nil
		},
	}
}
