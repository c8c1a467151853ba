package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/datablock"
	"github.com/sarchlab/dbsim/persistence"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect and convert snapshot files",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Print the datablocks of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		snap, err := loadSnapshot(args[0], format)
		if err != nil {
			return err
		}

		return printSnapshot(cmd.OutOrStdout(), snap)
	},
}

var snapshotConvertCmd = &cobra.Command{
	Use:   "convert <src> <dst>",
	Short: "Convert a snapshot between the JSON and SQLite formats",
	Long: `Convert a snapshot between the JSON and SQLite formats. Formats are ` +
		`inferred from the file extensions unless --from or --to is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")

		snap, err := loadSnapshot(args[0], from)
		if err != nil {
			return err
		}

		dst, err := persistence.Open(args[1], to, zerolog.Nop())
		if err != nil {
			return err
		}

		saveErr := dst.Save(snap)
		if err := errors.Join(saveErr, closeGateway(dst)); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "converted %d datablocks to %s\n",
			len(snap), args[1])

		return nil
	},
}

func init() {
	snapshotShowCmd.Flags().String("format", "", "snapshot format, json or sqlite")
	snapshotConvertCmd.Flags().String("from", "", "format of the source snapshot")
	snapshotConvertCmd.Flags().String("to", "", "format of the converted snapshot")

	snapshotCmd.AddCommand(snapshotShowCmd, snapshotConvertCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// loadSnapshot reads a snapshot file. Unlike a gateway, which falls back to
// an empty snapshot, a missing file is an error here.
func loadSnapshot(path, format string) (datablock.Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	gw, err := persistence.Open(path, format, zerolog.Nop())
	if err != nil {
		return nil, err
	}

	snap := gw.Load()

	return snap, closeGateway(gw)
}

func closeGateway(gw persistence.Gateway) error {
	if closer, ok := gw.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

func printSnapshot(w io.Writer, snap datablock.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tNON-ZERO")

	for _, id := range snap.IDs() {
		rec := snap[id]

		nonZero := 0
		for _, b := range rec.Data {
			if b != 0 {
				nonZero++
			}
		}

		fmt.Fprintf(tw, "%d\t%d\t%d\n", rec.ID, rec.Size, nonZero)
	}

	return tw.Flush()
}
