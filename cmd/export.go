package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/internal/export"
	"github.com/dealmungchi/dealcrawler/logger"
	"github.com/dealmungchi/dealcrawler/services/store"
)

func newExportCommand() *cobra.Command {
	var (
		output string
		filter store.Filter
		status string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored deals to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			filter.Status = deal.Status(status)
			deals, err := export.Collect(ctx, a.store, filter)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			if err := export.Write(w, export.NewFile(deals, filter.Source, time.Now())); err != nil {
				return err
			}
			logger.ForComponent("export").Info().
				Int("count", len(deals)).
				Str("output", output).
				Msg("Deals exported")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "output file (default stdout)")
	flags.StringVar(&filter.Source, "source", "", "only export deals from this source")
	flags.StringVar(&filter.Category, "category", "", "only export deals in this category")
	flags.StringVar(&status, "status", "", "only export active or ended deals")

	return cmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Save the deals of an export file that are not stored yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			file, err := export.Read(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := export.Import(ctx, a.store, file)
			if err != nil {
				return err
			}

			logger.ForComponent("import").Info().
				Str("source", file.Metadata.Source).
				Time("exported_at", file.Metadata.ExportedAt).
				Int("imported", res.Imported).
				Int("skipped", res.Skipped).
				Int("invalid", res.Invalid).
				Msg("Deals imported")
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d, invalid %d\n", res.Imported, res.Skipped, res.Invalid)
			return nil
		},
	}
}
