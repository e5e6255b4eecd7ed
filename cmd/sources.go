package cmd

import (
	"net/http"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dealmungchi/dealcrawler/helpers"
	"github.com/dealmungchi/dealcrawler/internal/crawler"
)

func newSourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the sources a crawl job may name",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := crawler.NewSiteRegistry(
				crawler.SiteConfigs(cfg.Sites),
				helpers.NewFetcher(http.DefaultClient),
				crawler.RegistryOptions{},
			)
			if err != nil {
				return err
			}

			sources := lo.FilterMap(registry.Names(), func(name string, _ int) (crawler.Source, bool) {
				return registry.Lookup(name)
			})
			renderSources(cmd.OutOrStdout(), sources)
			return nil
		},
	}
}
