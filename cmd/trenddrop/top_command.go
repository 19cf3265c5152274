package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"trenddrop/internal/usecase/curation"
)

func newTopCommand(ctx *commandContext) *cobra.Command {
	var (
		provider string
		limit    int
		posts    bool
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Показать текущие отобранные карточки или лучшие посты недели",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.ensureConfig()
			defer ctx.close()

			repoAdapter, err := ctx.repo()
			if err != nil {
				return err
			}

			if posts {
				items, err := repoAdapter.TopPostsByViews(cmd.Context(), time.Now().Add(-7*24*time.Hour), limit)
				if err != nil {
					return fmt.Errorf("посты не загружены: %w", err)
				}
				rows := make([][]string, 0, len(items))
				for _, m := range items {
					rows = append(rows, []string{
						fmt.Sprintf("https://t.me/%s/%d", m.ChannelAlias, m.TGMsgID),
						strconv.Itoa(m.Views),
						strconv.Itoa(m.Forwards),
					})
				}
				fmt.Println(renderTable(
					[]string{"Post", "Views", "Forwards"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight},
				))
				return nil
			}

			var providers []string
			if provider != "" {
				providers = []string{provider}
			}
			listings, err := repoAdapter.ListCleanListings(cmd.Context(), providers, 0)
			if err != nil {
				return fmt.Errorf("карточки не загружены: %w", err)
			}
			listings = curation.DedupeByURL(listings)
			listings = curation.DedupeNearDuplicates(listings)
			curation.SortByRank(listings)
			if len(listings) > limit {
				listings = listings[:limit]
			}

			rows := make([][]string, 0, len(listings))
			for _, l := range listings {
				rows = append(rows, []string{
					l.Title,
					l.Provider,
					fmt.Sprintf("%s %.2f", l.Currency, l.Price),
					strconv.Itoa(l.SellerFeedback),
					fmt.Sprintf("%.1f", l.Signals),
				})
			}
			fmt.Println(renderTable(
				[]string{"Title", "Provider", "Price", "Seller FB", "Signals"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "фильтр по маркетплейсу")
	cmd.Flags().IntVar(&limit, "limit", 10, "сколько строк показать")
	cmd.Flags().BoolVar(&posts, "posts", false, "лучшие посты по просмотрам вместо карточек")

	return cmd
}
