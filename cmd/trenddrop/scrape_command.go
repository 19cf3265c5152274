package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trenddrop/internal/adapters/epn"
	"trenddrop/internal/adapters/trendsfeed"
	"trenddrop/internal/domain"
	"trenddrop/internal/usecase/scrape"
	"trenddrop/internal/usecase/trends"
)

func newScrapeCommand(ctx *commandContext) *cobra.Command {
	var (
		scope   string
		topics  []string
		perPage int
		picks   int
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Один прогон пайплайна: темы → поиск → сохранение → публикация",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.ensureConfig()
			defer ctx.close()

			repoAdapter, err := ctx.repo()
			if err != nil {
				return err
			}

			trendsSvc := trends.NewService(trendsfeed.NewRSSFeed(cfg.Trends.FeedGeo, ctx.logger), cfg.Trends.SeedFile, ctx.logger)
			affiliate := epn.NewWrapper(cfg.Ebay.CampaignID)

			var dropRunner scrape.DropRunner
			if !dryRun {
				dropSvc, err := ctx.dropService(repoAdapter)
				if err != nil {
					return err
				}
				dropRunner = dropSvc
			}

			svc := scrape.NewService(trendsSvc, ctx.sources(), repoAdapter, affiliate, dropRunner,
				domain.ClockFunc(time.Now), scrape.Config{
					TopicsLimit:      cfg.Trends.TopicsLimit,
					VariantsPerTopic: cfg.Trends.VariantsPerTopic,
					PerPage:          cfg.Trends.PerPage,
					Picks:            cfg.Trends.Picks,
					SleepSecs:        cfg.Trends.SleepSecs,
					SleepJitterSecs:  cfg.Trends.SleepJitterSecs,
				}, ctx.logger)

			run, err := svc.Run(cmd.Context(), domain.DropJob{
				Scope:   scope,
				Topics:  topics,
				PerPage: perPage,
				Picks:   picks,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Прогон: %s, тем: %d, карточек: %d\n", run.Status, run.TopicCount, run.ItemCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "broadcast", "куда публиковать: public, paid, broadcast, admin, dm, all")
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "темы вместо трендового фида (можно несколько)")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "карточек на запрос (0 — из конфига)")
	cmd.Flags().IntVar(&picks, "picks", 0, "лимит публикаций (0 — из конфига)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "только скрейп и сохранение, без публикации")

	return cmd
}
