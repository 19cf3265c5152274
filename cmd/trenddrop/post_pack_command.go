package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPostPackCommand(ctx *commandContext) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "post-pack <link>",
		Short: "Анонсировать свежий отчётный пакет в Telegram-каналы",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.ensureConfig()
			defer ctx.close()

			publisher, err := ctx.publisher()
			if err != nil {
				return err
			}

			text := "📦 <b>TrendDrop Weekly Pack is live!</b>\n\n" +
				"Fresh top movers, curated and flip-ready.\n" +
				fmt.Sprintf("<a href=%q>Grab the pack</a>", args[0])
			if err := publisher.SendText(scope, text, false); err != nil {
				return fmt.Errorf("анонс не отправлен: %w", err)
			}
			fmt.Println("Анонс отправлен")
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "broadcast", "куда отправить анонс")

	return cmd
}
