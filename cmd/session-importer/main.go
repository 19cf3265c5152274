package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"trenddrop/internal/adapters/mtproto"
	"trenddrop/internal/adapters/repo"
	"trenddrop/internal/infra/config"
	"trenddrop/internal/infra/db"
)

func main() {
	var (
		filePath    string
		sessionName string
	)
	flag.StringVar(&filePath, "file", "", "путь к файлу MTProto-сессии (gotd JSON или Telethon)")
	flag.StringVar(&sessionName, "name", "default", "имя сессии в хранилище")
	flag.Parse()

	if filePath == "" {
		log.Fatal().Msg("session-importer: укажите файл сессии (-file)")
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("session-importer: файл сессии не прочитан")
	}
	normalized, converted, err := mtproto.NormalizeSessionBytes(raw)
	if err != nil {
		log.Fatal().Err(err).Msg("session-importer: неизвестный формат сессии")
	}

	cfg := config.Load()
	if cfg.PGDSN == "" {
		log.Fatal().Msg("session-importer: не указана строка подключения (PG_DSN)")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("session-importer: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repoAdapter.StoreMTProtoSession(ctx, sessionName, normalized); err != nil {
		log.Fatal().Err(err).Msg("session-importer: сессия не сохранена")
	}

	if converted {
		fmt.Println("Сессия сконвертирована в формат gotd JSON перед сохранением")
	}
	fmt.Printf("Сессия %q сохранена (%d байт)\n", sessionName, len(normalized))
}
