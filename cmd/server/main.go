package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"catalogserver/database"
	"catalogserver/internal/config"
	"catalogserver/rules"
	"catalogserver/server"
)

func main() {
	log.Println("Запуск сервера каталога...")

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}
	log.Printf("Конфигурация загружена. Порт: %s", cfg.Port)

	// Открываем базы данных
	ruleDB, err := database.OpenRuleDB(cfg.RuleDatabasePath)
	if err != nil {
		log.Fatalf("Не удалось открыть БД правил %s: %v", cfg.RuleDatabasePath, err)
	}
	defer ruleDB.Close()

	catalogDB, err := database.OpenCatalogDB(cfg.CatalogDatabasePath)
	if err != nil {
		log.Fatalf("Не удалось открыть БД каталога %s: %v", cfg.CatalogDatabasePath, err)
	}
	defer catalogDB.Close()

	// Засеваем словари при первом запуске
	if err := seedRuleset(ruleDB, cfg.SeedRulesetPath); err != nil {
		log.Fatalf("Не удалось засеять набор правил: %v", err)
	}

	srv := server.NewServer(cfg, ruleDB, catalogDB)

	// Graceful shutdown по SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Ошибка остановки сервера: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}
	log.Println("Сервер остановлен")
}

// seedRuleset загружает стартовый набор правил из YAML, если в БД
// еще нет ни одной версии
func seedRuleset(ruleDB *database.RuleDB, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Файл словарей %s не найден, засев пропущен", path)
		return nil
	}

	rs, err := rules.LoadSeedFile(path)
	if err != nil {
		return err
	}

	id, err := ruleDB.SeedIfEmpty(rs)
	if err != nil {
		return err
	}
	if id > 0 {
		log.Printf("Набор правил засеян из %s (версия %d)", path, id)
	}
	return nil
}
