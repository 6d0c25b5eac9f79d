package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/kirillkom/catalog-assistant/internal/bootstrap"
	"github.com/kirillkom/catalog-assistant/internal/config"
	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/usecase"
	"github.com/kirillkom/catalog-assistant/internal/observability/logging"
)

var (
	catalogPath = flag.String("catalog", "", "Catalog file, overrides CATALOG_PATH")
	logLevel    = flag.String("log-level", "warn", "Log level for stderr output")
	showQuery   = flag.Bool("show-query", false, "Print the condensed question and the chosen strategy")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	if *catalogPath != "" {
		cfg.CatalogPath = *catalogPath
	}
	slog.SetDefault(logging.NewConsoleLogger("chat", *logLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "chat")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Errore di avvio: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	sessionID, err := app.Chat.CreateSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Errore: %v\n", err)
		os.Exit(1)
	}

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Println(boldGreen("Assistente catalogo dati"))
	fmt.Printf("Modello: %s, collezioni: %d\n", boldCyan(cfg.OllamaGenModel), len(app.Catalog.Collections))
	fmt.Println("Scrivi una domanda e premi Invio. Scrivi 'exit' o premi Ctrl+C per uscire.")
	fmt.Println()
	fmt.Println(boldCyan("Assistente: ") + usecase.GreetingMessage)
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for ctx.Err() == nil {
		fmt.Print(boldGreen("Tu: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			break
		}

		stream, err := app.Chat.BeginTurn(ctx, sessionID, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n\n", yellow("Errore:"), err)
			continue
		}

		fmt.Print(boldCyan("Assistente: "))
		for token := range stream.Tokens() {
			fmt.Print(token)
		}
		fmt.Println()

		if err := stream.Wait(); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n\n", yellow("Errore:"), err)
			continue
		}
		turn := stream.Turn()
		if *showQuery {
			fmt.Println(faint(fmt.Sprintf("[domanda: %q, strategia: %s]", turn.StandaloneQuery, turn.Decision.Strategy)))
		}
		printSources(turn.Citations, faint)
		fmt.Println()
	}
	_ = app.Chat.EndSession(context.WithoutCancel(ctx), sessionID)
}

func printSources(citations []domain.Citation, style func(a ...any) string) {
	for i, c := range citations {
		fmt.Println(style(fmt.Sprintf("Fonte %d", i+1)))
		for _, f := range c.Fields() {
			fmt.Println(style(fmt.Sprintf("  %s: %s", f[0], f[1])))
		}
	}
}
