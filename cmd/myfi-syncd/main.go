package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mukuzz/myfi-sub000/internal/crypto"
	"github.com/mukuzz/myfi-sub000/internal/database"
	"github.com/mukuzz/myfi-sub000/internal/extract"
	"github.com/mukuzz/myfi-sub000/internal/httpapi"
	"github.com/mukuzz/myfi-sub000/internal/inbox"
	"github.com/mukuzz/myfi-sub000/internal/models"
	"github.com/mukuzz/myfi-sub000/internal/progress"
	"github.com/mukuzz/myfi-sub000/internal/refresh"
	"github.com/mukuzz/myfi-sub000/internal/scrape"
	"github.com/mukuzz/myfi-sub000/internal/store"
)

// issuerKeywords identifies an institution's mails when the body carries no
// account digits at all. Keyed by lowercased institution name.
var issuerKeywords = map[string][]string{
	"hdfc bank":  {"hdfc"},
	"icici bank": {"icici"},
	"axis bank":  {"axis"},
	"sbi":        {"sbi", "state bank"},
}

func main() {
	if err := crypto.InitEncryption(); err != nil {
		log.Fatalf("FATAL: encryption initialization failed: %v", err)
	}

	db, err := database.Init()
	if err != nil {
		log.Fatalf("FATAL: database initialization failed: %v", err)
	}
	defer database.Close()

	st := store.New(db)

	if len(os.Args) > 1 && os.Args[1] == "add-credential" {
		addCredential(st, os.Args[2:])
		return
	}

	log.Println("Starting myfi-syncd...")
	ledger := progress.NewLedger()

	// Institution scraper drivers register here. None ship in this build;
	// unsupported institutions fail their tasks with a clear error.
	registry := scrape.NewRegistry()

	scrapeSvc := scrape.NewService(ledger, registry, st, scrape.Config{
		Workers:     getEnvInt("SCRAPE_WORKERS", 4),
		CallTimeout: getEnvDuration("SCRAPE_CALL_TIMEOUT", 3*time.Minute),
	})

	gmail := inbox.NewGmailClient(inbox.GmailConfig{
		ClientID:     os.Getenv("GMAIL_CLIENT_ID"),
		ClientSecret: os.Getenv("GMAIL_CLIENT_SECRET"),
		RefreshToken: os.Getenv("GMAIL_REFRESH_TOKEN"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor, err := extract.NewGeminiExtractor(ctx, os.Getenv("GEMINI_MODEL"))
	if err != nil {
		log.Fatalf("FATAL: extractor initialization failed: %v", err)
	}

	inboxSvc := inbox.NewService(ledger, st, gmail, extractor, inbox.Config{
		Eligible:       parseInboxAccounts(os.Getenv("INBOX_ACCOUNTS")),
		IssuerKeywords: issuerKeywords,
		CallTimeout:    getEnvDuration("INBOX_CALL_TIMEOUT", time.Minute),
	})

	refreshSvc := refresh.NewService(ledger, st, scrapeSvc, inboxSvc)
	if err := refreshSvc.StartSchedule(os.Getenv("REFRESH_CRON")); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer refreshSvc.StopSchedule()

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	server := &http.Server{
		Addr:    addr,
		Handler: httpapi.NewServer(refreshSvc),
	}

	go func() {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARNING: http shutdown: %v", err)
	}
}

// addCredential stores one scrape credential and exits. The password is read
// from stdin so it never lands in shell history.
func addCredential(st *store.Store, args []string) {
	fs := flag.NewFlagSet("add-credential", flag.ExitOnError)
	institution := fs.String("institution", "", "institution name, e.g. \"HDFC Bank\"")
	account := fs.String("account", "", "account number")
	username := fs.String("username", "", "login username")
	fs.Parse(args)

	if *institution == "" || *account == "" || *username == "" {
		fs.Usage()
		os.Exit(2)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		log.Fatalf("FATAL: failed to read password: %v", err)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		log.Fatal("FATAL: empty password")
	}

	if err := st.SaveCredential(*institution, *account, *username, password); err != nil {
		log.Fatalf("FATAL: failed to save credential: %v", err)
	}
	log.Printf("Saved credential for %s %s", *institution, *account)
}

// parseInboxAccounts reads "HDFC Bank:SAVINGS,ICICI Bank:CREDIT_CARD" into
// institution/type pairs. Malformed entries are logged and skipped.
func parseInboxAccounts(raw string) []store.InstitutionAccountType {
	var pairs []store.InstitutionAccountType
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idx := strings.LastIndex(entry, ":")
		if idx <= 0 || idx == len(entry)-1 {
			log.Printf("WARNING: ignoring malformed INBOX_ACCOUNTS entry %q", entry)
			continue
		}
		pairs = append(pairs, store.InstitutionAccountType{
			Institution: strings.TrimSpace(entry[:idx]),
			Type:        models.AccountType(strings.ToUpper(strings.TrimSpace(entry[idx+1:]))),
		})
	}
	return pairs
}

func getEnvInt(key string, defaultValue int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
		log.Printf("WARNING: invalid %s=%q, using %d", key, raw, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
		log.Printf("WARNING: invalid %s=%q, using %s", key, raw, defaultValue)
	}
	return defaultValue
}
