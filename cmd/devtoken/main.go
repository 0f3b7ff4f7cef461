// Command devtoken prints a signed auth token for an account id, for poking
// at a local server by hand.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/DoyleJ11/card-duel-backend/internal/auth"
	"github.com/DoyleJ11/card-duel-backend/internal/config"
)

func main() {
	account := flag.String("account", "", "account id to put in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *account == "" {
		fmt.Fprintln(os.Stderr, "usage: devtoken -account <id> [-ttl 24h]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	tokens, err := auth.NewTokens(cfg.AuthSecret, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	tok, err := tokens.Issue(*account)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
