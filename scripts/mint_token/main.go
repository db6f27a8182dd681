package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mahaj/logchat/pkg/auth"
	"github.com/mahaj/logchat/pkg/config"
)

// Prints a signed token for a handle, for running the client with TOKEN
// against a local gateway.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	handle := flag.String("user", cfg.User, "handle to mint a token for")
	flag.Parse()

	token, err := auth.GenerateToken([]byte(cfg.JWTSecret), *handle, cfg.TokenTTL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
