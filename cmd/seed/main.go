// Command seed creates the initial ADMIN account if its email is free.
//
// The password comes from ACCOUNTS_ADMIN_PASSWORD, an interactive prompt, or
// is generated and printed once.
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/accountkeeper/internal/server/seed"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	db, m, err := server.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if db != nil {
		defer db.Close()
	}

	_, _, _, accounts := server.NewServices(cfg, db, m, logger, ratelimit.Noop{}, ratelimit.Noop{})

	password, generated, err := seed.ResolvePassword(cfg.AdminPassword, os.Stdout)
	if err != nil {
		log.Fatalf("reading password: %v", err)
	}

	if err := seed.Run(ctx, accounts, logger, cfg.AdminEmail, cfg.AdminName, password, generated, os.Stdout); err != nil {
		log.Printf("%v", err)
		return
	}

}
