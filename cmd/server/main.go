package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/tripkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/tripkeeper/internal/flagx"
	"github.com/dmitrijs2005/tripkeeper/internal/server"
	"github.com/dmitrijs2005/tripkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tripkeeper/internal/server/config"
)

// issueFlag returns the user id given with -issue, or "".
func issueFlag() string {
	var userID string
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.StringVar(&userID, "issue", "", "print an access token for the given user id and exit")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-issue"}))
	return userID
}

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg := config.LoadConfig()

	if userID := issueFlag(); userID != "" {
		token, err := auth.GenerateToken(userID, []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
