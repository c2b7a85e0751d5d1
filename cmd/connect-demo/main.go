// connect-demo drives a full authorization code flow against a
// CONNECT authorization server: it serves the redirect endpoint
// locally, opens the browser and prints the resulting tokens.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/telenordigital/connect-go/pkg/connect"
	"github.com/telenordigital/connect-go/pkg/connect/sqlitestore"
	"github.com/telenordigital/connect-go/pkg/prettylog"
	"github.com/telenordigital/connect-go/pkg/util"
)

func main() {
	godotenv.Load()
	slog.SetDefault(slog.New(prettylog.NewHandler(slog.LevelDebug)))

	configPath := flag.String("config", "connect.yaml", "path to the client config file")
	dbPath := flag.String("db", "connect-sessions.db", "path to the session database")
	listenAddr := flag.String("listen", ":8089", "local address for the redirect endpoint")
	flag.Parse()

	cfg, err := connect.LoadConfig(*configPath)
	if err != nil {
		slog.Error("unable to load config", "error", err)
		os.Exit(1)
	}

	store, err := sqlitestore.New(*dbPath)
	if err != nil {
		slog.Error("unable to open session store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client, err := connect.NewClient(cfg, connect.WithSessionStore(store))
	if err != nil {
		slog.Error("unable to create client", "error", err)
		os.Exit(1)
	}

	root := echo.New()
	root.HideBanner = true
	connect.NewHandler(client).MountRoutes(root.Group("/auth"))

	go func() {
		time.Sleep(500 * time.Millisecond)
		loginURL := fmt.Sprintf("http://localhost%s/auth/login", *listenAddr)
		slog.Info("opening browser", "url", loginURL)
		if err := util.OpenBrowser(loginURL); err != nil {
			slog.Warn("unable to open browser, open manually", "url", loginURL, "error", err)
		}
	}()

	go watchSession(client)

	if err := root.Start(*listenAddr); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func watchSession(client *connect.Client) {
	authorized := false
	for {
		time.Sleep(1 * time.Second)
		if client.IsAuthorized() == authorized {
			continue
		}
		authorized = !authorized
		if !authorized {
			slog.Info("session cleared")
			continue
		}

		session := client.Session()
		slog.Info("authorized", "expires", session.AccessTokenExpiry)
		if session.IDToken != "" {
			fmt.Println(util.JWSToText(session.IDToken))
		}
	}
}
