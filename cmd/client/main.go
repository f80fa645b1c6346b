package main

import (
	"fmt"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/client/config"
	"github.com/cloudzz-dev/cldzchat/internal/client/debug"
	"github.com/cloudzz-dev/cldzchat/internal/client/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, closer := debug.Logger(cfg.Debug, cfg.DebugLog)
	defer closer.Close()

	client := api.New(cfg.APIURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		api.WithLogger(logger),
	)

	// A stored session from another server is useless here.
	sess, err := session.Load(cfg.Profile)
	if err != nil || sess.APIURL != cfg.APIURL {
		sess = nil
	}
	logger.Info("client starting", "api", cfg.APIURL, "ws", cfg.WSURL, "profile", cfg.Profile, "resumed", sess.Valid())

	p := tea.NewProgram(initialModel(cfg, client, logger, sess), tea.WithAltScreen())
	final, err := p.Run()
	if m, ok := final.(model); ok {
		m.stopSession()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
