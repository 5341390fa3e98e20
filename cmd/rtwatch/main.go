package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/inboxhub/realtime/internal/config"
	"github.com/inboxhub/realtime/internal/logging"
	"github.com/inboxhub/realtime/internal/watch/app"
	"github.com/inboxhub/realtime/internal/watch/client"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the realtime server")
	token := flag.String("token", "", "Session token (if the server requires one)")
	adminToken := flag.String("admin-token", "", "Admin token for /api/stats")
	tenant := flag.String("tenant", "", "Tenant to watch (open-auth servers only)")
	user := flag.String("user", "", "User to watch as (open-auth servers only)")
	types := flag.String("types", "", "Comma-separated event types (default: server baseline)")
	conversations := flag.String("conversations", "", "Comma-separated conversation ids")
	noStats := flag.Bool("no-stats", false, "Disable /api/stats polling")
	logPath := flag.String("log", "", "Write debug logs to this file")
	flag.Parse()

	log := zerolog.Nop()
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log = logging.NewWriter(config.LoggingConfig{Level: "debug"}, f)
	}

	sub := app.Subscription{Types: splitList(*types), Conversations: splitList(*conversations)}
	dialURL, err := subscribeURL(*wsURL, *tenant, *user, sub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	wsc := client.NewWSClient(dialURL, *token, log)
	var httpClient *client.HTTPClient
	if !*noStats {
		httpClient = client.NewHTTPClient(deriveHTTPBase(*wsURL), *adminToken)
	}

	p := tea.NewProgram(app.New(wsc, httpClient, sub), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// subscribeURL adds the initial subscription to the websocket URL's query.
func subscribeURL(raw, tenant, user string, sub app.Subscription) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	if tenant != "" {
		q.Set("tenantId", tenant)
	}
	if user != "" {
		q.Set("userId", user)
	}
	if len(sub.Types) > 0 {
		q.Set("types", strings.Join(sub.Types, ","))
	}
	if len(sub.Conversations) > 0 {
		q.Set("conversations", strings.Join(sub.Conversations, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deriveHTTPBase converts ws://host:port/ws to http://host:port.
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
