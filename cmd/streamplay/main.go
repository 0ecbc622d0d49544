// Command streamplay is a minimal demo host for the httpinput plugin:
// it opens an http:// URL (a plain audio stream or an ICY-tagged
// station), plays it back, and shows a live status view of the ICY tag
// and buffer/backpressure state.
package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpdgo/httpinput/internal/plugin"
	"github.com/mpdgo/httpinput/internal/status"
	"github.com/mpdgo/httpinput/internal/streamplay"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <http-url>\n", os.Args[0])
		os.Exit(1)
	}
	url := os.Args[1]

	facade, err := plugin.Init(readProxyEnv(), nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing plugin: %v\n", err)
		os.Exit(1)
	}

	src, err := facade.Open(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", url, err)
		os.Exit(1)
	}

	deadline := time.Now().Add(10 * time.Second)
	for !src.Ready() {
		if time.Now().After(deadline) {
			fmt.Fprintln(os.Stderr, "Error: timed out waiting for stream to become ready")
			facade.Close(src)
			os.Exit(1)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := src.Check(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		facade.Close(src)
		os.Exit(1)
	}

	p, err := streamplay.New(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating player: %v\n", err)
		facade.Close(src)
		os.Exit(1)
	}
	model := status.New(p, url)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := program.Run()

	p.Close()
	facade.Close(src)
	facade.Finish()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// readProxyEnv builds the plugin's block-scoped proxy configuration
// from environment variables, since this demo has no host config file
// to load from.
func readProxyEnv() map[string]string {
	block := map[string]string{}
	if v := os.Getenv("STREAMPLAY_PROXY"); v != "" {
		block["proxy"] = v
	}
	if v := os.Getenv("STREAMPLAY_PROXY_PORT"); v != "" {
		block["proxy_port"] = v
	}
	if v := os.Getenv("STREAMPLAY_PROXY_USER"); v != "" {
		block["proxy_user"] = v
	}
	if v := os.Getenv("STREAMPLAY_PROXY_PASSWORD"); v != "" {
		block["proxy_password"] = v
	}
	return block
}
