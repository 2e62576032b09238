package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and routing health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("tgmirror doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND — env vars only)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Telegram:")
	if cfg.Telegram.Token == "" {
		fmt.Printf("    %-12s MISSING (set TGMIRROR_TELEGRAM_TOKEN)\n", "Token:")
	} else {
		fmt.Printf("    %-12s configured\n", "Token:")
	}
	if cfg.Telegram.Proxy != "" {
		fmt.Printf("    %-12s %s\n", "Proxy:", cfg.Telegram.Proxy)
	}

	fmt.Println()
	fmt.Println("  Routes:")
	routes, err := cfg.ParseRoutes()
	if err != nil {
		fmt.Printf("    %-12s INVALID (%s)\n", "Status:", err)
		return
	}
	mode := "modern"
	if routes.LegacyMode {
		mode = "legacy single-pair"
	}
	fmt.Printf("    %-12s %s\n", "Mode:", mode)
	fmt.Printf("    %-12s %d (%d unique sources)\n", "Count:", len(routes.Routes), len(routes.SourceChatIDs()))
	for _, r := range routes.Routes {
		line := fmt.Sprintf("%d", r.SourceChatID)
		if r.SourceTopicID != 0 {
			line += fmt.Sprintf(" (topic %d)", r.SourceTopicID)
		}
		line += " -> " + r.Key()
		if r.SearchKeyword != "" {
			line += fmt.Sprintf(" [keyword %q]", r.SearchKeyword)
		}
		fmt.Printf("    %-12s %s\n", "Route:", line)
	}

	fmt.Println()
	fmt.Println("  Delivery:")
	fmt.Printf("    %-12s %s\n", "Delay:", cfg.MessageDelay())
	fmt.Printf("    %-12s %d\n", "Retries:", cfg.Relay.MaxRetries)
	fmt.Printf("    %-12s %s\n", "Debounce:", cfg.AlbumDebounce())
	if cfg.Webhook.URL != "" {
		fmt.Printf("    %-12s %s (%d targets)\n", "Webhook:", cfg.Webhook.URL, len(cfg.Webhook.Targets))
	}
	if cfg.Watermark.Enabled {
		fmt.Printf("    %-12s crop %dpx\n", "Watermark:", cfg.Watermark.CropBottomPx)
	}
}
