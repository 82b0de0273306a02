package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/fragzo/internal/output"
	"github.com/tanq16/fragzo/internal/utils"
)

var (
	workers         int
	fragmentRetries int
	skipUnavailable bool
	keepFragments   bool
	rateLimit       string
	timeout         time.Duration
	kaTimeout       time.Duration
	userAgent       string
	proxyURL        string
	proxyUsername   string
	proxyPassword   string
	tokenFile       string
	headers         []string
	debug           bool
	fileLog         bool
)

var globalHTTPConfig utils.HTTPClientConfig
var globalRateLimit int64

var FragzoVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "fragzo",
	Short:   "Fragzo is a resumable fragmented-media download manager",
	Version: FragzoVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if userAgent == "randomize" {
			userAgent = utils.GetRandomUserAgent()
		}
		// Check if proxy URL contains auth
		parsedProxy, err := u.Parse(proxyURL)
		if err == nil && parsedProxy.User != nil && proxyUsername == "" {
			proxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				proxyPassword = password
			}
			// Remove auth from URL to send in clientConfig
			parsedProxy.User = nil
			proxyURL = parsedProxy.String()
		}
		globalHTTPConfig = utils.HTTPClientConfig{
			Timeout:       timeout,
			KATimeout:     kaTimeout,
			ProxyURL:      proxyURL,
			ProxyUsername: proxyUsername,
			ProxyPassword: proxyPassword,
			UserAgent:     userAgent,
			Headers:       utils.ParseHeaderArgs(headers),
		}
		if tokenFile != "" {
			source, err := utils.LoadTokenSource(tokenFile)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error loading token file: %v", err))
				os.Exit(1)
			}
			globalHTTPConfig.TokenSource = source
		}
		globalRateLimit = 0
		if rateLimit != "" {
			limit, err := utils.ParseRate(rateLimit)
			if err != nil {
				output.PrintError(fmt.Sprintf("Invalid rate limit: %v", err))
				os.Exit(1)
			}
			globalRateLimit = limit
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 1, "Number of downloads to run in parallel")
	rootCmd.PersistentFlags().IntVar(&fragmentRetries, "fragment-retries", 10, "Retries per fragment before it counts as unavailable")
	rootCmd.PersistentFlags().BoolVar(&skipUnavailable, "skip-unavailable", true, "Skip fragments that stay unavailable after all retries")
	rootCmd.PersistentFlags().BoolVar(&keepFragments, "keep-fragments", false, "Keep per-fragment temp files after assembly")
	rootCmd.PersistentFlags().StringVar(&rateLimit, "rate-limit", "", "Download rate limit in bytes/sec (eg. 500K, 2M)")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser UA)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Path to an OAuth2 token JSON for bearer-protected sources")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&fileLog, "file-log", false, "Write logs to "+utils.LogFile+" instead of discarding them")

	rootCmd.AddCommand(newHLSCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}
