package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rwtk/fetchr/internal/engine"
	"github.com/rwtk/fetchr/internal/fetch"
	"github.com/rwtk/fetchr/internal/utils"
)

var (
	outputDir     string
	parallel      int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	debug         bool
	urlListFile   string
	headers       []string
)

var FetchrVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "fetchr [flags] url1 url2 ...",
	Short:   "Fetchr downloads URLs in parallel, naming files from response headers",
	Version: FetchrVersion,
	Args:    cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		urls := make([]string, 0, len(args))
		for _, arg := range args {
			if !strings.HasPrefix(arg, "http://") && !strings.HasPrefix(arg, "https://") {
				utils.PrintWarning("Skipping non-URL argument: " + arg)
				continue
			}
			if _, err := u.Parse(arg); err != nil {
				utils.PrintWarning("Skipping malformed URL: " + arg)
				continue
			}
			urls = append(urls, arg)
		}
		if urlListFile != "" {
			listed, err := utils.ReadDownloadList(urlListFile)
			if err != nil {
				utils.PrintError("Failed to read URL list file")
				os.Exit(1)
			}
			urls = append(urls, listed...)
		}
		if len(urls) == 0 {
			return cmd.Usage()
		}
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
		httpClientConfig := utils.HTTPClientConfig{
			Timeout:       timeout,
			KATimeout:     kaTimeout,
			ProxyURL:      proxyURL,
			ProxyUsername: proxyUsername,
			ProxyPassword: proxyPassword,
			UserAgent:     userAgent,
			Headers:       utils.ParseHeaderArgs(headers),
		}
		if outputDir != "" {
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				utils.PrintError("Cannot create output directory")
				os.Exit(1)
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		go func() {
			<-sigCh
			fmt.Println()
			utils.PrintWarning("Interrupted")
			cancel()
		}()

		session := engine.NewHTTPSession(httpClientConfig)
		defer session.Close()
		scheduler := fetch.NewScheduler(session, parallel, outputDir)
		for _, url := range urls {
			scheduler.Enqueue(url)
		}
		if err := scheduler.Run(ctx); err != nil {
			fmt.Println()
			utils.PrintError("Encountered failed operation(s)")
			os.Exit(1)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory to place downloaded files in (default current directory)")
	rootCmd.Flags().StringVarP(&urlListFile, "urllist", "l", "", "Path to YAML file containing URLs to download")
	rootCmd.Flags().IntVarP(&parallel, "parallel", "w", 1, "Number of URLs to download in parallel")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 20*time.Minute, "Per-download timeout (eg. 5s, 10m)")
	rootCmd.Flags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.Flags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.Flags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
