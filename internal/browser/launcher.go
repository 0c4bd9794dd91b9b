package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// detectBrowser finds an available Chrome/Chromium binary.
func detectBrowser() (string, error) {
	candidates := []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %s)", strings.Join(candidates, ", "))
}

// newAllocator attaches to opts.RemoteURL when set, otherwise launches a
// local browser.
func newAllocator(ctx context.Context, opts Options) (context.Context, context.CancelFunc, error) {
	if opts.RemoteURL != "" {
		if err := waitForCDP(ctx, opts.RemoteURL, opts.LaunchTimeout); err != nil {
			return nil, nil, err
		}
		allocCtx, cancel := chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
		slog.Info("attaching to running browser", "cdp_url", opts.RemoteURL)
		return allocCtx, cancel, nil
	}

	path := opts.ExecPath
	if path == "" {
		detected, err := detectBrowser()
		if err != nil {
			return nil, nil, err
		}
		path = detected
	}
	slog.Info("launching browser", "path", path, "headless", opts.Headless, "window", fmt.Sprintf("%dx%d", opts.Width, opts.Height))

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.NoSandbox {
		execOpts = append(execOpts, chromedp.NoSandbox)
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	return allocCtx, cancel, nil
}

// waitForCDP polls the CDP /json/version endpoint until it responds.
func waitForCDP(ctx context.Context, cdpURL string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	url := strings.TrimSuffix(cdpURL, "/") + "/json/version"
	if strings.HasPrefix(url, "ws://") {
		url = "http://" + strings.TrimPrefix(url, "ws://")
	}
	deadline := time.After(timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("CDP probe request: %w", err)
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("CDP did not become ready within %s at %s", timeout, url)
		case <-ticker.C:
		}
	}
}
