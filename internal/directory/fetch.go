package directory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Fetcher returns the HTML of a directory page.
type Fetcher interface {
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// HTTPFetcher issues a plain GET, optionally through a scraping proxy whose
// URL template carries {key} and {url} placeholders.
type HTTPFetcher struct {
	Client   *http.Client
	ProxyURL string
	ProxyKey string
}

func NewHTTPFetcher(client *http.Client, proxyURL, proxyKey string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{Client: client, ProxyURL: strings.TrimSpace(proxyURL), ProxyKey: strings.TrimSpace(proxyKey)}
}

func (f *HTTPFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	target := pageURL
	if f.ProxyURL != "" {
		target = strings.NewReplacer("{key}", url.QueryEscape(f.ProxyKey), "{url}", url.QueryEscape(pageURL)).Replace(f.ProxyURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", eris.Wrap(err, "build directory request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	res, err := f.Client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "fetch directory page")
	}
	defer res.Body.Close()
	blob, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return "", eris.Wrap(err, "read directory page")
	}
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("status code: %d body=%s", res.StatusCode, excerpt(string(blob)))
	}
	return string(blob), nil
}

// BrowserFetcher renders the page in headless Chrome for sites that build
// their listings client-side.
type BrowserFetcher struct {
	chromePath string
}

func NewBrowserFetcher() *BrowserFetcher {
	return &BrowserFetcher{chromePath: detectChromePath()}
}

func (f *BrowserFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	}
	if f.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var doc string
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &doc, chromedp.ByQuery),
	); err != nil {
		return "", eris.Wrapf(err, "render %s", pageURL)
	}
	return doc, nil
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
