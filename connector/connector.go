// ABOUTME: This file implements the outbound HTTP connector for probes and page fetches
// ABOUTME: Requests pass URL safety validation and per-host politeness spacing first
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"citation-processor/config"
	"citation-processor/metrics"
	"citation-processor/ratelimit"
)

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"

	// maxBodyBytes caps how much of a response we read. Citation pages
	// beyond this are truncated, not rejected.
	maxBodyBytes = 10 << 20
)

// Link is one outbound anchor discovered on a fetched page, with its
// document order preserved.
type Link struct {
	URL      string
	Text     string
	Position int
}

// Page is the result of a full page fetch.
type Page struct {
	URL   string
	HTML  string
	Title string
	Links []Link
}

// Connector performs verification probes and page fetches.
type Connector struct {
	client  *http.Client
	cfg     config.HTTPConfig
	limiter *ratelimit.HostLimiter
	logger  *slog.Logger
}

// New creates a connector with pooled transports sized from config.
func New(cfg config.HTTPConfig, limiter *ratelimit.HostLimiter, logger *slog.Logger) *Connector {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	return &Connector{
		client:  &http.Client{Transport: transport},
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
	}
}

// ValidateURL rejects URLs we must never contact: non-HTTP schemes,
// private networks, and service ports.
func (c *Connector) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != SchemeHTTP && u.Scheme != SchemeHTTPS {
		return errors.New("only HTTP or HTTPS schemes allowed")
	}
	if u.Hostname() == "" {
		return errors.New("URL must contain a host")
	}
	if !c.cfg.AllowPrivateHosts && isPrivateHost(u.Hostname()) {
		return errors.New("access to private networks not allowed")
	}
	if port := u.Port(); port != "" && blockedPorts[port] {
		return errors.New("access to this port is not allowed")
	}
	return nil
}

// Probe checks that a URL is reachable. It issues a HEAD request and falls
// back to GET on any HEAD failure, since plenty of origins reject HEAD (405,
// 501, bot-filtered 403) while serving GET fine. The GET result decides.
func (c *Connector) Probe(ctx context.Context, rawURL string) error {
	if err := c.ValidateURL(rawURL); err != nil {
		return err
	}

	host := hostOf(rawURL)
	if err := c.limiter.Wait(ctx, host); err != nil {
		return err
	}

	start := time.Now()
	err := c.probeOnce(ctx, http.MethodHead, rawURL)
	if err != nil {
		err = c.probeOnce(ctx, http.MethodGet, rawURL)
	}

	metrics.FetchDuration.WithLabelValues("probe").Observe(time.Since(start).Seconds())
	if err != nil {
		c.limiter.RecordFailure(host)
		return err
	}
	c.limiter.RecordSuccess(host)
	return nil
}

func (c *Connector) probeOnce(ctx context.Context, method, rawURL string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain a GET probe so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return &HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// FetchPage downloads a page and extracts its title and outbound links in
// document order, resolving relative URLs against the final request URL.
func (c *Connector) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	if err := c.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	host := hostOf(rawURL)
	if err := c.limiter.Wait(ctx, host); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.FetchDuration.WithLabelValues("fetch").Observe(time.Since(start).Seconds())
	if err != nil {
		c.limiter.RecordFailure(host)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.limiter.RecordFailure(host)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.limiter.RecordFailure(host)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	c.limiter.RecordSuccess(host)

	html := string(body)
	base := resp.Request.URL

	page := &Page{
		URL:  base.String(),
		HTML: html,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Title and links are best-effort; the raw HTML still flows on.
		c.logger.Warn("failed to parse fetched page", "url", rawURL, "error", err)
		return page, nil
	}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())

	position := 0
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != SchemeHTTP && abs.Scheme != SchemeHTTPS {
			return
		}

		page.Links = append(page.Links, Link{
			URL:      abs.String(),
			Text:     strings.TrimSpace(s.Text()),
			Position: position,
		})
		position++
	})

	return page, nil
}

var blockedPorts = map[string]bool{
	"22": true, "23": true, "25": true, "53": true, "110": true,
	"143": true, "993": true, "995": true, "1433": true, "3306": true,
	"5432": true, "6379": true, "11211": true,
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}

func isPrivateHost(hostname string) bool {
	if ip := net.ParseIP(hostname); ip != nil {
		return isPrivateIP(ip)
	}

	hostname = strings.ToLower(hostname)
	if hostname == "localhost" || strings.HasPrefix(hostname, "127.") {
		return true
	}
	if hostname == "169.254.169.254" || hostname == "metadata.google.internal" {
		return true
	}

	for _, suffix := range []string{".local", ".internal", ".corp", ".lan"} {
		if strings.HasSuffix(hostname, suffix) {
			return true
		}
	}
	return false
}

func isPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		case ip4[0] == 127:
			return true
		case ip4[0] == 169 && ip4[1] == 254:
			return true
		}
		return false
	}

	if ip6 := ip.To16(); ip6 != nil {
		if ip6[0] == 0xfe && ip6[1]&0xc0 == 0x80 {
			return true
		}
		if ip6[0]&0xfe == 0xfc {
			return true
		}
		if ip.IsLoopback() {
			return true
		}
	}
	return false
}
