package version

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "version")

const (
	RepoOwner = "khanglvm"
	RepoName  = "tool-optimizer-mcp"
	UpdateURL = "https://api.github.com/repos/" + RepoOwner + "/" + RepoName + "/releases/latest"

	// checkInterval throttles release lookups.
	checkInterval = 24 * time.Hour
)

var checkMu sync.Mutex

// GitHubRelease represents a GitHub release API response.
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// UpdateCache stores update check state.
type UpdateCache struct {
	LastUpdateCheck  time.Time `json:"lastUpdateCheck"`
	LastKnownVersion string    `json:"lastKnownVersion"`
}

// Checker looks up the latest release.
type Checker struct {
	URL       string
	Client    *http.Client
	CachePath string
	// Force ignores the cached result.
	Force bool
}

// NewChecker returns a checker for the project's GitHub releases.
func NewChecker() *Checker {
	c := &Checker{
		URL:    UpdateURL,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
	if home, err := os.UserHomeDir(); err == nil {
		c.CachePath = filepath.Join(home, ".tool-optimizer-cache.json")
	}
	return c
}

// CheckUpdate returns the latest released version when it is newer than
// current, or "" otherwise. Lookups are cached for 24h.
func (c *Checker) CheckUpdate(ctx context.Context, current string) (string, error) {
	checkMu.Lock()
	defer checkMu.Unlock()

	cache := c.loadCache()
	if !c.Force && time.Since(cache.LastUpdateCheck) < checkInterval && cache.LastKnownVersion != "" {
		return newerVersion(current, cache.LastKnownVersion), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", UserAgent())

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to check for updates")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("GitHub API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response")
	}

	var release GitHubRelease
	if err := json.Unmarshal(body, &release); err != nil {
		return "", errors.Wrap(err, "failed to parse response")
	}
	latest := strings.TrimPrefix(release.TagName, "v")

	cache.LastUpdateCheck = time.Now()
	cache.LastKnownVersion = latest
	if err := c.saveCache(cache); err != nil {
		logger.KV(xlog.WARNING, "reason", "save_update_cache", "err", err.Error())
	}

	return newerVersion(current, latest), nil
}

// newerVersion returns latest if it is a higher semantic version than
// current. Development builds always see the latest release.
func newerVersion(current, latest string) string {
	lv, err := semver.NewVersion(latest)
	if err != nil {
		return ""
	}
	cv, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return lv.String()
	}
	if lv.GreaterThan(cv) {
		return lv.String()
	}
	return ""
}

func (c *Checker) loadCache() *UpdateCache {
	if c.CachePath == "" {
		return &UpdateCache{}
	}
	data, err := os.ReadFile(c.CachePath)
	if err != nil {
		return &UpdateCache{}
	}
	var cache UpdateCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return &UpdateCache{}
	}
	return &cache
}

func (c *Checker) saveCache(cache *UpdateCache) error {
	if c.CachePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(c.CachePath, data, 0644))
}
