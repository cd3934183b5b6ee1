// Package version holds the build version and checks GitHub for newer
// littlejohn releases.
package version

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is set via ldflags during release builds.
var Version = "dev"

const (
	releaseAPIURL  = "https://api.github.com/repos/littlejohn-app/littlejohn/releases/latest"
	requestTimeout = 10 * time.Second
)

// UpdateInfo describes a newer release, when one exists.
type UpdateInfo struct {
	CurrentVersion string
	LatestVersion  string
	ReleaseURL     string
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckForUpdate asks GitHub for the latest release. Network and API
// errors are swallowed: an update notice is best-effort only. Returns
// nil when no newer version exists or the check was skipped.
func CheckForUpdate(current string) *UpdateInfo {
	if current == "dev" || current == "" {
		return nil
	}

	client := &http.Client{Timeout: requestTimeout}
	req, err := http.NewRequest(http.MethodGet, releaseAPIURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "littlejohn-update-check")
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil
	}

	if !newer(release.TagName, current) {
		return nil
	}
	return &UpdateInfo{
		CurrentVersion: current,
		LatestVersion:  release.TagName,
		ReleaseURL:     release.HTMLURL,
	}
}

// newer reports whether latest is a strictly higher semver than current.
func newer(latest, current string) bool {
	l := parse(latest)
	c := parse(current)
	for i := 0; i < 3; i++ {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

// parse extracts [major, minor, patch] from a tag like "v1.2.3-beta".
func parse(tag string) [3]int {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "v")
	var out [3]int
	for i, seg := range strings.Split(tag, ".") {
		if i >= 3 {
			break
		}
		if idx := strings.IndexAny(seg, "-+"); idx != -1 {
			seg = seg[:idx]
		}
		out[i], _ = strconv.Atoi(seg)
	}
	return out
}
