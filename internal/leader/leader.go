// Package leader discovers the current KV/API leader the rest of the
// catalog talks to. A small hint file names the leader's URLs; the leader's
// own HTTP API is treated as authoritative and polled with a short TTL
// cache so a stale or slow-to-update hint file never sticks around longer
// than a few seconds. Grounded on the teacher's httpclient retry/backoff
// shape and safeurl's scheme check, generalized from single-request
// provider calls to a long-lived discovery poll.
package leader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mediacat/mediacat/internal/errs"
	"github.com/mediacat/mediacat/internal/httpclient"
	"github.com/mediacat/mediacat/internal/safeurl"
)

// Info is the leader hint/authoritative record, matching the hint file and
// the "<apiUrl>/urls" response shape.
type Info struct {
	APIURL            string    `json:"apiUrl"`
	RedisURL          string    `json:"redisUrl"`
	WebdavURL         string    `json:"webdavUrl"`
	WebdavURLInternal string    `json:"webdavUrlInternal"`
	Hostname          string    `json:"hostname"`
	Timestamp         time.Time `json:"timestamp"`
}

// cacheTTL is the authoritative-lookup cache lifetime (spec: 5s).
const cacheTTL = 5 * time.Second

// Discoverer reads path as a hint and treats "<apiUrl>/urls" as the
// authoritative source, caching it for cacheTTL and invalidating early if
// the hint file's mtime changes underneath it.
type Discoverer struct {
	path   string
	client *http.Client

	mu        sync.Mutex
	cached    *Info
	cachedAt  time.Time
	fileStamp time.Time
}

// New returns a Discoverer reading its hint file from path (e.g.
// Config.LeaderPath).
func New(path string) *Discoverer {
	return &Discoverer{path: path, client: httpclient.Default()}
}

// Current returns the current leader info, using the cached authoritative
// lookup when still fresh and the hint file is unchanged.
func (d *Discoverer) Current(ctx context.Context) (*Info, error) {
	d.mu.Lock()
	stamp, statErr := fileModTime(d.path)
	if statErr == nil && !stamp.Equal(d.fileStamp) {
		d.cached = nil
		d.fileStamp = stamp
	}
	if d.cached != nil && time.Since(d.cachedAt) < cacheTTL {
		cached := d.cached
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	hint, err := d.readHint()
	if err != nil {
		return nil, err
	}
	if !safeurl.IsHTTPOrHTTPS(hint.APIURL) {
		return nil, fmt.Errorf("leader: hint apiUrl %q is not http(s)", hint.APIURL)
	}

	info, err := d.fetchAuthoritative(ctx, hint.APIURL)
	if err != nil {
		// The file hint is still usable on its own when the API call fails;
		// callers treat a degraded hint-only result as good enough to proceed.
		log.Printf("leader: authoritative lookup at %s failed, falling back to file hint: %v", hint.APIURL, err)
		d.mu.Lock()
		d.cached = hint
		d.cachedAt = time.Now()
		d.mu.Unlock()
		return hint, nil
	}

	d.mu.Lock()
	d.cached = info
	d.cachedAt = time.Now()
	d.mu.Unlock()
	return info, nil
}

// Wait polls Current until it succeeds or limit elapses, returning
// *errs.NoLeader on timeout.
func (d *Discoverer) Wait(ctx context.Context, limit time.Duration) (*Info, error) {
	deadline := time.Now().Add(limit)
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		info, err := d.Current(ctx)
		if err == nil {
			return info, nil
		}
		if time.Now().After(deadline) {
			return nil, &errs.NoLeader{Waited: limit}
		}
		select {
		case <-ctx.Done():
			return nil, &errs.NoLeader{Waited: limit - time.Until(deadline)}
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (d *Discoverer) readHint() (*Info, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("leader: reading hint file %s: %w", d.path, err)
	}
	defer f.Close()
	body, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("leader: reading hint file %s: %w", d.path, err)
	}
	return parseHint(body)
}

// parseHint accepts either JSON or a plain key=value-per-line file,
// matching the "JSON or plain-text" hint format.
func parseHint(body []byte) (*Info, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("leader: empty hint file")
	}
	if trimmed[0] == '{' {
		var info Info
		if err := json.Unmarshal(body, &info); err != nil {
			return nil, fmt.Errorf("leader: parsing JSON hint: %w", err)
		}
		return &info, nil
	}

	info := &Info{}
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		switch strings.ToLower(k) {
		case "apiurl":
			info.APIURL = v
		case "redisurl":
			info.RedisURL = v
		case "webdavurl":
			info.WebdavURL = v
		case "webdavurlinternal":
			info.WebdavURLInternal = v
		case "hostname":
			info.Hostname = v
		case "timestamp":
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				info.Timestamp = t
			}
		}
	}
	return info, nil
}

func (d *Discoverer) fetchAuthoritative(ctx context.Context, apiURL string) (*Info, error) {
	url := strings.TrimSuffix(apiURL, "/") + "/urls"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpclient.DoWithRetry(ctx, d.client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("leader: %s returned %d", url, resp.StatusCode)
	}
	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("leader: decoding %s response: %w", url, err)
	}
	return &info, nil
}

func fileModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// WatchDir returns the parent directory of the hint file, for callers that
// want to set up their own filesystem watch; the Discoverer itself only
// polls the file's mtime on each Current call, which is sufficient given
// Current is already called on a short interval.
func (d *Discoverer) WatchDir() string {
	return filepath.Dir(d.path)
}
