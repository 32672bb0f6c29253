// File: internal/browser/cookies.go
package browser

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	jsoniter "github.com/json-iterator/go"
	homedir "github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// persistedCookie is the on-disk cookie shape. Kept flat and independent of
// the CDP types so old state files survive dependency upgrades.
type persistedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
}

// cookieStore reads and writes the session's cookie state file.
type cookieStore struct {
	dir    string
	logger *zap.Logger
}

func newCookieStore(dir string, logger *zap.Logger) *cookieStore {
	return &cookieStore{dir: dir, logger: logger.Named("cookies")}
}

func (c *cookieStore) path() (string, error) {
	dir, err := homedir.Expand(c.dir)
	if err != nil {
		return "", fmt.Errorf("could not expand state directory %q: %w", c.dir, err)
	}
	return filepath.Join(dir, "cookies.json"), nil
}

// Load reads persisted cookies and converts them to CDP set-cookie params.
// A missing state file is not an error.
func (c *cookieStore) Load() ([]*network.CookieParam, error) {
	path, err := c.path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read cookie state: %w", err)
	}

	var stored []persistedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("corrupt cookie state file %q: %w", path, err)
	}

	params := make([]*network.CookieParam, 0, len(stored))
	for _, pc := range stored {
		param := &network.CookieParam{
			Name:     pc.Name,
			Value:    pc.Value,
			Domain:   pc.Domain,
			Path:     pc.Path,
			Secure:   pc.Secure,
			HTTPOnly: pc.HTTPOnly,
		}
		if pc.Expires > 0 {
			expires := cdp.TimeSinceEpoch(timeFromEpoch(pc.Expires))
			param.Expires = &expires
		}
		params = append(params, param)
	}
	return params, nil
}

// Save writes the browser's current cookies to the state file.
func (c *cookieStore) Save(cookies []*network.Cookie) error {
	path, err := c.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("could not create state directory: %w", err)
	}

	stored := make([]persistedCookie, 0, len(cookies))
	for _, ck := range cookies {
		stored = append(stored, persistedCookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		})
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode cookie state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("could not write cookie state: %w", err)
	}
	c.logger.Debug("Cookie state saved", zap.Int("count", len(stored)), zap.String("path", path))
	return nil
}

// timeFromEpoch converts CDP's fractional seconds-since-epoch representation.
func timeFromEpoch(sec float64) time.Time {
	whole := math.Floor(sec)
	return time.Unix(int64(whole), int64((sec-whole)*float64(time.Second)))
}
