package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// cachedFeed is the last good copy of one staff feed plus the validators
// needed for a conditional request.
type cachedFeed struct {
	StaffID      string    `json:"staff_id"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`

	Body []byte `json:"-"`
}

// feedCache keeps one entry per (staff member, feed URL) under dir:
//
//	<dir>/<staff>-<urlhash>.ics   body
//	<dir>/<staff>-<urlhash>.json  validators
//
// Pointing a staff member at a new URL starts a fresh entry.
type feedCache struct {
	dir string
}

func (c feedCache) paths(src Source) (meta, body string) {
	sum := sha256.Sum256([]byte(src.URL))
	base := filepath.Join(c.dir, safeName(src.ID)+"-"+hex.EncodeToString(sum[:6]))
	return base + ".json", base + ".ics"
}

// load returns the cached entry, or false when there is no usable body.
func (c feedCache) load(src Source) (cachedFeed, bool) {
	metaPath, bodyPath := c.paths(src)

	body, err := os.ReadFile(bodyPath)
	if err != nil || len(body) == 0 {
		return cachedFeed{}, false
	}
	var e cachedFeed
	if data, err := os.ReadFile(metaPath); err == nil {
		// Corrupt validators only cost a full download.
		_ = sonic.Unmarshal(data, &e)
	}
	e.StaffID = src.ID
	e.Body = body
	return e, true
}

// store writes the body before the validators so a crash never leaves
// validators for a body that is not on disk.
func (c feedCache) store(src Source, e cachedFeed) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}
	metaPath, bodyPath := c.paths(src)
	if err := writeAtomic(bodyPath, e.Body); err != nil {
		return err
	}
	data, err := sonic.Marshal(&e)
	if err != nil {
		return err
	}
	return writeAtomic(metaPath, data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".staffcal-feed-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// safeName maps a staff id onto characters that are safe in a file name.
func safeName(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
