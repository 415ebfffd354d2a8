// Package cache stores copter tables of contents on disk, keyed by the CRC
// the copter reports, so that reconnecting skips the slow TOC download.
package cache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const defaultDir = "~/.crazypilot/cache"

type Cache struct {
	dir string
}

// New creates the cache directory if needed. An empty dir selects
// ~/.crazypilot/cache.
func New(dir string) (*Cache, error) {
	if dir == "" {
		dir = defaultDir
	}

	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, errors.Wrap(err, "cache: resolving directory")
	}

	if err := os.MkdirAll(expanded, 0777); err != nil {
		return nil, errors.Wrap(err, "cache: creating directory")
	}
	return &Cache{dir: expanded}, nil
}

func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) path(crc uint32, kind string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%X.%scache", crc, kind))
}

func (c *Cache) LoadLog(crc uint32, e interface{}) error {
	return c.load(c.path(crc, "log"), e)
}

func (c *Cache) SaveLog(crc uint32, e interface{}) error {
	return c.save(c.path(crc, "log"), e)
}

func (c *Cache) load(path string, e interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(e); err != nil {
		return errors.Wrapf(err, "cache: decoding %s", filepath.Base(path))
	}
	return nil
}

func (c *Cache) save(path string, e interface{}) error {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(e); err != nil {
		return errors.Wrapf(err, "cache: encoding %s", filepath.Base(path))
	}
	return nil
}
