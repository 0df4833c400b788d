package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeIndexing()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.Archive, err = expandPath(strings.TrimSpace(c.Paths.Archive)); err != nil {
		return fmt.Errorf("paths.archive: %w", err)
	}
	if c.Paths.Incoming, err = expandPath(strings.TrimSpace(c.Paths.Incoming)); err != nil {
		return fmt.Errorf("paths.incoming: %w", err)
	}
	if c.Paths.Quarantine, err = expandPath(strings.TrimSpace(c.Paths.Quarantine)); err != nil {
		return fmt.Errorf("paths.quarantine: %w", err)
	}
	if strings.TrimSpace(c.Paths.Tmp) == "" {
		c.Paths.Tmp = Default().Paths.Tmp
	}
	if c.Paths.Tmp, err = expandPath(strings.TrimSpace(c.Paths.Tmp)); err != nil {
		return fmt.Errorf("paths.tmp: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	var err error
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = filepath.Join(c.Paths.Tmp, defaultStoreFileName)
	}
	if c.Store.Path, err = expandPath(strings.TrimSpace(c.Store.Path)); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeIndexing() {
	c.Indexing.Prefix = strings.ToLower(strings.TrimSpace(c.Indexing.Prefix))
	if c.Indexing.Prefix == "" {
		c.Indexing.Prefix = defaultIndexPrefix
	}
	if c.Indexing.BatchSize == 0 {
		c.Indexing.BatchSize = defaultBatchSize
	}
	if c.Indexing.Workers == 0 {
		c.Indexing.Workers = defaultWorkers
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
