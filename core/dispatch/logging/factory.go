package logging

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/fleetcore/core/factory"
)

var stores = factory.NewRegistry[LogStore]("dispatch log store")

type fileConf struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

func decodeFile(conf map[string]any, c *fileConf) error {
	if err := factory.Decode(conf, c); err != nil {
		return err
	}
	if c.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

func init() {
	stores.MustRegister("nop", func(map[string]any) (LogStore, error) { return NopStore{}, nil })
	stores.MustRegister("jsonl", func(conf map[string]any) (LogStore, error) {
		var c fileConf
		if err := decodeFile(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})
	stores.MustRegister("jsonl_rotating", func(conf map[string]any) (LogStore, error) {
		c := fileConf{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30}
		if err := decodeFile(conf, &c); err != nil {
			return nil, err
		}
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	stores.MustRegister("sqlite", func(conf map[string]any) (LogStore, error) {
		var c fileConf
		if err := decodeFile(conf, &c); err != nil {
			return nil, err
		}
		s, err := NewSQLiteStore(c.Path)
		if err != nil {
			return nil, err
		}
		if c.MaxAgeDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -c.MaxAgeDays)
			if _, err := s.Prune(context.Background(), cutoff); err != nil {
				return nil, errors.Join(err, s.Close())
			}
		}
		return s, nil
	})
}

// NewLogStore creates the dispatch log backend described by cfg. An empty
// type disables logging.
func NewLogStore(cfg factory.ModuleConfig) (LogStore, error) {
	if cfg.Type == "" {
		return NopStore{}, nil
	}
	return stores.Create(cfg)
}

// Backends lists the registered store types.
func Backends() []string { return stores.Types() }
