package settings

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/postlink/platform"
)

// File reads settings from a YAML file:
//
//	platforms:
//	  twitter:   {enabled: true, target: fxtwitter.com}
//	  instagram: {enabled: false}
//
// An omitted enabled key means enabled.
type File struct {
	Path string
	// Interval is the modification-time polling period. Default: 2s.
	Interval time.Duration
}

type fileDoc struct {
	Platforms map[platform.ID]struct {
		Enabled     *bool  `yaml:"enabled"`
		Target      string `yaml:"target"`
		PageControl bool   `yaml:"page_control"`
	} `yaml:"platforms"`
}

// Load implements Provider.
func (f *File) Load(context.Context) (Settings, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", f.Path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", f.Path, err)
	}
	out := make(Settings, len(doc.Platforms))
	for id, p := range doc.Platforms {
		enabled := p.Enabled == nil || *p.Enabled
		out[id] = Platform{Enabled: enabled, Target: p.Target, PageControl: p.PageControl}
	}
	return out, nil
}

// Watch implements Provider by polling the file's size and modification
// time. Read errors are skipped until the file is readable again.
func (f *File) Watch(ctx context.Context, onChange func(Settings)) error {
	interval := f.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	last := f.stamp()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cur := f.stamp()
			if cur == last {
				continue
			}
			s, err := f.Load(ctx)
			if err != nil {
				continue
			}
			last = cur
			onChange(s)
		}
	}
}

type stamp struct {
	mod  time.Time
	size int64
}

func (f *File) stamp() stamp {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return stamp{}
	}
	return stamp{mod: fi.ModTime(), size: fi.Size()}
}
