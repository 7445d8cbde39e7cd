// Package manifest loads the session manifest: the guest memory extent
// and the channel table with its aliases, access types and quotas. The
// manifest is parsed once before the session starts; the trap layer
// never creates or removes channels.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zhiqian1027/zerovm/channel"
)

// KindPipe backs a channel with a bounded pipe collector instead of a
// file; the host reads the collected bytes back after teardown.
const KindPipe = "pipe"

// Channel describes one I/O endpoint in the manifest.
type Channel struct {
	// Name is the backing resource (a file path), empty for an
	// unbound endpoint
	Name  string `yaml:"name"`
	Alias string `yaml:"alias"`
	// Kind selects the backend family: "" for file or unbound,
	// KindPipe for a collected log sink
	Kind string `yaml:"kind"`
	// Type selects the access pattern, 0-3 as in channel.Type
	Type int `yaml:"type"`

	// quota limits, one pair per direction
	Gets    int64 `yaml:"gets"`
	GetSize int64 `yaml:"get_size"`
	Puts    int64 `yaml:"puts"`
	PutSize int64 `yaml:"put_size"`

	// Max bounds the bytes a pipe channel collects; PutSize applies
	// when zero
	Max int64 `yaml:"max"`
}

// Manifest is the full session configuration.
type Manifest struct {
	Node     int       `yaml:"node"`
	Version  string    `yaml:"version"`
	Memory   int64     `yaml:"memory"`
	Channels []Channel `yaml:"channels"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to read %s: %v", path, err)
	}
	return Parse(b)
}

// Parse decodes and validates manifest bytes.
func Parse(b []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest: failed to parse: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks manifest invariants before anything is built from it.
func (m *Manifest) Validate() error {
	if m.Memory <= 0 {
		return fmt.Errorf("manifest: memory extent %d is not positive", m.Memory)
	}
	seen := make(map[string]bool, len(m.Channels))
	for i, c := range m.Channels {
		if c.Alias == "" {
			return fmt.Errorf("manifest: channel %d has no alias", i)
		}
		if seen[c.Alias] {
			return fmt.Errorf("manifest: duplicate channel alias %q", c.Alias)
		}
		seen[c.Alias] = true
		if c.Type < int(channel.SeqGetSeqPut) || c.Type > int(channel.RndGetRndPut) {
			return fmt.Errorf("manifest: channel %q has invalid type %d", c.Alias, c.Type)
		}
		if c.Gets < 0 || c.GetSize < 0 || c.Puts < 0 || c.PutSize < 0 {
			return fmt.Errorf("manifest: channel %q has negative limits", c.Alias)
		}
		switch c.Kind {
		case "":
		case KindPipe:
			if c.Name != "" {
				return fmt.Errorf("manifest: pipe channel %q cannot name a file", c.Alias)
			}
			if c.Max < 0 {
				return fmt.Errorf("manifest: pipe channel %q has negative max", c.Alias)
			}
		default:
			return fmt.Errorf("manifest: channel %q has unknown kind %q", c.Alias, c.Kind)
		}
	}
	return nil
}

// BuildChannels opens the backing resources and produces the channel
// table in manifest order. On error every already-opened backend is
// closed.
func (m *Manifest) BuildChannels() (channel.Table, error) {
	table := make(channel.Table, 0, len(m.Channels))
	for _, c := range m.Channels {
		d, err := buildChannel(c)
		if err != nil {
			table.Close()
			return nil, err
		}
		table = append(table, d)
	}
	return table, nil
}

func buildChannel(c Channel) (*channel.Desc, error) {
	d := &channel.Desc{
		Alias: c.Alias,
		Type:  channel.Type(c.Type),
		Limits: [channel.LimitsCount]int64{
			channel.GetsLimit:    c.Gets,
			channel.GetSizeLimit: c.GetSize,
			channel.PutsLimit:    c.Puts,
			channel.PutSizeLimit: c.PutSize,
		},
	}
	if c.Kind == KindPipe {
		max := c.Max
		if max == 0 {
			max = c.PutSize
		}
		pc, err := channel.NewPipeCollector(max)
		if err != nil {
			return nil, fmt.Errorf("manifest: failed to build pipe channel %q: %v", c.Alias, err)
		}
		d.Backend = pc
		return d, nil
	}
	if c.Name == "" {
		d.Backend = channel.Null{}
		return d, nil
	}

	flags := os.O_RDONLY
	if c.Puts > 0 {
		flags = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(c.Name, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open channel %q: %v", c.Alias, err)
	}
	if fi, err := f.Stat(); err == nil {
		d.Size = fi.Size()
	}
	d.Backend = f
	return d, nil
}
