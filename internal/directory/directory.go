// Package directory implements UserDirectory, spec.md §4.5: a read-through
// adapter over a remote key-value store (etcd, path-prefix keyed) with a
// local checksum-gated decode cache and a background watch that proactively
// invalidates that cache on change.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"

	"github.com/insight-platform/media-gateway-go/internal/cache"
	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
)

// DataFormat selects the wire encoding of a user record.
type DataFormat int

const (
	FormatJSON DataFormat = iota
	FormatYAML
)

// Config mirrors spec.md §6's auth.directory table.
type Config struct {
	Endpoints      []string
	Prefix         string
	Username       string
	Password       string
	LeaseTimeout   time.Duration
	ConnectTimeout time.Duration
	Format         DataFormat
	CacheSize      int
}

// Directory is the read-through UserDirectory.
type Directory struct {
	client *clientv3.Client
	prefix string
	format DataFormat
	cache  *cache.LruCache[string, cachedRecord]
	cancel context.CancelFunc
}

type cachedRecord struct {
	checksum string
	data     mgmodel.UserData
}

// New connects to etcd and starts the prefix watch. Construction validates
// lease_timeout > 0 and connect_timeout > 0 and ensures the prefix carries a
// trailing delimiter, per spec.md §4.5.
func New(cfg Config) (*Directory, error) {
	if cfg.LeaseTimeout <= 0 {
		return nil, fmt.Errorf("directory: lease_timeout must be > 0")
	}
	if cfg.ConnectTimeout <= 0 {
		return nil, fmt.Errorf("directory: connect_timeout must be > 0")
	}
	prefix := cfg.Prefix
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.ConnectTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("directory: connect: %w", err)
	}

	lruCache, err := cache.NewLruCache[string, cachedRecord](cfg.CacheSize)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("directory: cache: %w", err)
	}

	d := &Directory{client: client, prefix: prefix, format: cfg.Format, cache: lruCache}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.watch(ctx)

	return d, nil
}

// Get looks up a username, decoding the stored record if the cached
// checksum no longer matches the directory's current content. Absent users
// return (nil, nil); store failures and decode failures are returned as
// errors (mapped to a 500 by the caller, per spec.md §4.6 step 3).
func (d *Directory) Get(ctx context.Context, username string) (*mgmodel.UserData, error) {
	key := d.prefix + username

	resp, err := d.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("directory: get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	raw := resp.Kvs[0].Value
	checksum := mgmodel.HashUserData(raw)

	if cached, ok := d.cache.Get(key); ok && cached.checksum == checksum {
		data := cached.data
		return &data, nil
	}

	data, err := d.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("directory: decode %s: %w", key, err)
	}

	d.cache.Push(key, cachedRecord{checksum: checksum, data: *data})
	return data, nil
}

func (d *Directory) decode(raw []byte) (*mgmodel.UserData, error) {
	var record userRecord
	var err error
	switch d.format {
	case FormatYAML:
		err = yaml.Unmarshal(raw, &record)
	default:
		err = json.Unmarshal(raw, &record)
	}
	if err != nil {
		return nil, err
	}
	return record.toUserData(), nil
}

// watch invalidates cache entries proactively on change, a stronger
// guarantee than the spec's minimum checksum-gated read, kept in addition
// to (not instead of) the checksum check since a watch event and a direct
// Get can race (SPEC_FULL.md §4.5).
func (d *Directory) watch(ctx context.Context) {
	ch := d.client.Watch(ctx, d.prefix, clientv3.WithPrefix())
	for resp := range ch {
		if resp.Err() != nil {
			slog.Warn("directory watch error", "error", resp.Err())
			continue
		}
		for _, ev := range resp.Events {
			d.cache.Pop(string(ev.Kv.Key))
		}
	}
}

// Close stops the background watch and disconnects from etcd. Wired to the
// process shutdown latch by the caller, per spec.md §9.
func (d *Directory) Close() error {
	d.cancel()
	return d.client.Close()
}

// userRecord is the wire shape of a directory entry; allowed_routing_labels
// is decoded into a mgmodel.RoutingLabelRule tree by ruleSpec below.
type userRecord struct {
	PasswordHash        string   `json:"password_hash" yaml:"password_hash"`
	AllowedRoutingLabels *ruleSpec `json:"allowed_routing_labels,omitempty" yaml:"allowed_routing_labels,omitempty"`
}

func (r userRecord) toUserData() *mgmodel.UserData {
	ud := &mgmodel.UserData{PasswordHash: r.PasswordHash}
	if r.AllowedRoutingLabels != nil {
		ud.AllowedRoutingLabels = r.AllowedRoutingLabels.toRule()
	}
	return ud
}

// ruleSpec mirrors spec.md §3's Set/AllOf/AnyOf/Not variants in a
// JSON/YAML-friendly shape: exactly one field is set.
type ruleSpec struct {
	Set   string      `json:"set,omitempty" yaml:"set,omitempty"`
	AllOf []*ruleSpec `json:"all_of,omitempty" yaml:"all_of,omitempty"`
	AnyOf []*ruleSpec `json:"any_of,omitempty" yaml:"any_of,omitempty"`
	Not   *ruleSpec   `json:"not,omitempty" yaml:"not,omitempty"`
}

func (r *ruleSpec) toRule() mgmodel.RoutingLabelRule {
	if r == nil {
		return nil
	}
	switch {
	case r.Set != "":
		return mgmodel.SetRule{Label: r.Set}
	case len(r.AllOf) > 0:
		rules := make([]mgmodel.RoutingLabelRule, 0, len(r.AllOf))
		for _, sub := range r.AllOf {
			rules = append(rules, sub.toRule())
		}
		return mgmodel.AllOfRule{Rules: rules}
	case len(r.AnyOf) > 0:
		rules := make([]mgmodel.RoutingLabelRule, 0, len(r.AnyOf))
		for _, sub := range r.AnyOf {
			rules = append(rules, sub.toRule())
		}
		return mgmodel.AnyOfRule{Rules: rules}
	case r.Not != nil:
		return mgmodel.NotRule{Rule: r.Not.toRule()}
	default:
		return nil
	}
}
