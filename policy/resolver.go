// Package policy selects a container image for a (tag, arch, task_type)
// triple by consulting a TTL-cached hub-provided rule list, falling
// back to the config default.
package policy

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/koji-project/adjutant/config"
	"github.com/koji-project/adjutant/hub"
)

// RuleType is the tagged-variant discriminator for a PolicyRule.
type RuleType string

const (
	RuleTagArch  RuleType = "tag_arch"
	RuleTag      RuleType = "tag"
	RuleTaskType RuleType = "task_type"
	RuleDefault  RuleType = "default"
)

// Rule is one entry of a Policy's rule list.
type Rule struct {
	Type     RuleType `json:"type"`
	Tag      string   `json:"tag,omitempty"`
	Arch     string   `json:"arch,omitempty"`
	TaskType string   `json:"task_type,omitempty"`
	Image    string   `json:"image,omitempty"`
}

// Policy is an ordered rule list, evaluated in precedence order
// tag_arch > tag > task_type > default, first match wins within a
// class.
type Policy struct {
	Rules []Rule `json:"rules"`
}

// cachedPolicy tracks insertion time and validity (now - inserted < ttl).
type cachedPolicy struct {
	policy   Policy
	cachedAt time.Time
	ttl      time.Duration
}

func (c cachedPolicy) valid() bool {
	return time.Since(c.cachedAt) < c.ttl
}

type cacheKey struct {
	tag  string
	arch string
}

// Resolver resolves images from hub policy with a TTL cache, falling
// back to config.TaskImageDefault().
type Resolver struct {
	session hub.Session

	mu  sync.Mutex
	ttl time.Duration
	// enabled is latched at construction time; later config changes do
	// not retroactively change a live Resolver.
	enabled bool
	cache   map[cacheKey]cachedPolicy
}

// NewResolver builds a Resolver bound to a hub session.
func NewResolver(session hub.Session) *Resolver {
	return &Resolver{
		session: session,
		ttl:     time.Duration(config.PolicyCacheTTL()) * time.Second,
		enabled: config.PolicyEnabled(),
		cache:   map[cacheKey]cachedPolicy{},
	}
}

// ResolveImage resolves the image for a (tag, arch, task_type) triple,
// consulting the cache first and falling back to a fresh hub lookup.
func (r *Resolver) ResolveImage(ctx context.Context, tagName, arch, taskType string, eventID *int) string {
	key := cacheKey{tag: tagName, arch: arch}

	r.mu.Lock()
	cached, ok := r.cache[key]
	if ok && !cached.valid() {
		delete(r.cache, key)
		ok = false
	}
	r.mu.Unlock()

	if ok {
		if image := evaluate(cached.policy, tagName, arch, taskType); image != "" {
			return image
		}
		return config.TaskImageDefault()
	}

	if !r.enabled {
		return config.TaskImageDefault()
	}

	p, err := r.fetchPolicy(ctx, tagName, eventID)
	if err != nil || p == nil {
		return config.TaskImageDefault()
	}

	r.mu.Lock()
	r.cache[key] = cachedPolicy{policy: *p, cachedAt: time.Now(), ttl: r.ttl}
	r.mu.Unlock()

	if image := evaluate(*p, tagName, arch, taskType); image != "" {
		return image
	}
	return config.TaskImageDefault()
}

// fetchPolicy reads the `extra.adjutant_image_policy` field from the
// tag, falling back to the build config. A failed hub call returns
// (nil, err) so the caller does not cache it — the next task retries.
func (r *Resolver) fetchPolicy(ctx context.Context, tagName string, eventID *int) (*Policy, error) {
	tag, err := r.session.GetTag(ctx, tagName, eventID, false)
	if err != nil {
		logrus.WithError(err).WithField("tag", tagName).Warn("hub getTag failed")
		return nil, err
	}
	if tag != nil {
		if raw, ok := tag.Extra["adjutant_image_policy"]; ok {
			if p := extractPolicy(raw); p != nil {
				return p, nil
			}
		}
	}

	bc, err := r.session.GetBuildConfig(ctx, tagName, eventID)
	if err != nil {
		logrus.WithError(err).WithField("tag", tagName).Warn("hub getBuildConfig failed")
		return nil, err
	}
	if bc != nil {
		if raw, ok := bc.Extra["adjutant_image_policy"]; ok {
			if p := extractPolicy(raw); p != nil {
				return p, nil
			}
		}
	}
	return nil, nil
}

// extractPolicy normalizes a policy value that may be a JSON string, a
// bare rules dict, or a dict wrapped as {"adjutant_image_policy": {...}}.
func extractPolicy(raw any) *Policy {
	var m map[string]any

	switch v := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			logrus.WithError(err).Error("invalid JSON in policy")
			return nil
		}
	case map[string]any:
		m = v
	default:
		logrus.Errorf("policy must be a dict or JSON string, got %T", raw)
		return nil
	}

	if wrapped, ok := m["adjutant_image_policy"]; ok {
		if wm, ok := wrapped.(map[string]any); ok {
			m = wm
		}
	}

	rulesRaw, ok := m["rules"]
	if !ok {
		logrus.Error("policy missing 'rules' key")
		return nil
	}

	// Round-trip through JSON to decode into typed Rule structs
	// regardless of whether rulesRaw came from json.Unmarshal
	// ([]any of map[string]any) or was handed to us pre-typed.
	data, err := json.Marshal(rulesRaw)
	if err != nil {
		logrus.WithError(err).Error("failed to re-marshal policy rules")
		return nil
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		logrus.WithError(err).Error("policy rules must be a list of rule objects")
		return nil
	}
	return &Policy{Rules: rules}
}

// evaluate scans rules in list order, returning the highest-precedence
// match. Ties within a precedence class resolve to the first listed.
func evaluate(p Policy, tagName, arch, taskType string) string {
	var tagArchImg, tagImg, taskTypeImg, defaultImg string

	for _, rule := range p.Rules {
		switch rule.Type {
		case RuleTagArch:
			if tagArchImg == "" && rule.Tag == tagName && rule.Arch == arch && rule.Image != "" {
				tagArchImg = rule.Image
			}
		case RuleTag:
			if tagImg == "" && rule.Tag == tagName && rule.Image != "" {
				tagImg = rule.Image
			}
		case RuleTaskType:
			if taskTypeImg == "" && rule.TaskType == taskType && rule.Image != "" {
				taskTypeImg = rule.Image
			}
		case RuleDefault:
			if defaultImg == "" && rule.Image != "" {
				defaultImg = rule.Image
			}
		}
	}

	switch {
	case tagArchImg != "":
		return tagArchImg
	case tagImg != "":
		return tagImg
	case taskTypeImg != "":
		return taskTypeImg
	default:
		return defaultImg
	}
}

// InvalidateCache drops cache entries. An empty tagName clears
// everything; an empty arch with a non-empty tagName clears every
// entry for that tag.
func (r *Resolver) InvalidateCache(tagName, arch string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tagName == "" {
		r.cache = map[cacheKey]cachedPolicy{}
		return
	}
	if arch == "" {
		for k := range r.cache {
			if k.tag == tagName {
				delete(r.cache, k)
			}
		}
		return
	}
	delete(r.cache, cacheKey{tag: tagName, arch: arch})
}
