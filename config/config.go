// Package config resolves the worker's configuration from a priority
// chain: process environment variable (highest) → an injected options
// struct → a YAML config file → a built-in default (lowest).
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const envPrefix = "KOJI_ADJUTANT_"

// Timeouts holds the container lifecycle timeouts, in seconds as read
// from config.
type Timeouts struct {
	Pull      int `yaml:"pull"`
	Start     int `yaml:"start"`
	StopGrace int `yaml:"stop_grace"`
}

// Options is the injected-options-object layer of the priority chain.
// A caller (e.g. the worker's main) may construct one and call
// Initialize to install it once at startup.
type Options struct {
	TaskImageDefault              string
	ImagePullPolicy               string
	ContainerMounts               []string
	NetworkEnabled                *bool
	ContainerLabels               map[string]string
	ContainerTimeouts             *Timeouts
	PolicyEnabled                 *bool
	PolicyCacheTTL                *int
	BuildrootEnabled              *bool
	MonitoringEnabled             *bool
	MonitoringBind                string
	MonitoringContainerHistoryTTL *int
	MonitoringTaskHistoryTTL      *int
	PodmanSocket                  string
	HostMountMap                  map[string]string
	WorkerCapacity                *int
}

// fileConfig mirrors the on-disk YAML shape.
type fileConfig struct {
	TaskImageDefault              string            `yaml:"task_image_default"`
	ImagePullPolicy               string            `yaml:"image_pull_policy"`
	ContainerMounts               []string          `yaml:"container_mounts"`
	NetworkEnabled                *bool             `yaml:"network_enabled"`
	ContainerLabels               map[string]string `yaml:"container_labels"`
	ContainerTimeouts             *Timeouts         `yaml:"container_timeouts"`
	PolicyEnabled                 *bool             `yaml:"policy_enabled"`
	PolicyCacheTTL                *int              `yaml:"policy_cache_ttl"`
	BuildrootEnabled              *bool             `yaml:"buildroot_enabled"`
	MonitoringEnabled             *bool             `yaml:"monitoring_enabled"`
	MonitoringBind                string            `yaml:"monitoring_bind"`
	MonitoringContainerHistoryTTL *int              `yaml:"monitoring_container_history_ttl"`
	MonitoringTaskHistoryTTL      *int              `yaml:"monitoring_task_history_ttl"`
	PodmanSocket                  string            `yaml:"podman_socket"`
	HostMountMap                  map[string]string `yaml:"host_mount_map"`
	WorkerCapacity                *int              `yaml:"worker_capacity"`
}

var (
	mu         sync.RWMutex
	options    *Options
	fileConfV  *fileConfig
	initedFile bool
)

// Initialize installs the injected options object. It is a one-shot
// call expected at worker startup; later calls replace the prior one
// (useful for tests).
func Initialize(opts *Options) {
	mu.Lock()
	defer mu.Unlock()
	options = opts
}

// LoadFile parses a YAML config file into the file layer. Missing
// files are not an error — the chain simply falls through to
// built-in defaults.
func LoadFile(path string) error {
	mu.Lock()
	defer mu.Unlock()
	initedFile = true
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fileConfV = nil
			return nil
		}
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}
	fileConfV = &fc
	return nil
}

// Reset clears every layer below "built-in default". Intended for
// tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	options = nil
	fileConfV = nil
	initedFile = false
}

func envLookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + strings.ToUpper(key))
	return v, ok
}

func parseBool(s string) bool {
	switch strings.TrimSpace(s) {
	case "true", "True", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func parseMounts(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			out = append(out, strings.TrimSpace(f))
		}
	}
	return out
}

func parseLabels(s string) map[string]string {
	out := map[string]string{}
	for _, item := range strings.Split(s, ",") {
		if k, v, ok := strings.Cut(item, "="); ok {
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return out
}

// TaskImageDefault — fallback image when policy yields no rule.
func TaskImageDefault() string {
	if v, ok := envLookup("task_image_default"); ok {
		return v
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.TaskImageDefault != "" {
		return options.TaskImageDefault
	}
	if fileConfV != nil && fileConfV.TaskImageDefault != "" {
		return fileConfV.TaskImageDefault
	}
	return "registry/almalinux:10"
}

// ImagePullPolicy — one of always|if-not-present|never.
func ImagePullPolicy() string {
	if v, ok := envLookup("image_pull_policy"); ok {
		return v
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.ImagePullPolicy != "" {
		return options.ImagePullPolicy
	}
	if fileConfV != nil && fileConfV.ImagePullPolicy != "" {
		return fileConfV.ImagePullPolicy
	}
	return "if-not-present"
}

// ContainerMounts — default bind mounts as "src:dst:mode:label" strings.
func ContainerMounts() []string {
	if v, ok := envLookup("container_mounts"); ok {
		return parseMounts(v)
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && len(options.ContainerMounts) > 0 {
		return options.ContainerMounts
	}
	if fileConfV != nil && len(fileConfV.ContainerMounts) > 0 {
		return fileConfV.ContainerMounts
	}
	return []string{"/mnt/koji:/mnt/koji:rw:Z"}
}

// NetworkEnabled — default true.
func NetworkEnabled() bool {
	if v, ok := envLookup("network_enabled"); ok {
		return parseBool(v)
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.NetworkEnabled != nil {
		return *options.NetworkEnabled
	}
	if fileConfV != nil && fileConfV.NetworkEnabled != nil {
		return *fileConfV.NetworkEnabled
	}
	return true
}

// ContainerLabels — base labels applied to every container.
func ContainerLabels() map[string]string {
	if v, ok := envLookup("container_labels"); ok {
		return parseLabels(v)
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && len(options.ContainerLabels) > 0 {
		return options.ContainerLabels
	}
	if fileConfV != nil && len(fileConfV.ContainerLabels) > 0 {
		return fileConfV.ContainerLabels
	}
	return map[string]string{}
}

// ContainerTimeouts — pull/start/stop_grace in seconds. Resolved from
// the options struct, then the file, then the default; no environment
// variable is consulted for this option.
func ContainerTimeouts() Timeouts {
	def := Timeouts{Pull: 300, Start: 60, StopGrace: 20}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.ContainerTimeouts != nil {
		return *options.ContainerTimeouts
	}
	if fileConfV != nil && fileConfV.ContainerTimeouts != nil {
		return *fileConfV.ContainerTimeouts
	}
	return def
}

// PolicyEnabled — enable hub policy-driven image selection.
func PolicyEnabled() bool {
	if v, ok := envLookup("policy_enabled"); ok {
		return parseBool(v)
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.PolicyEnabled != nil {
		return *options.PolicyEnabled
	}
	if fileConfV != nil && fileConfV.PolicyEnabled != nil {
		return *fileConfV.PolicyEnabled
	}
	return true
}

// PolicyCacheTTL — seconds.
func PolicyCacheTTL() int {
	if v, ok := envLookup("policy_cache_ttl"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logrus.Warnf("invalid policy_cache_ttl %q, using default", v)
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.PolicyCacheTTL != nil {
		return *options.PolicyCacheTTL
	}
	if fileConfV != nil && fileConfV.PolicyCacheTTL != nil {
		return *fileConfV.PolicyCacheTTL
	}
	return 300
}

// BuildrootEnabled — enable buildroot initialization.
func BuildrootEnabled() bool {
	if v, ok := envLookup("buildroot_enabled"); ok {
		return parseBool(v)
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.BuildrootEnabled != nil {
		return *options.BuildrootEnabled
	}
	if fileConfV != nil && fileConfV.BuildrootEnabled != nil {
		return *fileConfV.BuildrootEnabled
	}
	return true
}

// MonitoringEnabled — enable the operational monitoring HTTP server.
func MonitoringEnabled() bool {
	if v, ok := envLookup("monitoring_enabled"); ok {
		return parseBool(v)
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.MonitoringEnabled != nil {
		return *options.MonitoringEnabled
	}
	if fileConfV != nil && fileConfV.MonitoringEnabled != nil {
		return *fileConfV.MonitoringEnabled
	}
	return false
}

// MonitoringBind — "host:port".
func MonitoringBind() string {
	v := monitoringBindRaw()
	if !strings.Contains(v, ":") {
		logrus.Warnf("invalid monitoring_bind %q, using default 127.0.0.1:8080", v)
		return "127.0.0.1:8080"
	}
	return v
}

func monitoringBindRaw() string {
	if v, ok := envLookup("monitoring_bind"); ok {
		return v
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.MonitoringBind != "" {
		return options.MonitoringBind
	}
	if fileConfV != nil && fileConfV.MonitoringBind != "" {
		return fileConfV.MonitoringBind
	}
	return "127.0.0.1:8080"
}

// MonitoringContainerHistoryTTL — seconds.
func MonitoringContainerHistoryTTL() int {
	return intOption("monitoring_container_history_ttl",
		func() *int {
			if options != nil {
				return options.MonitoringContainerHistoryTTL
			}
			return nil
		},
		func() *int {
			if fileConfV != nil {
				return fileConfV.MonitoringContainerHistoryTTL
			}
			return nil
		},
		3600)
}

// MonitoringTaskHistoryTTL — seconds.
func MonitoringTaskHistoryTTL() int {
	return intOption("monitoring_task_history_ttl",
		func() *int {
			if options != nil {
				return options.MonitoringTaskHistoryTTL
			}
			return nil
		},
		func() *int {
			if fileConfV != nil {
				return fileConfV.MonitoringTaskHistoryTTL
			}
			return nil
		},
		3600)
}

// WorkerCapacity — number of concurrent task slots reported by /status.
func WorkerCapacity() int {
	return intOption("worker_capacity",
		func() *int {
			if options != nil {
				return options.WorkerCapacity
			}
			return nil
		},
		func() *int {
			if fileConfV != nil {
				return fileConfV.WorkerCapacity
			}
			return nil
		},
		4)
}

func intOption(key string, fromOptions, fromFile func() *int, def int) int {
	if v, ok := envLookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logrus.Warnf("invalid %s %q, using default", key, v)
	}
	mu.RLock()
	defer mu.RUnlock()
	if p := fromOptions(); p != nil {
		return *p
	}
	if p := fromFile(); p != nil {
		return *p
	}
	return def
}

// PodmanSocket — engine socket URI.
func PodmanSocket() string {
	if v, ok := envLookup("podman_socket"); ok {
		return v
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && options.PodmanSocket != "" {
		return options.PodmanSocket
	}
	if fileConfV != nil && fileConfV.PodmanSocket != "" {
		return fileConfV.PodmanSocket
	}
	return "unix:///var/run/podman.sock"
}

// HostMountMap — container-path to host-path translations for
// nested-container operation.
func HostMountMap() map[string]string {
	if v, ok := envLookup("host_mount_map"); ok {
		out := map[string]string{}
		for _, pair := range strings.Split(v, ",") {
			if cPath, hPath, ok := strings.Cut(pair, ":"); ok {
				out[strings.TrimSpace(cPath)] = strings.TrimSpace(hPath)
			}
		}
		return out
	}
	mu.RLock()
	defer mu.RUnlock()
	if options != nil && len(options.HostMountMap) > 0 {
		return options.HostMountMap
	}
	if fileConfV != nil && len(fileConfV.HostMountMap) > 0 {
		return fileConfV.HostMountMap
	}
	return nil
}
