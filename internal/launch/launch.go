// Package launch starts the local index server with flags and environment
// derived from the deployment context it runs in.
package launch

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Mode is the deployment context the index server is started for.
type Mode string

const (
	ModePlugin          Mode = "plugin"
	ModePluginRemote    Mode = "plugin_remote"
	ModeDesktop         Mode = "desktop"
	ModeDesktopSSH      Mode = "desktop_ssh"
	ModeCloudIDE        Mode = "cloudide"
	ModePractice        Mode = "practice"
	ModeMarscodeBOE     Mode = "marscode_boe"
	ModeMarscodeBOEI18N Mode = "marscode_boei18n"
)

// ModeEnv is the environment variable that carries the mode to the server.
const ModeEnv = "CKG_DEPLOY_MODE"

// Env looks up an environment variable. os.LookupEnv satisfies it.
type Env func(key string) (string, bool)

// MapEnv adapts a map to Env.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func (e Env) get(key string) string {
	if e == nil {
		return ""
	}
	v, _ := e(key)
	return strings.TrimSpace(v)
}

func (e Env) has(key string) bool {
	return e.get(key) != ""
}

// Options are the index server flags.
type Options struct {
	Binary               string
	Port                 int
	IDEVersion           string
	StoragePath          string
	LocalEmbedding       bool
	EmbeddingStorageType string
	AppID                string
	LimitCPU             int
	SourceProduct        string
	IDEType              string
}

var cloudMarkers = []string{"ICUBE_CLOUD_IDE", "ICUBE_CLOUDIDE", "ICUBE_CLOUD_ENV"}

var remoteMarkers = []string{"REMOTE_CONTAINERS", "SSH_CONNECTION", "CODESPACES"}

// DetectMode picks the deployment mode. The first matching rule wins.
func DetectMode(env Env) Mode {
	switch strings.ToLower(env.get("MARSCODE_DEV_MODE")) {
	case "boe":
		return ModeMarscodeBOE
	case "boei18n":
		return ModeMarscodeBOEI18N
	}

	switch strings.ToLower(env.get("AI_NATIVE_ENV")) {
	case "practice":
		return ModePractice
	case "cloudide":
		return ModeCloudIDE
	}
	for _, k := range cloudMarkers {
		if env.has(k) {
			return ModeCloudIDE
		}
	}

	if resolve := env.get("TRAE_RESOLVE_TYPE"); resolve != "" {
		if strings.EqualFold(resolve, "ssh") {
			return ModeDesktopSSH
		}
		return ModeDesktop
	}
	if env.has("ICUBE_DESKTOP") {
		return ModeDesktop
	}

	if env.has("PLUGIN_IDE_TYPE") {
		for _, k := range remoteMarkers {
			if env.has(k) {
				return ModePluginRemote
			}
		}
	}
	return ModePlugin
}

// ResolveOptions applies environment overrides on top of defaults.
// Malformed numeric overrides are ignored.
func ResolveOptions(env Env, defaults Options) Options {
	opts := defaults
	if v := env.get("PORT0"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			opts.Port = port
		}
	}
	if v := env.get("CKG_APP_ID"); v != "" {
		opts.AppID = v
	}
	if v := env.get("CKG_SOURCE_PRODUCT"); v != "" {
		opts.SourceProduct = v
	}
	if v := env.get("PLUGIN_IDE_TYPE"); v != "" {
		opts.IDEType = v
	}
	if v := env.get("ICUBE_STORAGE_PATH"); v != "" {
		opts.StoragePath = v
	}
	return opts
}

// Args returns the server flags in a fixed order. Empty string flags are
// left out; --ideType only appears when set.
func Args(opts Options) []string {
	var args []string
	add := func(flag, value string) {
		if value != "" {
			args = append(args, flag, value)
		}
	}
	if opts.Port > 0 {
		add("-port", strconv.Itoa(opts.Port))
	}
	add("-ide_version", opts.IDEVersion)
	add("-storage_path", opts.StoragePath)
	add("-local_embedding", strconv.FormatBool(opts.LocalEmbedding))
	add("-embedding_storage_type", opts.EmbeddingStorageType)
	add("-app_id", opts.AppID)
	if opts.LimitCPU > 0 {
		add("-limit_cpu", strconv.Itoa(opts.LimitCPU))
	}
	add("-source_product", opts.SourceProduct)
	add("--ideType", opts.IDEType)
	return args
}

// Command builds the server process. The mode travels in CKG_DEPLOY_MODE on
// top of the current environment.
func Command(ctx context.Context, mode Mode, opts Options) *exec.Cmd {
	cmd := exec.CommandContext(ctx, opts.Binary, Args(opts)...)
	cmd.Env = append(os.Environ(), ModeEnv+"="+string(mode))
	return cmd
}
