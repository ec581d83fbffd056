package launch

import (
	"context"
	"slices"
	"strings"
	"testing"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Mode
	}{
		{"empty", nil, ModePlugin},
		{"marscode boe", map[string]string{"MARSCODE_DEV_MODE": "boe", "AI_NATIVE_ENV": "practice"}, ModeMarscodeBOE},
		{"marscode boei18n", map[string]string{"MARSCODE_DEV_MODE": "BOEI18N"}, ModeMarscodeBOEI18N},
		{"unknown marscode mode falls through", map[string]string{"MARSCODE_DEV_MODE": "prod"}, ModePlugin},
		{"practice", map[string]string{"AI_NATIVE_ENV": "practice", "TRAE_RESOLVE_TYPE": "ssh"}, ModePractice},
		{"cloudide env", map[string]string{"AI_NATIVE_ENV": "cloudide"}, ModeCloudIDE},
		{"cloudide marker", map[string]string{"ICUBE_CLOUD_IDE": "1", "TRAE_RESOLVE_TYPE": "local"}, ModeCloudIDE},
		{"desktop ssh", map[string]string{"TRAE_RESOLVE_TYPE": "ssh"}, ModeDesktopSSH},
		{"desktop resolve", map[string]string{"TRAE_RESOLVE_TYPE": "local"}, ModeDesktop},
		{"desktop marker", map[string]string{"ICUBE_DESKTOP": "1", "PLUGIN_IDE_TYPE": "vscode"}, ModeDesktop},
		{"plugin remote", map[string]string{"PLUGIN_IDE_TYPE": "vscode", "SSH_CONNECTION": "10.0.0.1 22"}, ModePluginRemote},
		{"plugin without remote", map[string]string{"PLUGIN_IDE_TYPE": "jetbrains"}, ModePlugin},
		{"remote without plugin", map[string]string{"REMOTE_CONTAINERS": "true"}, ModePlugin},
		{"blank values ignored", map[string]string{"TRAE_RESOLVE_TYPE": "  "}, ModePlugin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMode(MapEnv(tt.env)); got != tt.want {
				t.Errorf("DetectMode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectModeNilEnv(t *testing.T) {
	if got := DetectMode(nil); got != ModePlugin {
		t.Errorf("DetectMode(nil) = %q, want plugin", got)
	}
}

func TestResolveOptions(t *testing.T) {
	defaults := Options{Binary: "ckg_server", Port: 50051, AppID: "default-app", StoragePath: "/data", LimitCPU: 1}

	got := ResolveOptions(MapEnv(map[string]string{
		"PORT0":              "6000",
		"CKG_APP_ID":         "app-7",
		"CKG_SOURCE_PRODUCT": "ide",
		"PLUGIN_IDE_TYPE":    "vscode",
		"ICUBE_STORAGE_PATH": "/var/icube",
	}), defaults)
	want := Options{
		Binary: "ckg_server", Port: 6000, AppID: "app-7", SourceProduct: "ide",
		IDEType: "vscode", StoragePath: "/var/icube", LimitCPU: 1,
	}
	if got != want {
		t.Errorf("ResolveOptions() = %+v, want %+v", got, want)
	}

	if got := ResolveOptions(MapEnv(map[string]string{"PORT0": "abc"}), defaults); got != defaults {
		t.Errorf("ResolveOptions() with bad port = %+v, want defaults", got)
	}
}

func TestArgs(t *testing.T) {
	opts := Options{
		Port: 50051, IDEVersion: "1.2.3", StoragePath: "/data", LocalEmbedding: true,
		EmbeddingStorageType: "sqlite", AppID: "app", LimitCPU: 2, SourceProduct: "ide",
	}
	want := []string{
		"-port", "50051",
		"-ide_version", "1.2.3",
		"-storage_path", "/data",
		"-local_embedding", "true",
		"-embedding_storage_type", "sqlite",
		"-app_id", "app",
		"-limit_cpu", "2",
		"-source_product", "ide",
	}
	if got := Args(opts); !slices.Equal(got, want) {
		t.Errorf("Args() = %q, want %q", got, want)
	}

	opts.IDEType = "vscode"
	got := Args(opts)
	if n := len(got); n < 2 || got[n-2] != "--ideType" || got[n-1] != "vscode" {
		t.Errorf("Args() = %q, want trailing --ideType vscode", got)
	}
	if !slices.Equal(Args(opts), got) {
		t.Error("Args() is not deterministic")
	}
}

func TestArgsOmitsUnset(t *testing.T) {
	got := Args(Options{})
	want := []string{"-local_embedding", "false"}
	if !slices.Equal(got, want) {
		t.Errorf("Args(zero) = %q, want %q", got, want)
	}
}

func TestCommand(t *testing.T) {
	cmd := Command(context.Background(), ModeDesktop, Options{Binary: "/opt/ckg/ckg_server", Port: 7000})
	if cmd.Path != "/opt/ckg/ckg_server" {
		t.Errorf("Path = %q", cmd.Path)
	}
	if !slices.Contains(cmd.Args, "7000") {
		t.Errorf("Args = %q, want port", cmd.Args)
	}
	var mode string
	for _, kv := range cmd.Env {
		if v, ok := strings.CutPrefix(kv, ModeEnv+"="); ok {
			mode = v
		}
	}
	if mode != "desktop" {
		t.Errorf("%s = %q, want desktop", ModeEnv, mode)
	}
}
