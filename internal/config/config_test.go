package config

import (
	"os"
	"runtime"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.BaseDir != "/data/media" {
		t.Errorf("BaseDir = %q, want default", c.BaseDir)
	}
	if c.LeaderPath != "/data/media/locks/kv-leader.info" {
		t.Errorf("LeaderPath = %q, want derived from BaseDir", c.LeaderPath)
	}
	if c.ValidateWorkers != 2*runtime.NumCPU() {
		t.Errorf("ValidateWorkers = %d, want %d", c.ValidateWorkers, 2*runtime.NumCPU())
	}
	if c.LightWorkers != runtime.NumCPU() {
		t.Errorf("LightWorkers = %d, want %d", c.LightWorkers, runtime.NumCPU())
	}
	if c.BackgroundWorkers < 1 {
		t.Errorf("BackgroundWorkers = %d, want >= 1", c.BackgroundWorkers)
	}
	if c.BackoffMaxMult != 6 {
		t.Errorf("BackoffMaxMult = %d, want 6", c.BackoffMaxMult)
	}
	if len(c.SidecarFormats) != 2 || c.SidecarFormats[0] != "meta" || c.SidecarFormats[1] != "nfo" {
		t.Errorf("SidecarFormats = %v, want [meta nfo]", c.SidecarFormats)
	}
}

func TestLoad_leaderPathExplicit(t *testing.T) {
	os.Clearenv()
	os.Setenv("MEDIACAT_BASE_DIR", "/srv/cat")
	os.Setenv("MEDIACAT_LEADER_PATH", "/etc/mediacat/leader.info")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.LeaderPath != "/etc/mediacat/leader.info" {
		t.Errorf("LeaderPath = %q, want explicit override", c.LeaderPath)
	}
}

func TestLoad_leaderPathDerivedTrimsTrailingSlash(t *testing.T) {
	os.Clearenv()
	os.Setenv("MEDIACAT_BASE_DIR", "/srv/cat/")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := "/srv/cat/locks/kv-leader.info"
	if c.LeaderPath != want {
		t.Errorf("LeaderPath = %q, want %q", c.LeaderPath, want)
	}
}

func TestLoad_workerCountsFromEnv(t *testing.T) {
	os.Clearenv()
	os.Setenv("MEDIACAT_VALIDATE_WORKERS", "4")
	os.Setenv("MEDIACAT_LIGHT_WORKERS", "3")
	os.Setenv("MEDIACAT_BACKGROUND_WORKERS", "1")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.ValidateWorkers != 4 || c.LightWorkers != 3 || c.BackgroundWorkers != 1 {
		t.Errorf("worker counts = %d/%d/%d, want 4/3/1", c.ValidateWorkers, c.LightWorkers, c.BackgroundWorkers)
	}
}

func TestLoad_durationsAndRates(t *testing.T) {
	os.Clearenv()
	os.Setenv("MEDIACAT_PENDING_IDLE", "45s")
	os.Setenv("MEDIACAT_BACKOFF_BASE", "2s")
	os.Setenv("MEDIACAT_ENQUEUE_RATE_LIMIT", "12.5")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.PendingIdle != 45*time.Second {
		t.Errorf("PendingIdle = %v, want 45s", c.PendingIdle)
	}
	if c.BackoffBase != 2*time.Second {
		t.Errorf("BackoffBase = %v, want 2s", c.BackoffBase)
	}
	if c.EnqueueRateLimit != 12.5 {
		t.Errorf("EnqueueRateLimit = %v, want 12.5", c.EnqueueRateLimit)
	}
}

func TestLoad_sidecarFormatsFromEnv(t *testing.T) {
	os.Clearenv()
	os.Setenv("MEDIACAT_SIDECAR_FORMATS", " meta ,nfo, , meta")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"meta", "nfo", "meta"}
	if len(c.SidecarFormats) != len(want) {
		t.Fatalf("SidecarFormats = %v, want %v", c.SidecarFormats, want)
	}
	for i := range want {
		if c.SidecarFormats[i] != want[i] {
			t.Errorf("SidecarFormats[%d] = %q, want %q", i, c.SidecarFormats[i], want[i])
		}
	}
}

func TestLoad_fuseDisabledByDefault(t *testing.T) {
	os.Clearenv()
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.FuseMountPoint != "" {
		t.Errorf("FuseMountPoint = %q, want empty by default", c.FuseMountPoint)
	}
}

func TestValidate_rejectsEmptyBaseDir(t *testing.T) {
	c := &Config{ValidateWorkers: 1, LightWorkers: 1, BackgroundWorkers: 1, BackoffBase: time.Second, PendingIdle: time.Second}
	if err := c.Validate(); err == nil {
		t.Error("Validate() with empty BaseDir = nil, want error")
	}
}

func TestValidate_rejectsNonPositiveWorkers(t *testing.T) {
	c := &Config{BaseDir: "/x", ValidateWorkers: 0, LightWorkers: 1, BackgroundWorkers: 1, BackoffBase: time.Second, PendingIdle: time.Second}
	if err := c.Validate(); err == nil {
		t.Error("Validate() with zero ValidateWorkers = nil, want error")
	}
}

func TestValidate_rejectsNonPositiveBackoffBase(t *testing.T) {
	c := &Config{BaseDir: "/x", ValidateWorkers: 1, LightWorkers: 1, BackgroundWorkers: 1, BackoffBase: 0, PendingIdle: time.Second}
	if err := c.Validate(); err == nil {
		t.Error("Validate() with zero BackoffBase = nil, want error")
	}
}

func TestValidate_ok(t *testing.T) {
	c := &Config{BaseDir: "/x", ValidateWorkers: 1, LightWorkers: 1, BackgroundWorkers: 1, BackoffBase: time.Second, PendingIdle: time.Second}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
