package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikehamer/crazypilot/control"
	"github.com/mikehamer/crazypilot/crazyradio"
	"github.com/mikehamer/crazypilot/gamepad"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Control.Scheme != control.ReverseDave {
		t.Errorf("scheme = %s, want %s", cfg.Control.Scheme, control.ReverseDave)
	}
	if time.Duration(cfg.Discovery.ControllerPeriod) != 2*time.Second {
		t.Errorf("controller period = %v", time.Duration(cfg.Discovery.ControllerPeriod))
	}

	sigs, err := cfg.Signatures()
	if err != nil {
		t.Fatalf("Signatures: %v", err)
	}
	if len(sigs) != 1 || sigs[0] != (gamepad.Signature{Vendor: 6421, Product: 30583}) {
		t.Errorf("signatures = %v", sigs)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[log]
level = "debug"

[radio]
index = 1
datarates = ["2M"]
power = "-6dBm"

[discovery]
copter_delay = "250ms"
signatures = ["1915:7777", "045e:028e"]

[control]
scheme = "two-stick"

[pairing]
repark_survivor = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Control.Scheme != control.TwoStick {
		t.Errorf("scheme = %s", cfg.Control.Scheme)
	}
	if !cfg.Pairing.ReparkSurvivor {
		t.Error("repark_survivor not read")
	}
	if time.Duration(cfg.Discovery.CopterDelay) != 250*time.Millisecond {
		t.Errorf("copter delay = %v", time.Duration(cfg.Discovery.CopterDelay))
	}
	if cfg.Server.Listen != "localhost:8080" {
		t.Errorf("untouched section lost its default: %q", cfg.Server.Listen)
	}

	options, err := cfg.RadioOptions(nil)
	if err != nil {
		t.Fatalf("RadioOptions: %v", err)
	}
	if options.Index != 1 || len(options.ScanDatarates) != 1 || options.ScanDatarates[0] != crazyradio.Datarate2MPS {
		t.Errorf("radio options = %+v", options)
	}
	if options.Power != crazyradio.PowerM6DBM {
		t.Errorf("power = %s", options.Power)
	}
	if options.ScanAddress != crazyradio.DefaultAddress {
		t.Errorf("scan address = %X", options.ScanAddress)
	}

	sigs, _ := cfg.Signatures()
	if len(sigs) != 2 || sigs[1] != (gamepad.Signature{Vendor: 0x045e, Product: 0x028e}) {
		t.Errorf("signatures = %v", sigs)
	}
}

func TestLoad_Rejects(t *testing.T) {
	for name, contents := range map[string]string{
		"unsupported scheme": "[control]\nscheme = \"three\"\n",
		"unknown scheme":     "[control]\nscheme = \"loop-the-loop\"\n",
		"bad datarate":       "[radio]\ndatarates = [\"3M\"]\n",
		"bad signature":      "[discovery]\nsignatures = [\"xbox\"]\n",
		"bad duration":       "[discovery]\ncopter_delay = \"soon\"\n",
		"bad level":          "[log]\nlevel = \"loud\"\n",
		"unknown key":        "[radio]\nantenna = 3\n",
		"bad power":          "[radio]\npower = \"loud\"\n",
	} {
		path := filepath.Join(t.TempDir(), "config.toml")
		writeFile(t, path, contents)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Control.Scheme = control.Dave
	cfg.Discovery.CopterDelay = Duration(5 * time.Second)

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Control.Scheme != control.Dave || loaded.Discovery.CopterDelay != cfg.Discovery.CopterDelay {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[control]\nscheme = \"dave\"\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 10 * time.Millisecond
	defer w.Stop()

	reloaded := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { reloaded <- cfg })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	writeFile(t, path, "[control]\nscheme = \"one-stick\"\n")

	select {
	case cfg := <-reloaded:
		if cfg.Control.Scheme != control.OneStick {
			t.Errorf("reloaded scheme = %s", cfg.Control.Scheme)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload")
	}
}

func TestWatcher_InvalidFileKeepsHandlersQuiet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 10 * time.Millisecond
	defer w.Stop()

	reloaded := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { reloaded <- cfg })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	writeFile(t, path, "[control]\nscheme = \"three\"\n")

	select {
	case <-reloaded:
		t.Error("handler called with an invalid config")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_EveryHandlerSeesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 10 * time.Millisecond
	defer w.Stop()

	first := make(chan *Config, 4)
	second := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { first <- cfg })
	w.OnChange(func(cfg *Config) { second <- cfg })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	writeFile(t, path, "[pairing]\nrepark_survivor = true\n")

	for name, ch := range map[string]chan *Config{"first": first, "second": second} {
		select {
		case cfg := <-ch:
			if !cfg.Pairing.ReparkSurvivor {
				t.Errorf("%s handler saw repark_survivor = false", name)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s handler not called", name)
		}
	}
}
