package discovery

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/copter"
	"github.com/mikehamer/crazypilot/crazyradio"
	"github.com/mikehamer/crazypilot/gamepad"
	"github.com/mikehamer/crazypilot/loop"
)

// scriptedFinder returns its results in order, repeating the last one.
type scriptedFinder struct {
	mu      sync.Mutex
	results [][]crazyradio.Link
	errs    []error
	calls   int
}

func (f *scriptedFinder) FindCopters(ctx context.Context) ([]crazyradio.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	if i < 0 {
		return nil, err
	}
	return f.results[i], err
}

func (f *scriptedFinder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func link(channel uint8) crazyradio.Link {
	return crazyradio.Link{Channel: channel, Datarate: crazyradio.Datarate2MPS, Address: crazyradio.DefaultAddress}
}

func newCopter(l crazyradio.Link) *copter.Copter {
	return copter.New(l, nil, hclog.NewNullLogger())
}

func runLoop(t *testing.T) (*loop.Loop, context.Context) {
	t.Helper()
	l := loop.New(hclog.NewNullLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l, ctx
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// recorder collects events on the loop goroutine.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestCopterDiscovery_Diffing(t *testing.T) {
	l, ctx := runLoop(t)

	finder := &scriptedFinder{results: [][]crazyradio.Link{
		{link(10), link(20)},
		{link(20), link(30)},
	}}
	d := NewCopterDiscovery(l, finder, newCopter, 5*time.Millisecond, nil)

	rec := &recorder{}
	d.OnDetected(func(c *copter.Copter) { rec.add("+" + c.Key()) })
	d.OnLost(func(c *copter.Copter) { rec.add("-" + c.Key()) })

	d.Start()
	eventually(t, "first cycle", func() bool { return len(rec.get()) == 2 })

	var scanning bool
	l.Do(ctx, func() { scanning = d.Scanning() })
	if scanning {
		t.Error("still scanning after detecting copters")
	}

	d.Start()
	eventually(t, "second cycle", func() bool { return len(rec.get()) == 4 })

	want := []string{
		"+" + link(10).String(),
		"+" + link(20).String(),
		"+" + link(30).String(),
		"-" + link(10).String(),
	}
	got := rec.get()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	var known []*copter.Copter
	l.Do(ctx, func() { known = d.Known() })
	if len(known) != 2 || known[0].Key() != link(20).String() || known[1].Key() != link(30).String() {
		t.Errorf("known = %v", known)
	}
}

func TestCopterDiscovery_ThrottlesWhileNothingFound(t *testing.T) {
	l, ctx := runLoop(t)

	finder := &scriptedFinder{results: [][]crazyradio.Link{nil}}
	d := NewCopterDiscovery(l, finder, newCopter, 20*time.Millisecond, nil)

	d.Start()
	d.Start()
	time.Sleep(110 * time.Millisecond)

	calls := finder.Calls()
	if calls < 2 || calls > 7 {
		t.Errorf("%d scans in 110ms with a 20ms delay", calls)
	}

	d.Stop()
	d.Stop()
	l.Do(ctx, func() {})
	time.Sleep(10 * time.Millisecond) // let an in-flight scan finish
	stopped := finder.Calls()
	time.Sleep(60 * time.Millisecond)
	if finder.Calls() != stopped {
		t.Errorf("scanned %d more times after Stop", finder.Calls()-stopped)
	}
}

func TestCopterDiscovery_SameResultIsQuiet(t *testing.T) {
	l, _ := runLoop(t)

	finder := &scriptedFinder{results: [][]crazyradio.Link{{link(10)}}}
	d := NewCopterDiscovery(l, finder, newCopter, 5*time.Millisecond, nil)

	rec := &recorder{}
	d.OnDetected(func(c *copter.Copter) { rec.add("+") })
	d.OnLost(func(c *copter.Copter) { rec.add("-") })

	d.Start()
	eventually(t, "detection", func() bool { return len(rec.get()) == 1 })
	d.Start()
	eventually(t, "second scan", func() bool { return finder.Calls() >= 3 })
	d.Stop()

	if got := rec.get(); len(got) != 1 {
		t.Errorf("events = %v, want a single detection", got)
	}
}

func TestCopterDiscovery_FailureStopsScanning(t *testing.T) {
	l, ctx := runLoop(t)

	finder := &scriptedFinder{
		results: [][]crazyradio.Link{nil, {link(10)}},
		errs:    []error{errors.New("usb unplugged")},
	}
	d := NewCopterDiscovery(l, finder, newCopter, 5*time.Millisecond, nil)

	failures := make(chan error, 4)
	d.OnError(func(err error) { failures <- err })

	d.Start()
	select {
	case err := <-failures:
		scanErr, ok := err.(*ScanError)
		if !ok || scanErr.Transport != "radio" || scanErr.Cause().Error() != "usb unplugged" {
			t.Errorf("err = %#v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no scan error reported")
	}

	time.Sleep(30 * time.Millisecond)
	if finder.Calls() != 1 {
		t.Errorf("failed scan was retried %d times", finder.Calls()-1)
	}

	var scanning bool
	l.Do(ctx, func() { scanning = d.Scanning() })
	if scanning {
		t.Error("scanning after failure")
	}

	detected := make(chan *copter.Copter, 1)
	d.OnDetected(func(c *copter.Copter) { detected <- c })
	d.Start()
	select {
	case <-detected:
	case <-time.After(time.Second):
		t.Fatal("explicit Start did not restart scanning")
	}
}

// gatedFinder blocks each scan until release is closed.
type gatedFinder struct {
	entered chan struct{}
	release chan struct{}
	links   []crazyradio.Link
}

func (f *gatedFinder) FindCopters(ctx context.Context) ([]crazyradio.Link, error) {
	f.entered <- struct{}{}
	select {
	case <-f.release:
		return f.links, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCopterDiscovery_StopKeepsRunningScan(t *testing.T) {
	l, ctx := runLoop(t)

	finder := &gatedFinder{
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
		links:   []crazyradio.Link{link(40)},
	}
	d := NewCopterDiscovery(l, finder, newCopter, time.Millisecond, nil)

	detected := make(chan *copter.Copter, 1)
	d.OnDetected(func(c *copter.Copter) { detected <- c })

	d.Start()
	select {
	case <-finder.entered:
	case <-time.After(time.Second):
		t.Fatal("scan never started")
	}

	d.Stop()
	var scanning bool
	l.Do(ctx, func() { scanning = d.Scanning() })
	if scanning {
		t.Fatal("still scanning after Stop")
	}

	close(finder.release)
	select {
	case c := <-detected:
		if c.Key() != link(40).String() {
			t.Errorf("detected %s", c.Key())
		}
	case <-time.After(time.Second):
		t.Fatal("result of the running scan was dropped")
	}

	time.Sleep(20 * time.Millisecond)
	select {
	case <-finder.entered:
		t.Error("scanned again after Stop")
	default:
	}
}

type fakeLister struct {
	mu      sync.Mutex
	devices []gamepad.Descriptor
	err     error
	calls   int
}

func (f *fakeLister) ListDevices() ([]gamepad.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]gamepad.Descriptor(nil), f.devices...), f.err
}

func (f *fakeLister) set(devices []gamepad.Descriptor, err error) {
	f.mu.Lock()
	f.devices = devices
	f.err = err
	f.mu.Unlock()
}

func (f *fakeLister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var (
	radioA = gamepad.Descriptor{Bus: 1, Address: 2, Vendor: 6421, Product: 30583}
	radioB = gamepad.Descriptor{Bus: 1, Address: 3, Vendor: 6421, Product: 30583}
	mouse  = gamepad.Descriptor{Bus: 1, Address: 4, Vendor: 0x046d, Product: 0xc077}
)

func TestControllerDiscovery_DiffingAndFilter(t *testing.T) {
	l, ctx := runLoop(t)

	lister := &fakeLister{devices: []gamepad.Descriptor{radioA, mouse}}
	d := NewControllerDiscovery(l, lister, nil, 5*time.Millisecond, nil)

	rec := &recorder{}
	d.OnDetected(func(c *gamepad.Controller) { rec.add("+" + c.Key()) })
	d.OnLost(func(c *gamepad.Controller) { rec.add("-" + c.Key()) })

	d.Start()
	d.Start()
	eventually(t, "first detection", func() bool { return len(rec.get()) == 1 })

	lister.set([]gamepad.Descriptor{radioB}, nil)
	eventually(t, "swap", func() bool { return len(rec.get()) == 3 })

	d.Stop()
	l.Do(ctx, func() {})

	want := []string{"+" + radioA.Key(), "+" + radioB.Key(), "-" + radioA.Key()}
	got := rec.get()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	stopped := lister.Calls()
	time.Sleep(30 * time.Millisecond)
	if lister.Calls() != stopped {
		t.Error("enumerated after Stop")
	}
}

func TestControllerDiscovery_ErrorKeepsTicking(t *testing.T) {
	l, _ := runLoop(t)

	lister := &fakeLister{err: errors.New("libusb busy")}
	d := NewControllerDiscovery(l, lister, nil, 5*time.Millisecond, nil)

	var errCount int
	var mu sync.Mutex
	d.OnError(func(err error) {
		mu.Lock()
		errCount++
		mu.Unlock()
	})

	detected := make(chan *gamepad.Controller, 1)
	d.OnDetected(func(c *gamepad.Controller) { detected <- c })

	d.Start()
	eventually(t, "two failures", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return errCount >= 2
	})

	lister.set([]gamepad.Descriptor{radioA}, nil)
	select {
	case c := <-detected:
		if c.Key() != radioA.Key() {
			t.Errorf("detected %s", c.Key())
		}
	case <-time.After(time.Second):
		t.Fatal("discovery stopped after errors")
	}
	d.Stop()
}

func TestControllerDiscovery_CustomSignature(t *testing.T) {
	l, _ := runLoop(t)

	pad := gamepad.Descriptor{Bus: 2, Address: 7, Vendor: 0x045e, Product: 0x028e}
	lister := &fakeLister{devices: []gamepad.Descriptor{radioA, pad}}
	d := NewControllerDiscovery(l, lister, []gamepad.Signature{{Vendor: 0x045e, Product: 0x028e}}, time.Hour, nil)

	detected := make(chan *gamepad.Controller, 2)
	d.OnDetected(func(c *gamepad.Controller) { detected <- c })
	d.Start()

	select {
	case c := <-detected:
		if c.Key() != pad.Key() {
			t.Errorf("detected %s, want %s", c.Key(), pad.Key())
		}
	case <-time.After(time.Second):
		t.Fatal("pad not detected")
	}
	d.Stop()
}

func TestControllerDiscovery_WarnsOnDefaultSignature(t *testing.T) {
	l, ctx := runLoop(t)

	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Info})

	d := NewControllerDiscovery(l, &fakeLister{}, nil, time.Hour, logger)
	d.Start()
	l.Do(ctx, func() {})
	d.Stop()
	l.Do(ctx, func() {})

	if !strings.Contains(buf.String(), "only the default signature is active") {
		t.Errorf("no warning logged, got %q", buf.String())
	}

	buf.Reset()
	custom := NewControllerDiscovery(l, &fakeLister{}, []gamepad.Signature{{Vendor: 0x045e, Product: 0x028e}}, time.Hour, logger)
	custom.Start()
	l.Do(ctx, func() {})
	custom.Stop()
	l.Do(ctx, func() {})

	if strings.Contains(buf.String(), "default signature") {
		t.Errorf("warned with a configured signature: %q", buf.String())
	}
}
