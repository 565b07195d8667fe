package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/nerrad567/fleet-runner/internal/device"
	"github.com/nerrad567/fleet-runner/internal/process"
	"github.com/nerrad567/fleet-runner/internal/suite"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

type fakeRunner struct {
	cmds []process.Command
	fail map[string]error
}

func (f *fakeRunner) Run(_ context.Context, cmd process.Command, _ process.LineFunc) (process.Result, error) {
	f.cmds = append(f.cmds, cmd)
	if err := f.fail[cmd.Name]; err != nil {
		return process.Result{ExitCode: -1}, err
	}
	return process.Result{ExitCode: 0}, nil
}

func testDevices() []device.Device {
	return []device.Device{
		{UDID: "emulator-5554", Name: "Pixel 7", Port: 4723, BootstrapPort: 4724},
		{UDID: "R58M", Port: 4725, BootstrapPort: 4726},
	}
}

func testSuites() []suite.Suite {
	return []suite.Suite{suite.New("Login_Flow.robot"), suite.New("Smoke.robot")}
}

func newTestRun(t *testing.T, ci bool) workspace.RunContext {
	t.Helper()
	rc, err := workspace.New(workspace.Options{TestsDir: t.TempDir(), Label: "Nightly", CI: ci, RunID: "r"})
	if err != nil {
		t.Fatal(err)
	}
	if err := rc.Prepare(); err != nil {
		t.Fatal(err)
	}
	return rc
}

func TestDeviceArgs(t *testing.T) {
	got := DeviceArgs(testDevices()[0], 0, testSuites())
	want := []string{
		"--name", "Pixel 7",
		"-o", "output.emulator-5554.xml",
		"--log", "NONE",
		"--report", "NONE",
		"output0.Login_Flow.xml",
		"output0.Smoke.xml",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeviceArgs() =\n%v\nwant\n%v", got, want)
	}

	got = DeviceArgs(testDevices()[1], 1, testSuites()[:1])
	if got[1] != "R58M" {
		t.Errorf("unnamed device report name = %q, want UDID", got[1])
	}
	if got[len(got)-1] != "output1.Login_Flow.xml" {
		t.Errorf("input = %q", got[len(got)-1])
	}
}

func TestGlobalArgs(t *testing.T) {
	got := GlobalArgs("Nightly", testDevices())
	want := []string{
		"--name", "Nightly",
		"-o", "output-final.xml",
		"--report", "report.html",
		"--log", "log.html",
		"output.emulator-5554.xml",
		"output.R58M.xml",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GlobalArgs() =\n%v\nwant\n%v", got, want)
	}
}

func TestMerger_Merge(t *testing.T) {
	rc := newTestRun(t, false)
	runner := &fakeRunner{}
	m := NewMerger(rc, "rebot", "localhost", runner)

	res := m.Merge(context.Background(), testDevices(), testSuites())

	if len(runner.cmds) != 3 {
		t.Fatalf("merger invoked %d times, want 3", len(runner.cmds))
	}
	for _, cmd := range runner.cmds {
		if cmd.Binary != "rebot" || cmd.WorkDir != rc.StagingDir {
			t.Errorf("command %s: binary %q dir %q", cmd.Name, cmd.Binary, cmd.WorkDir)
		}
	}

	// Exactly one per-device input for the global merge.
	global := runner.cmds[2].Args
	inputs := global[len(global)-2:]
	if !reflect.DeepEqual(inputs, []string{"output.emulator-5554.xml", "output.R58M.xml"}) {
		t.Errorf("global inputs = %v", inputs)
	}

	if len(res.Devices) != 2 {
		t.Fatalf("device steps = %d, want 2", len(res.Devices))
	}
	if got, want := res.Devices[1].Output, filepath.Join(rc.StagingDir, "output.R58M.xml"); got != want {
		t.Errorf("device output = %q, want %q", got, want)
	}
	if res.Global.Output != filepath.Join(rc.StagingDir, "output-final.xml") {
		t.Errorf("global output = %q", res.Global.Output)
	}
}

func TestMerger_FailureContinues(t *testing.T) {
	rc := newTestRun(t, false)
	runner := &fakeRunner{fail: map[string]error{
		"merger emulator-5554": process.ErrLaunch,
	}}
	m := NewMerger(rc, "rebot", "localhost", runner)

	res := m.Merge(context.Background(), testDevices(), testSuites())

	if !errors.Is(res.Devices[0].Err, process.ErrLaunch) {
		t.Errorf("device 0 error = %v, want ErrLaunch", res.Devices[0].Err)
	}
	if res.Devices[1].Err != nil || res.Global.Err != nil {
		t.Error("later steps should still run")
	}
	if len(runner.cmds) != 3 {
		t.Errorf("merger invoked %d times, want 3", len(runner.cmds))
	}
}

func seedPresentation(t *testing.T, rc workspace.RunContext, images ...string) {
	t.Helper()
	for _, name := range []string{workspace.LogName, workspace.ReportName, workspace.FinalResultName} {
		if err := os.WriteFile(filepath.Join(rc.StagingDir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, img := range images {
		if err := os.WriteFile(filepath.Join(rc.ImageDir, img), []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestFinalize_Standalone(t *testing.T) {
	rc := newTestRun(t, false)
	seedPresentation(t, rc,
		"0-Login Flow-appium-screenshot-0.png",
		"1-Login Flow-appium-screenshot-0.png",
		"notes.txt",
	)

	fin := Finalize(rc, nil)
	if len(fin.Errors) != 0 {
		t.Fatalf("Finalize() errors = %v", fin.Errors)
	}

	wantFinal := []string{
		"0-Login Flow-appium-screenshot-0.png",
		"1-Login Flow-appium-screenshot-0.png",
		"log.html",
		"report.html",
	}
	if got := dirNames(t, rc.FinalDir); !reflect.DeepEqual(got, wantFinal) {
		t.Errorf("final dir = %v, want %v", got, wantFinal)
	}
	if got := dirNames(t, rc.ImageDir); !reflect.DeepEqual(got, []string{"notes.txt"}) {
		t.Errorf("image dir = %v, want only notes.txt", got)
	}
	if got := dirNames(t, rc.StagingDir); !reflect.DeepEqual(got, []string{"output-final.xml"}) {
		t.Errorf("staging dir = %v, want only the unified result", got)
	}
}

func TestFinalize_CI(t *testing.T) {
	rc := newTestRun(t, true)
	seedPresentation(t, rc, "0-Smoke-appium-screenshot-0.png")

	beforeStaging := dirNames(t, rc.StagingDir)
	beforeImages := dirNames(t, rc.ImageDir)

	fin := Finalize(rc, nil)
	if len(fin.Moved) != 0 || len(fin.Errors) != 0 {
		t.Errorf("Finalize() = %+v, want no-op", fin)
	}
	if got := dirNames(t, rc.StagingDir); !reflect.DeepEqual(got, beforeStaging) {
		t.Errorf("staging changed: %v -> %v", beforeStaging, got)
	}
	if got := dirNames(t, rc.ImageDir); !reflect.DeepEqual(got, beforeImages) {
		t.Errorf("images changed: %v -> %v", beforeImages, got)
	}
	if _, err := os.Stat(rc.FinalDir); !os.IsNotExist(err) {
		t.Error("final directory created in CI mode")
	}
}

func TestFinalize_PartialFailureContinues(t *testing.T) {
	rc := newTestRun(t, false)
	// No log.html: only the report and the screenshot exist.
	if err := os.WriteFile(filepath.Join(rc.StagingDir, workspace.ReportName), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rc.ImageDir, "0-Smoke-appium-screenshot-1.png"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	fin := Finalize(rc, nil)

	if len(fin.Errors) != 1 || !errors.Is(fin.Errors[0], ErrRelocate) {
		t.Errorf("Errors = %v, want one ErrRelocate", fin.Errors)
	}
	if len(fin.Moved) != 2 {
		t.Errorf("Moved = %v, want report and screenshot", fin.Moved)
	}
}
