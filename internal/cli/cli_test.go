package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/fleet-runner/internal/appium"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
	"github.com/nerrad567/fleet-runner/internal/pipeline"
	"github.com/nerrad567/fleet-runner/internal/process"
	_ "github.com/nerrad567/fleet-runner/migrations" // registers the schema
)

const testConfig = `
logging:
  level: error
  output: stderr
appium:
  kill_binary: ""
  warmup: 0s
database:
  enabled: true
  path: history.db
  wal_mode: false
`

// fakeRunner stands in for pabot and rebot.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, cmd process.Command, _ process.LineFunc) (process.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd.Binary)
	f.mu.Unlock()

	switch cmd.Binary {
	case "python":
		var outputDir string
		devices := 0
		for i, arg := range cmd.Args {
			if arg == "--outputdir" {
				outputDir = cmd.Args[i+1]
			}
			if strings.HasPrefix(arg, "--argumentfile") {
				devices++
			}
		}
		results := filepath.Join(outputDir, "pabot_results")
		if err := os.MkdirAll(results, 0o755); err != nil {
			return process.Result{}, err
		}
		for x := 0; x < devices; x++ {
			path := filepath.Join(results, fmt.Sprintf("output%d.xml", x))
			if err := os.WriteFile(path, []byte("<robot><msg>ok</msg></robot>"), 0o644); err != nil {
				return process.Result{}, err
			}
		}
	case "rebot":
		for i := 0; i+1 < len(cmd.Args); i++ {
			switch cmd.Args[i] {
			case "-o", "--log", "--report":
				if name := cmd.Args[i+1]; name != "NONE" {
					if err := os.WriteFile(filepath.Join(cmd.WorkDir, name), nil, 0o644); err != nil {
						return process.Result{}, err
					}
				}
			}
		}
	}
	return process.Result{}, nil
}

type idleServer struct {
	once sync.Once
	done chan struct{}
}

func (s *idleServer) Start(context.Context) error { return nil }
func (s *idleServer) Interrupt()                  { s.once.Do(func() { close(s.done) }) }
func (s *idleServer) Stop() error                 { s.Interrupt(); return nil }
func (s *idleServer) Done() <-chan struct{}       { return s.done }
func (s *idleServer) Stats() process.Stats        { return process.Stats{} }

func idleFactory(process.Config, appium.Logger) appium.Server {
	return &idleServer{done: make(chan struct{})}
}

// testsDir creates a tests directory with suites, device records and the
// test configuration.
func testsDir(t *testing.T, suites []string, udids ...string) string {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.DefaultFileName), []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, s := range suites {
		if err := os.WriteFile(filepath.Join(dir, s), []byte("*** Test Cases ***\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	devices := filepath.Join(dir, "runner", "devices_conf")
	if err := os.MkdirAll(devices, 0o755); err != nil {
		t.Fatal(err)
	}
	for i, udid := range udids {
		record := fmt.Sprintf("--variable udid:%s\n--variable appium:%d\n--variable appiumbp:%d\n", udid, 4723+2*i, 4724+2*i)
		if err := os.WriteFile(filepath.Join(devices, fmt.Sprintf("%02d.dat", i)), []byte(record), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func execute(t *testing.T, runner process.Runner, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(Options{
		Version:       "test",
		Stdout:        &out,
		Stderr:        &out,
		Runner:        runner,
		ServerFactory: idleFactory,
	})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"usage", usageErrorf("bad"), ExitUsage},
		{"no devices", pipeline.ErrNoDevices, ExitNoDevices},
		{"wrapped no devices", fmt.Errorf("run: %w", pipeline.ErrNoDevices), ExitNoDevices},
		{"aborted", pipeline.ErrAborted, ExitFailure},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSelection_Resolve(t *testing.T) {
	dir := testsDir(t, []string{"B.robot", "A.robot", "__init__.robot"})
	file := filepath.Join(dir, "B.robot")

	tests := []struct {
		name      string
		sel       selection
		wantDir   string
		wantFiles []string
		wantUsage bool
	}{
		{name: "both", sel: selection{dir: dir, file: file}, wantUsage: true},
		{name: "neither", wantUsage: true},
		{name: "missing dir", sel: selection{dir: filepath.Join(dir, "nope")}, wantUsage: true},
		{name: "missing file", sel: selection{file: filepath.Join(dir, "nope.robot")}, wantUsage: true},
		{name: "file is a dir", sel: selection{file: dir}, wantUsage: true},
		{name: "dir", sel: selection{dir: dir}, wantDir: dir, wantFiles: []string{"A.robot", "B.robot"}},
		{name: "file", sel: selection{file: file}, wantDir: dir, wantFiles: []string{"B.robot"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotDir, suites, err := tt.sel.resolve()
			if tt.wantUsage {
				if !errors.Is(err, ErrUsage) {
					t.Errorf("resolve() error = %v, want ErrUsage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
			if gotDir != tt.wantDir {
				t.Errorf("dir = %q, want %q", gotDir, tt.wantDir)
			}
			var files []string
			for _, s := range suites {
				files = append(files, s.File)
			}
			if strings.Join(files, ",") != strings.Join(tt.wantFiles, ",") {
				t.Errorf("suites = %v, want %v", files, tt.wantFiles)
			}
		})
	}
}

func TestRunCommand_UsageErrors(t *testing.T) {
	dir := testsDir(t, []string{"A.robot"}, "emulator-5554")

	tests := []struct {
		name string
		args []string
	}{
		{"no selection", []string{"run"}},
		{"both selections", []string{"run", "-d", dir, "-f", filepath.Join(dir, "A.robot")}},
		{"unknown flag", []string{"run", "-d", dir, "--bogus"}},
		{"positional argument", []string{"run", "-d", dir, "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			_, err := execute(t, runner, tt.args...)
			if got := ExitCode(err); got != ExitUsage {
				t.Errorf("ExitCode() = %d (err %v), want %d", got, err, ExitUsage)
			}
			if len(runner.calls) != 0 {
				t.Errorf("runner called %v", runner.calls)
			}
		})
	}
}

func TestRunCommand_NoDevices(t *testing.T) {
	dir := testsDir(t, []string{"A.robot"})
	runner := &fakeRunner{}

	out, err := execute(t, runner, "run", "-d", dir, "-j")
	if got := ExitCode(err); got != ExitNoDevices {
		t.Fatalf("ExitCode() = %d (err %v), want %d", got, err, ExitNoDevices)
	}
	if len(runner.calls) != 0 {
		t.Errorf("runner called %v", runner.calls)
	}
	if !strings.Contains(out, "failed") {
		t.Errorf("summary missing failure:\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "runner", "error.log.txt"))
	if err != nil {
		t.Fatalf("error log: %v", err)
	}
	if !strings.Contains(string(data), "no usable device record") {
		t.Errorf("error log = %q", data)
	}
}

func TestRunCommand_CompletesAndRecordsHistory(t *testing.T) {
	dir := testsDir(t, []string{"Login_Flow.robot", "Checkout.robot"}, "emulator-5554", "R58M")
	runner := &fakeRunner{}

	out, err := execute(t, runner, "run", "-d", dir, "-t", "Nightly")
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}

	wantCalls := "python,python,rebot,rebot,rebot"
	if got := strings.Join(runner.calls, ","); got != wantCalls {
		t.Errorf("calls = %s, want %s", got, wantCalls)
	}

	finalLog := filepath.Join(dir, "runner", "output", "final", "log.html")
	if !strings.Contains(out, finalLog) {
		t.Errorf("summary does not point at %s:\n%s", finalLog, out)
	}
	if _, err := os.Stat(finalLog); err != nil {
		t.Errorf("final log: %v", err)
	}

	hist, err := execute(t, runner, "history", "-d", dir)
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(hist, "Nightly") || !strings.Contains(hist, string(pipeline.PhaseDone)) {
		t.Errorf("history output:\n%s", hist)
	}
}

func TestRunCommand_SingleFile(t *testing.T) {
	dir := testsDir(t, []string{"Login_Flow.robot", "Checkout.robot"}, "emulator-5554")
	runner := &fakeRunner{}

	out, err := execute(t, runner, "run", "-f", filepath.Join(dir, "Checkout.robot"), "-j")
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	if got := strings.Join(runner.calls, ","); got != "python,rebot,rebot" {
		t.Errorf("calls = %s", got)
	}
	if !strings.Contains(out, filepath.Join(dir, "runner", "output", "tmp", "report.html")) {
		t.Errorf("CI summary should point at staging:\n%s", out)
	}
}

func TestDevicesCommand(t *testing.T) {
	dir := testsDir(t, nil, "emulator-5554", "R58M")
	if err := os.WriteFile(filepath.Join(dir, "runner", "devices_conf", "zz.dat"), []byte("--variable appium:1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, nil, "devices", "-d", dir)
	if err != nil {
		t.Fatalf("devices error = %v", err)
	}
	for _, want := range []string{"emulator-5554", "R58M", "4725", "rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "emulator-5554") > strings.Index(out, "R58M") {
		t.Errorf("devices out of index order:\n%s", out)
	}
}

func TestDevicesCommand_Empty(t *testing.T) {
	dir := testsDir(t, nil)

	_, err := execute(t, nil, "devices", "-d", dir, "--json")
	if got := ExitCode(err); got != ExitNoDevices {
		t.Errorf("ExitCode() = %d (err %v), want %d", got, err, ExitNoDevices)
	}
}

func TestHistoryCommand(t *testing.T) {
	dir := testsDir(t, nil)

	out, err := execute(t, nil, "history", "-d", dir)
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, "no runs recorded") {
		t.Errorf("output = %q", out)
	}

	_, err = execute(t, nil, "history", "-d", dir, "--limit", "0")
	if !errors.Is(err, ErrUsage) {
		t.Errorf("--limit 0 error = %v, want ErrUsage", err)
	}
}

type stubSink struct {
	err    error
	closed bool
}

func (s *stubSink) HealthCheck(context.Context) error { return s.err }
func (s *stubSink) Close() error                      { s.closed = true; return nil }

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantClosed bool
	}{
		{"healthy sink stays open", nil, false},
		{"unhealthy sink is closed", errors.New("ping failed"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &stubSink{err: tt.err}
			err := checkHealth(context.Background(), sink, sink.Close)
			if !errors.Is(err, tt.err) {
				t.Errorf("checkHealth() error = %v, want %v", err, tt.err)
			}
			if sink.closed != tt.wantClosed {
				t.Errorf("closed = %v, want %v", sink.closed, tt.wantClosed)
			}
		})
	}
}
