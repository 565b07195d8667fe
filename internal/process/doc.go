// Package process runs the external collaborators of a test run.
//
// Two shapes of child process are covered:
//
//   - Manager supervises a long-running server (one Appium instance per
//     device). It is started once, never restarted and never probed. Stop
//     and Interrupt signal the whole process group.
//   - Run executes a one-shot command (pabot, rebot, the stray server
//     sweep), streams its combined output line by line and blocks until it
//     exits. A non-zero exit status is a normal outcome, not an error.
//
// Every child gets its own process group so that signals reach the
// grandchildren spawned by node or python launchers.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:    "appium-emulator-5554",
//	    Binary:  "appium",
//	    Args:    []string{"-p", "4723", "-bp", "4724"},
//	    WorkDir: testsDir,
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    logger.Error("appium launch failed", "error", err)
//	}
//	defer mgr.Stop()
package process
