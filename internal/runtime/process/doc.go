// Package process launches and owns a single supervised child.
//
// A Process is started from a raw command line in a working directory. On Unix
// the command line is handed to /bin/sh -c and the child leads its own process
// group, so the cooperative stop request (SIGTERM) reaches everything the
// shell spawned. On Windows the command line is passed to CreateProcess
// verbatim and the stop request posts WM_QUIT to every thread of the child;
// programs without a message loop ignore it and are ended by the group's
// forced termination instead.
//
// A reaper goroutine waits on the child so liveness checks never block and
// exited children never linger as zombies.
package process
