//go:build !windows

package host

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"vawter.tech/stopper"

	"github.com/Paintersrp/servicestation/internal/svcctl"
)

const signalLoopStopGrace = time.Second

var notify = daemon.SdNotify

// Run serves h until it stops and returns its exit code. Signals are
// translated into control opcodes; status is published with sd_notify when
// running under systemd. Cancelling ctx requests a stop.
func Run(ctx context.Context, h svcctl.Handler, opts Options) uint32 {
	rep := newReporter(opts.Log, sdNotifyStatus)
	m := newMachine(h, rep, opts)

	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, controlSignals...)
	defer signal.Stop(sigCh)

	// The loop outlives ctx so that cancellation is turned into a stop.
	sctx := stopper.WithContext(context.Background())
	sctx.Go(func(sctx *stopper.Context) error {
		for {
			select {
			case <-sctx.Stopping():
				return nil
			case <-ctx.Done():
				dispatch(m, svcctl.OpcodeStop)
				return nil
			case sig := <-sigCh:
				if op, ok := opcodeForSignal(sig); ok {
					rep.logger().Infof("received %s, sending %s", sig, op)
					dispatch(m, op)
				}
			}
		}
	})

	code := m.Serve([]string{opts.Name})
	sctx.Stop(signalLoopStopGrace)
	_ = sctx.Wait()
	return code
}

var controlSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP}

func opcodeForSignal(sig os.Signal) (svcctl.Opcode, bool) {
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT:
		return svcctl.OpcodeStop, true
	case syscall.SIGUSR1:
		return svcctl.OpcodePause, true
	case syscall.SIGUSR2:
		return svcctl.OpcodeContinue, true
	case syscall.SIGHUP:
		return svcctl.OpcodeReload, true
	default:
		return 0, false
	}
}

func sdNotifyStatus(st svcctl.Status) error {
	_, err := notify(false, sdNotifyMessage(st))
	return err
}

// sdNotifyMessage renders a status as an sd_notify payload.
func sdNotifyMessage(st svcctl.Status) string {
	lines := []string{"STATUS=" + st.State.String()}
	switch st.State {
	case svcctl.Running:
		lines = append(lines, daemon.SdNotifyReady)
	case svcctl.StopPending:
		lines = append(lines, daemon.SdNotifyStopping)
	case svcctl.Stopped:
		if st.ExitCode != 0 {
			lines = append(lines, fmt.Sprintf("ERRNO=%d", st.ExitCode))
		}
	}
	if st.State.Pending() && st.WaitHint > 0 {
		lines = append(lines, fmt.Sprintf("EXTEND_TIMEOUT_USEC=%d", st.WaitHint.Microseconds()))
	}
	return strings.Join(lines, "\n")
}
