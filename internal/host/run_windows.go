//go:build windows

package host

import (
	"context"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/debug"

	"github.com/Paintersrp/servicestation/internal/svcctl"
)

// Run serves h under the Service Control Manager, or under a console
// debug loop when not started by the SCM. Cancelling ctx requests a stop.
func Run(ctx context.Context, h svcctl.Handler, opts Options) uint32 {
	rep := newReporter(opts.Log, nil)
	wh := &scmHandler{handler: h, rep: rep, opts: opts, ctx: ctx}

	run := debug.Run
	if isService, err := svc.IsWindowsService(); err == nil && isService {
		run = svc.Run
	} else if err != nil {
		rep.logger().Warnf("detect service session: %v", err)
	}
	if err := run(opts.Name, wh); err != nil {
		rep.logger().Errorf("service dispatcher: %v", err)
		if wh.code == 0 {
			return svcctl.ExitCodeInitFailed
		}
	}
	return wh.code
}

type scmHandler struct {
	handler svcctl.Handler
	rep     *reporter
	opts    Options
	ctx     context.Context
	code    uint32
}

func (w *scmHandler) Execute(args []string, requests <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	w.rep.setForward(func(st svcctl.Status) error {
		changes <- toSvcStatus(st)
		return nil
	})
	m := newMachine(w.handler, w.rep, w.opts)

	name := w.opts.Name
	if len(args) > 0 && args[0] != "" {
		name = args[0]
	}
	done := make(chan uint32, 1)
	go func() { done <- m.Serve([]string{name}) }()

	ctxDone := w.ctx.Done()
	for {
		select {
		case code := <-done:
			w.code = code
			w.rep.setForward(nil)
			return false, code
		case <-ctxDone:
			ctxDone = nil
			go dispatch(m, svcctl.OpcodeStop)
		case req := <-requests:
			op := svcctl.Opcode(req.Cmd)
			switch req.Cmd {
			case svc.Stop, svc.Shutdown:
				// Stop blocks until Run returns; keep draining requests.
				go dispatch(m, op)
			default:
				dispatch(m, op)
			}
		}
	}
}

func toSvcStatus(st svcctl.Status) svc.Status {
	return svc.Status{
		State:         svc.State(st.State),
		Accepts:       svc.Accepted(st.Accepts),
		CheckPoint:    st.Checkpoint,
		WaitHint:      uint32(st.WaitHint.Milliseconds()),
		Win32ExitCode: st.ExitCode,
	}
}
