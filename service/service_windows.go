//go:build windows

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.ntppool.org/common/logger"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// exit code reported to the service manager when fn fails
const errExitCode = 1

func IsWindowsService() (bool, error) {
	return svc.IsWindowsService()
}

// Run hands fn to the service control manager when the process was
// started as a service; fn's context is cancelled when the service is
// stopped. Otherwise fn is called directly.
func Run(ctx context.Context, name string, fn func(context.Context) error) error {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return fmt.Errorf("detecting service mode: %w", err)
	}
	if !isService {
		return fn(ctx)
	}

	h := &handler{ctx: ctx, fn: fn}
	if err := svc.Run(name, h); err != nil {
		return err
	}
	return h.err
}

type handler struct {
	ctx context.Context
	fn  func(context.Context) error
	err error
}

func (h *handler) Execute(args []string, r <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	const accepts = svc.AcceptStop | svc.AcceptShutdown
	log := logger.FromContext(h.ctx)

	status <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- h.fn(ctx)
	}()

	status <- svc.Status{State: svc.Running, Accepts: accepts}

	for {
		select {
		case err := <-done:
			h.err = err
			status <- svc.Status{State: svc.StopPending}
			if err != nil {
				log.Error("service stopped with error", "err", err)
				return true, errExitCode
			}
			return false, 0

		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				status <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				log.Info("service stop requested")
				status <- svc.Status{State: svc.StopPending, WaitHint: 10000}
				cancel()
				select {
				case h.err = <-done:
				case <-time.After(10 * time.Second):
					log.Warn("service did not stop in time")
				}
				return false, 0
			default:
				log.Warn("unexpected service control request", "cmd", c.Cmd)
			}
		}
	}
}

// Install registers exePath as an automatically started service that is
// invoked with args.
func Install(name, displayName, exePath string, args ...string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err == nil {
		s.Close()
		return fmt.Errorf("service %s already exists", name)
	}

	s, err = m.CreateService(name, exePath, mgr.Config{
		DisplayName: displayName,
		Description: description,
		StartType:   mgr.StartAutomatic,
	}, args...)
	if err != nil {
		return fmt.Errorf("creating service %s: %w", name, err)
	}
	defer s.Close()

	err = s.SetRecoveryActions([]mgr.RecoveryAction{
		{Type: mgr.ServiceRestart, Delay: time.Minute},
	}, uint32((24 * time.Hour).Seconds()))
	if err != nil {
		return fmt.Errorf("setting recovery actions: %w", err)
	}

	return nil
}

// Uninstall stops the service if it is running and removes it.
func Uninstall(name string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("service %s is not installed: %w", name, err)
	}
	defer s.Close()

	_, err = s.Control(svc.Stop)
	if err != nil && !errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE) {
		return fmt.Errorf("stopping service %s: %w", name, err)
	}

	if err := s.Delete(); err != nil {
		return fmt.Errorf("removing service %s: %w", name, err)
	}
	return nil
}
