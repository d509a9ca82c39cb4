package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var SafeExitInst *SafeExit

func InitSafeExit() {
	SafeExitInst = newSafeExit()
	go SafeExitInst.ListenSignal()
}

// SafeExit runs registered hooks, last registered first, when the process is
// asked to stop.
type SafeExit struct {
	funcs  []func()
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func newSafeExit() *SafeExit {
	ctx, cancel := context.WithCancel(context.Background())
	return &SafeExit{ctx: ctx, cancel: cancel}
}

// Context is canceled as soon as a stop signal arrives.
func (s *SafeExit) Context() context.Context { return s.ctx }

func (s *SafeExit) Register(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.funcs = append(s.funcs, f)
}

func (s *SafeExit) run() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.funcs) - 1; i >= 0; i-- {
		s.funcs[i]()
	}
	s.funcs = nil
}

func (s *SafeExit) exit() {
	s.run()
	os.Exit(0)
}

func (s *SafeExit) ListenSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	for sig := range sigs {
		switch sig {
		case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
			fmt.Printf("received signal %v, stopping, please wait\n", sig)
			s.exit()
		}
	}
}
