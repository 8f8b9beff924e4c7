package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"faceattend/internal/app"
	"faceattend/internal/attendance"
	"faceattend/internal/scan"
)

var errRejected = errors.New("scan rejected")

// runSession drives one session to its first final outcome, retrying
// transient verification failures on the same frame.
func runSession(ctx context.Context, a *app.App, target attendance.Context, retries int) (attendance.Outcome, error) {
	s := scan.NewSession(a.Device, a.Pipeline, target, a.ScanConfig(), a.Log)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	ready := make(chan struct{})
	var readyOnce sync.Once
	s.Subscribe(func(snap scan.Snapshot) {
		switch snap.State {
		case scan.StateReady:
			readyOnce.Do(func() { close(ready) })
		case scan.StateScanning:
			_ = bar.Set(snap.Progress)
		case scan.StateCaptured:
			_ = bar.Finish()
		}
	})
	outcomes := make(chan attendance.Outcome, 4)
	s.OnOutcome(func(out attendance.Outcome) {
		select {
		case outcomes <- out:
		default:
		}
	})

	if err := s.Start(ctx); err != nil {
		return attendance.Outcome{}, err
	}
	defer s.Cancel()

	fmt.Fprintln(os.Stderr, "Waiting for camera...")
	select {
	case <-ready:
		fmt.Fprintln(os.Stderr, "Look at the camera.")
		if err := s.BeginScan(); err != nil {
			return attendance.Outcome{}, err
		}
	case out := <-outcomes:
		return out, nil
	case <-ctx.Done():
		return attendance.Outcome{}, ctx.Err()
	}

	for {
		select {
		case out := <-outcomes:
			if out.Retryable() && retries > 0 {
				retries--
				fmt.Fprintf(os.Stderr, "%s, retrying (%d left)\n", out.Message(), retries)
				if err := s.RetryVerification(); err == nil {
					continue
				}
			}
			return out, nil
		case <-ctx.Done():
			return attendance.Outcome{}, ctx.Err()
		}
	}
}

// report prints an outcome and turns anything but success into an error
// for the exit code.
func report(out attendance.Outcome) error {
	fmt.Println(out.Message())
	if out.Student != nil {
		fmt.Printf("Student: %s (%s)\n", out.Student.Name, out.Student.AdmissionNumber)
	}
	if out.Record != nil {
		fmt.Printf("Marked at: %s\n", out.Record.MarkedAt.Local().Format("2006-01-02 15:04:05"))
	}
	switch {
	case out.Succeeded():
		return nil
	case out.Rejected():
		return fmt.Errorf("%w: %s", errRejected, out.Kind)
	case out.Err != nil:
		return fmt.Errorf("%s at %s: %w", out.Kind, out.Step, out.Err)
	}
	return fmt.Errorf("%s", out.Kind)
}
