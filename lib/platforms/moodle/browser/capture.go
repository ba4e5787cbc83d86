package browser

import (
	"context"
	"fmt"
)

// CaptureSink stores diagnostic artifacts, restyutil.FilesystemOutput is the
// usual implementation.
type CaptureSink interface {
	WriteFile(name string, data []byte) error
}

// capture saves a screenshot and the markup of the current page under names
// derived from reason. It is best effort, failures are only reported.
func (s *Session) capture(ctx context.Context, reason string) {
	if s.sink == nil {
		return
	}

	// the page may be the reason for the failure, so it gets a fresh budget
	ctx = context.WithoutCancel(ctx)

	shot, err := s.page.Screenshot(ctx)
	if err == nil {
		err = s.sink.WriteFile(fmt.Sprintf("moodle_%s.png", reason), shot)
	}
	if err != nil {
		s.tel.ReportWarning(report_session_capture, fmt.Errorf("screenshot: %w", err), reason)
	}

	snap, err := s.page.Snapshot(ctx)
	if err == nil {
		err = s.sink.WriteFile(fmt.Sprintf("moodle_%s.html", reason), []byte(snap.HTML))
	}
	if err != nil {
		s.tel.ReportWarning(report_session_capture, fmt.Errorf("page source: %w", err), reason)
	}
}
