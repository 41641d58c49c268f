package report

import (
	"fmt"
	"io"
	"os"

	"github.com/kubev2v/workflow-dispatcher/internal/service/report/types"
)

// Write stores a rendered report at destination. Appendable formats are
// appended to an existing file, other formats replace it. An empty
// destination writes to stdout.
func Write(destination string, format types.ReportFormat, content []byte) error {
	if destination == "" {
		return writeTo(os.Stdout, content)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if format.Appendable() {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(destination, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open report destination: %w", err)
	}
	if err := writeTo(f, content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeTo(w io.Writer, content []byte) error {
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
