package toolexec

import (
	"os"
	"path/filepath"

	"github.com/haasonsaas/nexus/pkg/events"
)

// maxReadBytes bounds the content of a single file_read observation.
const maxReadBytes = 256_000

// RunFileRead executes a FileReadAction against the workspace.
func RunFileRead(workspace string, a events.FileReadAction) events.FileReadObservation {
	resolved, err := (Resolver{Root: workspace}).Resolve(a.Path)
	if err != nil {
		return events.FileReadObservation{Content: err.Error(), IsError: true}
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return events.FileReadObservation{Content: err.Error(), IsError: true}
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	return events.FileReadObservation{Content: string(data)}
}

// RunFileWrite executes a FileWriteAction against the workspace, creating
// parent directories as needed and overwriting any existing file.
func RunFileWrite(workspace string, a events.FileWriteAction) events.FileWriteObservation {
	resolved, err := (Resolver{Root: workspace}).Resolve(a.Path)
	if err != nil {
		return events.FileWriteObservation{IsError: true}
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return events.FileWriteObservation{IsError: true}
	}
	if err := os.WriteFile(resolved, []byte(a.Content), 0o644); err != nil {
		return events.FileWriteObservation{IsError: true}
	}
	return events.FileWriteObservation{BytesWritten: len(a.Content)}
}
