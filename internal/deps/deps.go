// Package deps reports whether the external programs reembed shells out to
// can be found.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Requirement defines an external program reembed relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the system tools for the configured binaries. Node is
// only needed for photo slideshows, so it is optional.
func Requirements(ffmpeg, ffprobe, node string) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Re-encodes oversized or incompatible media"},
		{Name: "FFprobe", Command: ffprobe, Description: "Inspects codecs and duration"},
		{Name: "Node.js", Command: node, Description: "Signs slideshow API requests", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckInstalled reports whether path is an executable file. It is used for
// downloaded tools that are not on PATH.
func CheckInstalled(name, path, description string) Status {
	status := Status{Name: name, Command: path, Description: description}
	if strings.TrimSpace(path) == "" {
		status.Detail = "not installed yet"
		return status
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		status.Detail = fmt.Sprintf("stat %s: %v", path, err)
	case !isExecutable(info):
		status.Detail = fmt.Sprintf("%s is not executable", path)
	default:
		status.Available = true
	}
	return status
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
