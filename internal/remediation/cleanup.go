package remediation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/steveyegge/medic/internal/types"
)

var pathPatterns = []*regexp.Regexp{
	// quoted: EACCES: permission denied, open '/srv/app/data.db'
	regexp.MustCompile(`['"]((?:[A-Za-z]:)?[\\/][^'"]+)['"]`),
	// Go os errors: open /srv/app/data.db: permission denied
	regexp.MustCompile(`(?i)\b(?:open|stat|lstat|mkdir|chmod|chown|remove|unlink|rename|create|access|readlink|chdir|opendir|scandir)\s+((?:[A-Za-z]:)?[\\/][^\s:'"]*)`),
	// any absolute unix path
	regexp.MustCompile(`(?:^|\s)(/[\w.\-/]+)`),
}

// ExtractPath finds the file path an error refers to
func ExtractPath(text string) (string, bool) {
	for _, re := range pathPatterns {
		if m := re.FindStringSubmatch(text); m != nil && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

// resourceCleanup relaxes permissions on the offending path or creates its
// missing parent directory. Single shot.
func (s *strategies) resourceCleanup(ctx context.Context, req Request) types.RemediationResult {
	res := types.RemediationResult{Attempted: true, Extra: map[string]any{}}

	// Stack frames name source files, never the failing resource
	path, ok := ExtractPath(req.Event.Message)
	if !ok {
		res.Message = "could not extract a path from the error"
		return res
	}
	res.Extra["path"] = path

	if s.deps.Process == nil {
		res.Message = "no process controller configured"
		return res
	}

	switch req.Classification {
	case types.PermissionDenied:
		mode := os.FileMode(0o644)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			mode = 0o755
		}
		res.Extra["mode"] = fmt.Sprintf("%#o", mode)
		if err := s.deps.Process.Chmod(path, mode); err != nil {
			res.Message = fmt.Sprintf("failed to relax permissions: %v", err)
			return res
		}
		res.Success = true
		res.Message = fmt.Sprintf("set mode %#o on %s", mode, path)

	default:
		parent := filepath.Dir(path)
		res.Extra["created"] = parent
		if err := s.deps.Process.MkdirAll(parent); err != nil {
			res.Message = fmt.Sprintf("failed to create %s: %v", parent, err)
			return res
		}
		res.Success = true
		res.Message = fmt.Sprintf("created missing directory %s", parent)
	}
	return res
}
