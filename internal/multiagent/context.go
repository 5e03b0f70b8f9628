package multiagent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/codeteam/pkg/models"
)

const (
	maxFilesDepth         = 4
	maxFilesEntries       = 2000
	filesOverviewLimit    = 6
	artifactsSummaryLimit = 5
	defaultUserMsgWindow  = 8
	historyTruncateChars  = 160
)

var artifactMarkers = []string{
	"[file writes]",
	"[PRD writes]",
	"[architecture doc writes]",
}

var recognizedSuffixes = map[string]bool{
	"py": true, "ts": true, "tsx": true, "js": true, "json": true,
	"md": true, "yml": true, "yaml": true, "toml": true, "cfg": true,
	"html": true, "css": true, "scss": true, "rs": true, "go": true,
	"java": true, "kt": true, "sh": true,
}

// ContextBuilder assembles a per-turn SessionContext from persistent state,
// the session's message history, and the sandbox workspace contents.
type ContextBuilder struct {
	workspaceRoot func(sessionID string) string
}

// NewContextBuilder creates a ContextBuilder. workspaceRoot maps a session id
// to its sandbox workspace directory on the host.
func NewContextBuilder(workspaceRoot func(sessionID string) string) *ContextBuilder {
	return &ContextBuilder{workspaceRoot: workspaceRoot}
}

// Build assembles a SessionContext from the given persistent state and
// recent messages.
func (b *ContextBuilder) Build(sessionID, ownerID, userID string, state PersistentState, messages []models.Message) SessionContext {
	sc := SessionContext{
		SessionID: sessionID,
		OwnerID:   ownerID,
		UserID:    userID,
		ActionLog: append([]models.ActionLogEntry(nil), state.ActionLog...),
		Todos:     append([]models.TodoEntry(nil), state.Todos...),
		RoleData:  cloneRoleData(state.RoleData),
	}

	sc.UserMessages = collectUserMessages(messages, defaultUserMsgWindow)
	if len(sc.UserMessages) > 0 {
		sc.LastUserMessage = sc.UserMessages[len(sc.UserMessages)-1]
	}

	sc.HistoryDigest = b.buildHistoryDigest(sc.ActionLog, messages)
	sc.ArtifactsSummary = buildArtifactsSummary(messages)

	if b.workspaceRoot != nil {
		sc.FilesOverview = buildFilesOverview(b.workspaceRoot(sessionID))
	}

	return sc
}

func cloneRoleData(in map[models.Role]map[string]any) map[models.Role]map[string]any {
	if in == nil {
		return map[models.Role]map[string]any{}
	}
	out := make(map[models.Role]map[string]any, len(in))
	for role, data := range in {
		copied := make(map[string]any, len(data))
		for k, v := range data {
			copied[k] = v
		}
		out[role] = copied
	}
	return out
}

func collectUserMessages(messages []models.Message, n int) []string {
	var out []string
	for _, m := range messages {
		if m.Sender == models.SenderUser {
			out = append(out, m.Content)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// buildHistoryDigest prefers the action log; falls back to recent session
// messages when the action log is empty.
func (b *ContextBuilder) buildHistoryDigest(log []models.ActionLogEntry, messages []models.Message) string {
	var lines []string
	if len(log) > 0 {
		for i, entry := range log {
			summary := truncate(entry.Result, historyTruncateChars)
			lines = append(lines, fmt.Sprintf("step %d · %s: %s", i+1, entry.Role, summary))
		}
		return strings.Join(lines, "\n")
	}

	for i, m := range messages {
		if m.Content == "" {
			continue
		}
		label := string(m.Sender)
		if m.Role != "" {
			label = string(m.Role)
		}
		lines = append(lines, fmt.Sprintf("step %d · %s: %s", i+1, label, truncate(m.Content, historyTruncateChars)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// buildArtifactsSummary scans message history in reverse order for lines
// introduced by a known marker, collecting candidate file paths/names.
func buildArtifactsSummary(messages []models.Message) []string {
	var out []string
	seen := map[string]bool{}

	for i := len(messages) - 1; i >= 0 && len(out) < artifactsSummaryLimit; i-- {
		content := messages[i].Content
		for _, marker := range artifactMarkers {
			idx := strings.Index(content, marker)
			if idx == -1 {
				continue
			}
			section := content[idx+len(marker):]
			for _, line := range strings.Split(section, "\n") {
				line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
				line = strings.TrimSpace(line)
				if line == "" {
					break
				}
				if !looksLikeArtifact(line) {
					continue
				}
				if seen[line] {
					continue
				}
				seen[line] = true
				out = append(out, line)
				if len(out) >= artifactsSummaryLimit {
					break
				}
			}
		}
	}
	return out
}

func looksLikeArtifact(token string) bool {
	if strings.Contains(token, "/") {
		return true
	}
	idx := strings.LastIndex(token, ".")
	if idx == -1 || idx == len(token)-1 {
		return false
	}
	return recognizedSuffixes[strings.ToLower(token[idx+1:])]
}

type fileEntry struct {
	path string
	size int64
}

// buildFilesOverview performs a bounded recursive scan of root and renders a
// short "<relative path> (size <bytes>)" overview.
func buildFilesOverview(root string) []string {
	if root == "" {
		return nil
	}
	var entries []fileEntry
	count := 0

	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if depth > maxFilesDepth || count >= maxFilesEntries {
			return
		}
		items, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, item := range items {
			if count >= maxFilesEntries {
				return
			}
			full := filepath.Join(dir, item.Name())
			rel, err := filepath.Rel(root, full)
			if err != nil {
				continue
			}
			count++
			if item.IsDir() {
				walk(full, depth+1)
				continue
			}
			info, err := item.Info()
			var size int64
			if err == nil {
				size = info.Size()
			}
			entries = append(entries, fileEntry{path: rel, size: size})
		}
	}
	walk(root, 1)

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	if len(entries) > filesOverviewLimit {
		entries = entries[:filesOverviewLimit]
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, fmt.Sprintf("%s (size %d)", e.path, e.size))
	}
	return out
}
