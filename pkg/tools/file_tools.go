package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	defaultReadBytes = 200_000
	maxReadBytes     = 2_000_000
	defaultEntries   = 500
	maxEntries       = 5000
)

// ReadFileTool reads a file's contents up to a byte cap.
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file as UTF-8 text. Large files are truncated to maxBytes."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path of the file to read.",
		},
		"maxBytes": map[string]any{
			"type":        "integer",
			"minimum":     1,
			"maximum":     maxReadBytes,
			"description": "Byte cap. Default 200000.",
		},
	}
}

func (t *ReadFileTool) RequiredParameters() []string { return []string{"path"} }

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	path, err := filepath.Abs(stringArg(args, "path", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	maxBytes := intArg(args, "maxBytes", defaultReadBytes)
	if maxBytes > maxReadBytes {
		maxBytes = maxReadBytes
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	truncated := len(data) > maxBytes
	if truncated {
		data = data[:maxBytes]
	}

	return map[string]any{
		"path":      path,
		"content":   strings.ToValidUTF8(string(data), "�"),
		"truncated": truncated,
	}, nil
}

// WriteFileTool writes UTF-8 content to a file, creating parents as needed.
type WriteFileTool struct{}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file. Creates the file and parent directories unless createIfMissing is false."
}

func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path of the file to write.",
		},
		"content": map[string]any{
			"type":        "string",
			"description": "Full file content.",
		},
		"createIfMissing": map[string]any{
			"type":        "boolean",
			"description": "When false, fail if the file does not already exist. Default true.",
		},
	}
}

func (t *WriteFileTool) RequiredParameters() []string { return []string{"path", "content"} }

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	path, err := filepath.Abs(stringArg(args, "path", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	content := stringArg(args, "content", "")

	if !boolArg(args, "createIfMissing", true) {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("file not found: %s", path)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	return map[string]any{"path": path, "bytesWritten": len(content)}, nil
}

// Patch is one line-range replacement. StartLine and EndLine are 1-based and
// inclusive; the range is replaced by NewText split on newlines.
type Patch struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	NewText   string `json:"newText"`
}

// EditFileTool applies line-range patches to a file.
type EditFileTool struct{}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Replace line ranges in a file. Each patch replaces lines startLine through endLine (1-based, inclusive) with newText."
}

func (t *EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path of the file to edit.",
		},
		"patches": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"startLine": map[string]any{"type": "integer", "minimum": 1},
					"endLine":   map[string]any{"type": "integer", "minimum": 1},
					"newText":   map[string]any{"type": "string"},
				},
				"required": []string{"startLine", "endLine", "newText"},
			},
			"description": "Line replacements, applied from the bottom of the file upwards.",
		},
	}
}

func (t *EditFileTool) RequiredParameters() []string { return []string{"path", "patches"} }

func (t *EditFileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	path, err := filepath.Abs(stringArg(args, "path", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	raw, err := json.Marshal(args["patches"])
	if err != nil {
		return nil, fmt.Errorf("invalid patches: %w", err)
	}
	var patches []Patch
	if err := json.Unmarshal(raw, &patches); err != nil {
		return nil, fmt.Errorf("invalid patches: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	content := string(data)
	hadTrailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	for _, p := range patches {
		if p.StartLine < 1 || p.EndLine < p.StartLine || p.EndLine > len(lines) {
			return nil, fmt.Errorf("invalid range: lines %d-%d outside 1-%d", p.StartLine, p.EndLine, len(lines))
		}
	}

	// Bottom-up application keeps earlier line numbers valid.
	sort.Slice(patches, func(i, j int) bool { return patches[i].StartLine > patches[j].StartLine })
	for _, p := range patches {
		replacement := strings.Split(p.NewText, "\n")
		updated := make([]string, 0, len(lines)-(p.EndLine-p.StartLine+1)+len(replacement))
		updated = append(updated, lines[:p.StartLine-1]...)
		updated = append(updated, replacement...)
		updated = append(updated, lines[p.EndLine:]...)
		lines = updated
	}

	out := strings.Join(lines, "\n")
	if hadTrailingNewline {
		out += "\n"
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	return map[string]any{"applied": true, "hunksApplied": len(patches)}, nil
}

// FileEntry is one result row from list_files.
type FileEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// ListFilesTool lists a directory, optionally walking it breadth-first.
type ListFilesTool struct{}

func (t *ListFilesTool) Name() string { return "list_files" }

func (t *ListFilesTool) Description() string {
	return "List directory entries. With recursive=true, walks subdirectories breadth-first up to maxEntries."
}

func (t *ListFilesTool) Parameters() map[string]any {
	return map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Directory to list.",
		},
		"recursive": map[string]any{
			"type":        "boolean",
			"description": "Walk subdirectories. Default false.",
		},
		"maxEntries": map[string]any{
			"type":        "integer",
			"minimum":     1,
			"maximum":     maxEntries,
			"description": "Entry cap. Default 500.",
		},
	}
}

func (t *ListFilesTool) RequiredParameters() []string { return []string{"path"} }

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	root, err := filepath.Abs(stringArg(args, "path", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	recursive := boolArg(args, "recursive", false)
	limit := intArg(args, "maxEntries", defaultEntries)
	if limit > maxEntries {
		limit = maxEntries
	}

	entries := make([]FileEntry, 0, 64)
	queue := []string{root}
	for len(queue) > 0 && len(entries) < limit {
		dir := queue[0]
		queue = queue[1:]

		listed, err := os.ReadDir(dir)
		if err != nil {
			if dir == root {
				return nil, fmt.Errorf("failed to list directory: %w", err)
			}
			continue
		}
		for _, e := range listed {
			if len(entries) >= limit {
				break
			}
			full := filepath.Join(dir, e.Name())
			entry := FileEntry{Path: full, Type: "file"}
			if e.IsDir() {
				entry.Type = "dir"
				if recursive {
					queue = append(queue, full)
				}
			} else if info, err := e.Info(); err == nil {
				entry.Size = info.Size()
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
