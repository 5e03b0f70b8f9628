package multiagent

import (
	"strconv"
	"strings"
)

// FileBlockMode is the write mode declared on a file block's header.
type FileBlockMode string

const (
	FileBlockOverwrite FileBlockMode = "overwrite"
	FileBlockAppend    FileBlockMode = "append"
)

// FileBlock is one ```file:<path> [mode] ... ```endfile region extracted
// from agent output.
type FileBlock struct {
	Path string
	Mode FileBlockMode
	Body string
}

// ShellBlock is one ```shell cwd=... timeout=... env:K=V ... ```endshell
// region extracted from agent output.
type ShellBlock struct {
	Cwd     string
	Timeout int
	Env     map[string]string
	Command string
}

const (
	fileBlockOpen  = "```file:"
	fileBlockClose = "```endfile"
	shellBlockOpen = "```shell"
	shellBlockClose = "```endshell"
)

// ParseFileBlocks extracts every file block from text. Parsing never raises;
// blocks with empty headers are skipped, and a missing closing fence falls
// back to the next opening fence or end of text.
func ParseFileBlocks(text string) []FileBlock {
	var blocks []FileBlock
	rest := text

	for {
		idx := strings.Index(rest, fileBlockOpen)
		if idx == -1 {
			break
		}
		afterOpen := rest[idx+len(fileBlockOpen):]

		nl := strings.IndexByte(afterOpen, '\n')
		var header, body string
		if nl == -1 {
			header = afterOpen
			body = ""
		} else {
			header = afterOpen[:nl]
			body = afterOpen[nl+1:]
		}

		header = strings.TrimSpace(header)
		if header == "" {
			rest = body
			continue
		}

		fields := strings.Fields(header)
		path := fields[0]
		mode := FileBlockOverwrite
		for _, f := range fields[1:] {
			switch strings.ToLower(f) {
			case "append":
				mode = FileBlockAppend
			case "overwrite":
				mode = FileBlockOverwrite
			}
		}

		end := strings.Index(body, fileBlockClose)
		var blockBody, remainder string
		if end != -1 {
			blockBody = body[:end]
			remainder = body[end+len(fileBlockClose):]
		} else {
			nextOpen := strings.Index(body, fileBlockOpen)
			if nextOpen != -1 {
				blockBody = body[:nextOpen]
				remainder = body[nextOpen:]
			} else {
				blockBody = body
				remainder = ""
			}
		}

		blocks = append(blocks, FileBlock{
			Path: path,
			Mode: mode,
			Body: strings.TrimRight(blockBody, " \t\r\n"),
		})
		rest = remainder
	}

	return blocks
}

// ParseShellBlocks extracts every shell block from text. Parsing never
// raises; blocks with empty bodies are skipped.
func ParseShellBlocks(text string) []ShellBlock {
	var blocks []ShellBlock
	rest := text

	for {
		idx := strings.Index(rest, shellBlockOpen)
		if idx == -1 {
			break
		}
		afterOpen := rest[idx+len(shellBlockOpen):]

		nl := strings.IndexByte(afterOpen, '\n')
		var header, body string
		if nl == -1 {
			header = afterOpen
			body = ""
		} else {
			header = afterOpen[:nl]
			body = afterOpen[nl+1:]
		}

		sb := ShellBlock{Env: map[string]string{}}
		for _, tok := range strings.Fields(header) {
			switch {
			case strings.HasPrefix(tok, "cwd="):
				sb.Cwd = strings.TrimPrefix(tok, "cwd=")
			case strings.HasPrefix(tok, "timeout="):
				if v, err := strconv.Atoi(strings.TrimPrefix(tok, "timeout=")); err == nil && v > 0 {
					sb.Timeout = v
				}
			case strings.HasPrefix(tok, "env:"):
				kv := strings.TrimPrefix(tok, "env:")
				if eq := strings.IndexByte(kv, '='); eq != -1 {
					sb.Env[kv[:eq]] = kv[eq+1:]
				}
			}
		}

		end := strings.Index(body, shellBlockClose)
		var blockBody, remainder string
		if end != -1 {
			blockBody = body[:end]
			remainder = body[end+len(shellBlockClose):]
		} else {
			nextOpen := strings.Index(body, shellBlockOpen)
			if nextOpen != -1 {
				blockBody = body[:nextOpen]
				remainder = body[nextOpen:]
			} else {
				blockBody = body
				remainder = ""
			}
		}

		sb.Command = strings.TrimSpace(blockBody)
		if sb.Command != "" {
			blocks = append(blocks, sb)
		}
		rest = remainder
	}

	return blocks
}
