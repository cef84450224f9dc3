package tools

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"

	"agentcore/agenterr"
	"agentcore/content"
	"agentcore/env"
)

const maxGetFileBytes = 10 * 1024 * 1024 // 10 MiB cap per §4.3

// GetFileInput is the get_file tool's schema-validated input.
type GetFileInput struct {
	Path string `json:"path" jsonschema_description:"path to the file to read, relative to the working directory"`
}

type getFileTool struct {
	env     env.Env
	request content.Block
}

func newGetFileTool(e env.Env, request content.Block) *getFileTool {
	return &getFileTool{env: e, request: request}
}

func (t *getFileTool) Abort() {}

func (t *getFileTool) Run(ctx context.Context) content.Block {
	path, ok := t.request.ToolRequest.Input["path"].(string)
	if !ok || path == "" {
		return content.ToolResultErr(t.request.ToolUseId, "get_file requires a non-empty path")
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(t.env.GetWorkingDirectory(), resolved)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return content.ToolResultErr(t.request.ToolUseId, agenterr.Wrap(agenterr.KindTool, "get_file could not stat path", err).Error())
	}
	if info.IsDir() {
		return content.ToolResultErr(t.request.ToolUseId, "get_file path is a directory")
	}
	if info.Size() > maxGetFileBytes {
		return content.ToolResultErr(t.request.ToolUseId, "get_file refused: file exceeds the 10 MiB size cap")
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return content.ToolResultErr(t.request.ToolUseId, agenterr.Wrap(agenterr.KindTool, "get_file could not read path", err).Error())
	}

	mediaType := http.DetectContentType(data)
	switch {
	case isImageMediaType(mediaType):
		return content.ToolResultOK(t.request.ToolUseId, content.ToolResultContent{
			Type:      content.BlockImage,
			MediaType: mediaType,
			Base64:    base64.StdEncoding.EncodeToString(data),
		})
	case mediaType == "application/pdf":
		return content.ToolResultOK(t.request.ToolUseId, content.ToolResultContent{
			Type:      content.BlockDocument,
			MediaType: mediaType,
			Base64:    base64.StdEncoding.EncodeToString(data),
			Title:     filepath.Base(resolved),
		})
	default:
		return content.ToolResultOK(t.request.ToolUseId, content.ToolResultContent{
			Type: content.BlockText,
			Text: string(data),
		})
	}
}

func isImageMediaType(mediaType string) bool {
	switch mediaType {
	case string(content.ImagePNG), string(content.ImageJPEG), string(content.ImageGIF), string(content.ImageWebP):
		return true
	default:
		return false
	}
}
