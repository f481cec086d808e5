package codeservice

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/arclight-labs/maker/internal/astparse"
	"github.com/arclight-labs/maker/internal/model"
)

// chunkThreshold is spec §4.3's "files exceeding 5000 characters" cutoff for
// semantic chunking.
const chunkThreshold = 5000

// fixedChunkLines is the line count per chunk for the fixed-line-count
// fallback (non-parseable files, or chunked files whose language has no
// grammar registered in internal/astparse).
const fixedChunkLines = 100

// ReadFile implements read_file(path, chunked?). Files at or under the
// chunking threshold always return full text regardless of the chunked
// flag; larger files return chunks only when chunked is requested.
func (s *Service) ReadFile(ctx context.Context, path string, chunked bool) (model.FileRead, error) {
	full, err := s.resolvePath(path)
	if err != nil {
		return model.FileRead{}, err
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return model.FileRead{}, fmt.Errorf("codeservice: read %s: %w", path, err)
	}
	text := string(content)

	if !chunked || len(text) <= chunkThreshold {
		return model.FileRead{Text: text, Chunked: false}, nil
	}

	chunks, err := s.chunkFile(ctx, full, content)
	if err != nil {
		return model.FileRead{}, err
	}
	return model.FileRead{Chunks: chunks, Chunked: true}, nil
}

// chunkFile splits content on top-level function/class nodes from the
// parsed syntax tree (spec §4.3); non-parseable files fall back to
// fixed-line-count chunking.
func (s *Service) chunkFile(ctx context.Context, path string, content []byte) ([]model.CodeChunk, error) {
	lang := astparse.LanguageForPath(path)
	if lang == astparse.LangUnknown {
		return fixedLineChunks(content), nil
	}

	entities, err := s.parser.ParseEntities(ctx, lang, content)
	if err != nil || len(entities) == 0 {
		return fixedLineChunks(content), nil
	}

	lines := strings.Split(string(content), "\n")
	chunks := make([]model.CodeChunk, 0, len(entities))
	for _, e := range entities {
		chunks = append(chunks, model.CodeChunk{
			Kind:      string(e.Kind),
			Name:      e.Name,
			StartLine: e.StartLine,
			EndLine:   e.EndLine,
			Text:      joinLines(lines, e.StartLine, e.EndLine),
		})
	}
	return chunks, nil
}

func fixedLineChunks(content []byte) []model.CodeChunk {
	lines := strings.Split(string(content), "\n")
	var chunks []model.CodeChunk
	for start := 1; start <= len(lines); start += fixedChunkLines {
		end := start + fixedChunkLines - 1
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, model.CodeChunk{
			Kind:      "lines",
			Name:      fmt.Sprintf("lines %d-%d", start, end),
			StartLine: start,
			EndLine:   end,
			Text:      joinLines(lines, start, end),
		})
	}
	return chunks
}

func joinLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

