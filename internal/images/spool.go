// Package images spools images generated during a flow and replaces their
// placeholders with public URLs once the flow finalizes.
package images

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheme prefixes the placeholder target of a spooled image.
const Scheme = "image://"

var placeholderRe = regexp.MustCompile(`!\[([^\]]*)\]\(image://([^)\s]+)\)`)

// Spool holds the images of one work item until finalize.
type Spool struct {
	todoID   string
	dir      string
	uploader Uploader
	log      *zap.Logger

	mu       sync.Mutex
	uploaded map[string]string
}

// Open creates the spool directory of todoID under root. uploader may be nil,
// in which case placeholders are left as they are.
func Open(root, todoID string, uploader Uploader, log *zap.Logger) (*Spool, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if todoID == "" {
		todoID = uuid.NewString()
	}
	dir := filepath.Join(root, filepath.Base(todoID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("images: create spool %s: %w", dir, err)
	}
	return &Spool{
		todoID:   todoID,
		dir:      dir,
		uploader: uploader,
		log:      log.With(zap.String("todo_id", todoID)),
		uploaded: make(map[string]string),
	}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string { return s.dir }

// SaveFile writes data into the spool and returns its markdown placeholder.
func (s *Spool) SaveFile(name, mediaType string, data []byte) (string, error) {
	file := spoolName(name, mediaType)
	if err := os.WriteFile(filepath.Join(s.dir, file), data, 0o644); err != nil {
		return "", fmt.Errorf("images: spool %s: %w", file, err)
	}
	label := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if label == "" || label == "." {
		label = "image"
	}
	s.log.Debug("image spooled", zap.String("file", file), zap.Int("bytes", len(data)))
	return fmt.Sprintf("![%s](%s%s)", label, Scheme, file), nil
}

// spoolName makes a unique file name that keeps the original extension, or
// derives one from the media type.
func spoolName(name, mediaType string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext == "" && mediaType != "" {
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "image"
	}
	return fmt.Sprintf("%s-%s%s", stem, uuid.NewString()[:8], ext)
}

// Resolve uploads every spooled image referenced in text and replaces its
// placeholder with the public URL. Images that cannot be uploaded keep their
// placeholder.
func (s *Spool) Resolve(ctx context.Context, text string) string {
	if s.uploader == nil || !strings.Contains(text, Scheme) {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := placeholderRe.FindStringSubmatch(m)
		url, err := s.publish(ctx, parts[2])
		if err != nil {
			s.log.Warn("image upload failed, keeping placeholder", zap.String("file", parts[2]), zap.Error(err))
			return m
		}
		return fmt.Sprintf("![%s](%s)", parts[1], url)
	})
}

func (s *Spool) publish(ctx context.Context, file string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if url, ok := s.uploaded[file]; ok {
		return url, nil
	}
	path := filepath.Join(s.dir, filepath.Base(file))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	key := s.todoID + "/" + filepath.Base(file)
	url, err := s.uploader.Upload(ctx, key, mime.TypeByExtension(filepath.Ext(file)), data)
	if err != nil {
		return "", err
	}
	s.uploaded[file] = url
	return url, nil
}

// Release removes the spool directory.
func (s *Spool) Release() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("images: release %s: %w", s.dir, err)
	}
	return nil
}
