// Package attachment uploads local files and turns the stored URL into a
// chat message.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/client/models"
)

type Uploader interface {
	Upload(ctx context.Context, filename, mediaType string, r io.Reader) (string, error)
}

// File is an upload source. MediaType is the declared type, e.g. "image/png".
type File struct {
	Name      string
	MediaType string
	Body      io.Reader
}

type UploadResult struct {
	URL      string
	Category models.Kind
}

// Message builds the non-text chat message that references the upload.
func (r UploadResult) Message(conversationID, senderID, clientID string) models.Message {
	return models.Message{
		ClientID:       clientID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        r.URL,
		Kind:           r.Category,
		Timestamp:      time.Now(),
		Pending:        true,
	}
}

// CategoryFor derives the message kind from a media type prefix.
func CategoryFor(mediaType string) models.Kind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return models.KindImage
	case strings.HasPrefix(mt, "video/"):
		return models.KindVideo
	default:
		return models.KindDocument
	}
}

type Pipeline struct {
	uploader Uploader
}

func NewPipeline(u Uploader) *Pipeline {
	return &Pipeline{uploader: u}
}

// Upload sends f and reports where it was stored. Every failure is an
// *api.UploadError; no message may be sent for a failed upload.
func (p *Pipeline) Upload(ctx context.Context, f File) (UploadResult, error) {
	if f.Body == nil {
		return UploadResult{}, &api.UploadError{Err: errors.New("empty file")}
	}
	url, err := p.uploader.Upload(ctx, f.Name, f.MediaType, f.Body)
	if err != nil {
		var upErr *api.UploadError
		if errors.As(err, &upErr) {
			return UploadResult{}, err
		}
		return UploadResult{}, &api.UploadError{Err: err}
	}
	return UploadResult{URL: url, Category: CategoryFor(f.MediaType)}, nil
}

// OpenFile opens path for upload. The media type comes from the extension,
// falling back to sniffing the first bytes. The caller closes the file.
func OpenFile(path string) (File, *os.File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, nil, fmt.Errorf("open attachment: %w", err)
	}

	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return File{}, nil, fmt.Errorf("stat attachment: %w", err)
	}
	if info.IsDir() {
		fh.Close()
		return File{}, nil, fmt.Errorf("open attachment: %s is a directory", path)
	}

	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mediaType == "" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(fh, head)
		mediaType = http.DetectContentType(head[:n])
		if _, err := fh.Seek(0, io.SeekStart); err != nil {
			fh.Close()
			return File{}, nil, fmt.Errorf("rewind attachment: %w", err)
		}
	}

	return File{Name: filepath.Base(path), MediaType: mediaType, Body: fh}, fh, nil
}
