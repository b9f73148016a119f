package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/logger"
)

// Uploader splits a file into chunk frames and sends them over the
// messaging channel at a bounded rate.
type Uploader struct {
	send      func(frame any) error
	chunkSize int
	limiter   *rate.Limiter
	logger    *logger.Logger
	events    chan<- events.Event
}

func NewUploader(send func(frame any) error, chunkSize, chunksPerSecond int, log *logger.Logger, out chan<- events.Event) *Uploader {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	limit := rate.Inf
	if chunksPerSecond > 0 {
		limit = rate.Limit(chunksPerSecond)
	}
	return &Uploader{
		send:      send,
		chunkSize: chunkSize,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    log,
		events:    out,
	}
}

// Upload streams path to receiverID and returns the file id used on the
// wire. The server reports its own progress under the same id.
func (u *Uploader) Upload(ctx context.Context, senderID, receiverID, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", errors.New("path is a directory")
	}
	if info.Size() == 0 {
		return "", errors.New("file is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	name := filepath.Base(path)
	mimeType := "application/octet-stream"
	if mt, err := mimetype.DetectReader(file); err == nil {
		mimeType = mt.String()
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	u.logger.Info("uploading %s (%s, %d bytes)", name, mimeType, info.Size())

	total := int((info.Size() + int64(u.chunkSize) - 1) / int64(u.chunkSize))
	fileID := uuid.New().String()
	started := time.Now()
	progress := func(sent int64, done bool) {
		emit(u.events, events.Event{
			Timestamp: time.Now(),
			Progress: &events.ProgressState{
				ID:        fileID,
				Label:     name,
				MimeType:  mimeType,
				Path:      path,
				Peer:      receiverID,
				Current:   sent,
				Total:     info.Size(),
				Done:      done,
				StartedAt: started,
				UpdatedAt: time.Now(),
			},
		})
	}

	buf := make([]byte, u.chunkSize)
	var sent int64
	for index := 0; index < total; index++ {
		if err := u.limiter.Wait(ctx); err != nil {
			return fileID, err
		}
		n, err := io.ReadFull(file, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return fileID, err
		}
		if n == 0 {
			return fileID, fmt.Errorf("%s shrank during upload", name)
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		frame := messageFrame{
			Type:        frameSendFileChunk,
			SenderID:    senderID,
			ReceiverID:  receiverID,
			FileID:      fileID,
			FileName:    name,
			ChunkIndex:  index,
			TotalChunks: total,
			ChunkData:   chunk,
		}
		if err := u.send(frame); err != nil {
			return fileID, fmt.Errorf("chunk %d/%d: %w", index+1, total, err)
		}
		sent += int64(n)
		progress(sent, false)
	}
	progress(info.Size(), true)
	return fileID, nil
}
