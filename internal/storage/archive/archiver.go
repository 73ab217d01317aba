package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
)

// Result — итог создания архива.
type Result int

const (
	SuccessfullyCreated Result = iota
	ErrorDeviceFull
	ErrorCanceled
	ErrorContentUnavailable
	ErrorArchiveCreationFailed
	ErrorSecurityCertificate
)

func (r Result) String() string {
	switch r {
	case SuccessfullyCreated:
		return "successfully_created"
	case ErrorDeviceFull:
		return "device_full"
	case ErrorCanceled:
		return "canceled"
	case ErrorContentUnavailable:
		return "content_unavailable"
	case ErrorArchiveCreationFailed:
		return "archive_creation_failed"
	case ErrorSecurityCertificate:
		return "security_certificate"
	default:
		return "unknown"
	}
}

// CreateParams — параметры создания архива.
type CreateParams struct {
	// MaxSize — максимальный размер архива в байтах, 0 без ограничения
	MaxSize int64
}

// CreateCallback получает итог создания архива: URL страницы,
// путь к файлу, заголовок и размер.
type CreateCallback func(result Result, url, filePath, title string, fileSize int64)

// Archiver создаёт архив одной страницы в каталоге dir.
// Колбэк может быть вызван из любой горутины ровно один раз.
type Archiver interface {
	CreateArchive(dir string, params CreateParams, cb CreateCallback)
}

// StreamArchiver сохраняет уже подготовленный снимок страницы из Body.
type StreamArchiver struct {
	Ctx   context.Context
	URL   string
	Title string
	Body  io.Reader
}

// CreateArchive записывает Body в {uuid}.mhtml.
// Паттерн: temp файл → запись → fsync → atomic rename.
func (a *StreamArchiver) CreateArchive(dir string, params CreateParams, cb CreateCallback) {
	go func() {
		result, path, size := a.write(dir, params)
		if result != SuccessfullyCreated {
			path, size = "", 0
		}
		cb(result, a.URL, path, a.Title, size)
	}()
}

func (a *StreamArchiver) write(dir string, params CreateParams) (Result, string, int64) {
	ctx := a.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return ErrorCanceled, "", 0
	}
	if a.Body == nil {
		return ErrorContentUnavailable, "", 0
	}

	fullPath := filepath.Join(dir, uuid.New().String()+Extension)
	tmpPath := fullPath + ".tmp"

	size, err := writeFile(ctx, tmpPath, a.Body, params.MaxSize)
	if err != nil {
		os.Remove(tmpPath)
		return classify(ctx, err), "", 0
	}
	if size == 0 {
		os.Remove(tmpPath)
		return ErrorContentUnavailable, "", 0
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return classify(ctx, err), "", 0
	}
	return SuccessfullyCreated, fullPath, size
}

var errTooLarge = errors.New("архив превышает допустимый размер")

func writeFile(ctx context.Context, path string, body io.Reader, maxSize int64) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	src := io.Reader(&ctxReader{ctx: ctx, r: body})
	if maxSize > 0 {
		src = io.LimitReader(src, maxSize+1)
	}

	size, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if maxSize > 0 && size > maxSize {
		f.Close()
		return 0, errTooLarge
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	return size, nil
}

func classify(ctx context.Context, err error) Result {
	switch {
	case ctx.Err() != nil:
		return ErrorCanceled
	case errors.Is(err, syscall.ENOSPC):
		return ErrorDeviceFull
	default:
		return ErrorArchiveCreationFailed
	}
}

// ctxReader прерывает чтение при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
