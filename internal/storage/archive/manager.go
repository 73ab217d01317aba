// Пакет archive — файлы архивов offline-страниц на диске.
//
// Manager выполняет файловые операции в собственной фоновой
// последовательности и доставляет результаты в последовательность
// владельца. Archiver создаёт файл архива для одной страницы.
package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/arturkryukov/artsore/offline-pages/internal/sequence"
)

// Extension — расширение файлов архивов.
const Extension = ".mhtml"

// StorageStats — сведения о занятом и свободном месте.
type StorageStats struct {
	// FreeDiskSpace — доступно на томе каталога архивов, байт
	FreeDiskSpace int64
	// TotalArchivesSize — суммарный размер файлов архивов, байт
	TotalArchivesSize int64
}

// Manager — управление каталогом архивов.
type Manager struct {
	dir    string
	owner  *sequence.Runner
	bg     *sequence.Runner
	logger *slog.Logger
}

// NewManager создаёт менеджер каталога dir. Колбэки выполняются в owner.
func NewManager(dir string, owner *sequence.Runner, logger *slog.Logger) *Manager {
	return &Manager{
		dir:    dir,
		owner:  owner,
		bg:     sequence.New("archive_manager", logger),
		logger: logger.With(slog.String("component", "archive_manager")),
	}
}

// Dir возвращает путь к каталогу архивов.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) run(task func() func(), fallback func()) {
	if !m.bg.Post(func() { m.owner.Post(task()) }) {
		m.owner.Post(fallback)
	}
}

// EnsureArchivesDirCreated создаёт каталог архивов, если его нет.
func (m *Manager) EnsureArchivesDirCreated(cb func(error)) {
	m.run(func() func() {
		err := os.MkdirAll(m.dir, 0o750)
		if err != nil {
			err = fmt.Errorf("не удалось создать каталог архивов %s: %w", m.dir, err)
			m.logger.Error("Ошибка создания каталога архивов", slog.String("error", err.Error()))
		}
		return func() { cb(err) }
	}, func() { cb(errors.New("менеджер архивов остановлен")) })
}

// DeleteMultipleArchives удаляет файлы. Отсутствующий файл считается удалённым.
// ok == false, если хотя бы один файл удалить не удалось.
func (m *Manager) DeleteMultipleArchives(paths []string, cb func(ok bool)) {
	paths = append([]string(nil), paths...)
	m.run(func() func() {
		ok := true
		for _, p := range paths {
			if err := deleteArchive(p); err != nil {
				m.logger.Error("Ошибка удаления архива",
					slog.String("path", p),
					slog.String("error", err.Error()),
				)
				ok = false
			}
		}
		return func() { cb(ok) }
	}, func() { cb(false) })
}

func deleteArchive(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", path, err)
	}
	return nil
}

// GetAllArchives возвращает множество абсолютных путей файлов архивов.
// Скрытые и временные файлы пропускаются.
func (m *Manager) GetAllArchives(cb func(map[string]struct{})) {
	m.run(func() func() {
		archives, err := listArchives(m.dir)
		if err != nil {
			m.logger.Error("Ошибка чтения каталога архивов", slog.String("error", err.Error()))
		}
		return func() { cb(archives) }
	}, func() { cb(map[string]struct{}{}) })
}

func listArchives(dir string) (map[string]struct{}, error) {
	archives := make(map[string]struct{})
	entries, err := os.ReadDir(dir)
	if err != nil {
		return archives, fmt.Errorf("ошибка чтения каталога %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || filepath.Ext(name) != Extension {
			continue
		}
		archives[filepath.Join(dir, name)] = struct{}{}
	}
	return archives, nil
}

// GetStorageStats возвращает свободное место тома и размер архивов.
func (m *Manager) GetStorageStats(cb func(StorageStats)) {
	m.run(func() func() {
		stats := m.storageStats()
		return func() { cb(stats) }
	}, func() { cb(StorageStats{}) })
}

func (m *Manager) storageStats() StorageStats {
	var stats StorageStats

	var fs syscall.Statfs_t
	if err := syscall.Statfs(m.dir, &fs); err != nil {
		m.logger.Warn("Ошибка получения свободного места",
			slog.String("dir", m.dir), slog.String("error", err.Error()))
	} else {
		stats.FreeDiskSpace = int64(fs.Bavail) * int64(fs.Bsize)
	}

	archives, _ := listArchives(m.dir)
	for path := range archives {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		stats.TotalArchivesSize += info.Size()
	}
	return stats
}

// Close останавливает фоновую последовательность.
func (m *Manager) Close() {
	m.bg.Stop()
}
