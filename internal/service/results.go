package service

import (
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/archive"
)

// SavePageResult — итог сохранения страницы.
type SavePageResult int

const (
	SaveSuccess SavePageResult = iota
	SaveSkipped
	SaveContentUnavailable
	SaveArchiveCreationFailed
	SaveDeviceFull
	SaveCancelled
	SaveSecurityCertificateError
	SaveAlreadyExists
	SaveStoreFailure
)

func (r SavePageResult) String() string {
	switch r {
	case SaveSuccess:
		return "success"
	case SaveSkipped:
		return "skipped"
	case SaveContentUnavailable:
		return "content_unavailable"
	case SaveArchiveCreationFailed:
		return "archive_creation_failed"
	case SaveDeviceFull:
		return "device_full"
	case SaveCancelled:
		return "cancelled"
	case SaveSecurityCertificateError:
		return "security_certificate_error"
	case SaveAlreadyExists:
		return "already_exists"
	case SaveStoreFailure:
		return "store_failure"
	default:
		return "unknown"
	}
}

// toSavePageResult отображает итог архиватора на итог сохранения.
func toSavePageResult(r archive.Result) SavePageResult {
	switch r {
	case archive.SuccessfullyCreated:
		return SaveSuccess
	case archive.ErrorDeviceFull:
		return SaveDeviceFull
	case archive.ErrorCanceled:
		return SaveCancelled
	case archive.ErrorContentUnavailable:
		return SaveContentUnavailable
	case archive.ErrorArchiveCreationFailed:
		return SaveArchiveCreationFailed
	case archive.ErrorSecurityCertificate:
		return SaveSecurityCertificateError
	default:
		return SaveArchiveCreationFailed
	}
}

// DeletePageResult — итог удаления страниц.
type DeletePageResult int

const (
	DeleteSuccess DeletePageResult = iota
	DeleteDeviceFailure
	DeleteStoreFailure
)

func (r DeletePageResult) String() string {
	switch r {
	case DeleteSuccess:
		return "success"
	case DeleteDeviceFailure:
		return "device_failure"
	case DeleteStoreFailure:
		return "store_failure"
	default:
		return "unknown"
	}
}

// URLSearchMode — по каким адресам искать страницы.
type URLSearchMode int

const (
	// SearchByFinalURLOnly — только по итоговому URL
	SearchByFinalURLOnly URLSearchMode = iota
	// SearchByAllURLs — по итоговому и исходному URL
	SearchByAllURLs
)

// ConsistencyResult — итог проверки согласованности метаданных и файлов.
type ConsistencyResult struct {
	// ExpiredPages — страницы без файла архива, помеченные истёкшими
	ExpiredPages int `json:"expired_pages"`
	// DeletedArchives — файлы архивов без записи метаданных, удалённые с диска
	DeletedArchives int `json:"deleted_archives"`
	// OK — все файловые операции завершились успешно
	OK bool `json:"ok"`
}
