package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
)

const selectColumns = `offline_id, creation_time, file_size, last_access_time, access_count,
	client_namespace, client_id, online_url, file_path, expiration_time, title, original_url`

const (
	selectAllSQL = `SELECT ` + selectColumns + ` FROM ` + TableName

	selectByIDSQL = `SELECT ` + selectColumns + ` FROM ` + TableName + ` WHERE offline_id = ?`

	insertSQL = `INSERT OR IGNORE INTO ` + TableName + ` (` + selectColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateSQL = `UPDATE OR IGNORE ` + TableName + ` SET
	online_url = ?, client_namespace = ?, client_id = ?, file_path = ?, file_size = ?,
	creation_time = ?, last_access_time = ?, access_count = ?, expiration_time = ?,
	title = ?, original_url = ?
	WHERE offline_id = ?`

	deleteSQL = `DELETE FROM ` + TableName + ` WHERE offline_id = ?`
)

// toStoreTime переводит время в микросекунды Unix, нулевое время — 0.
func toStoreTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromStoreTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (model.OfflinePageItem, error) {
	var (
		p                            model.OfflinePageItem
		created, accessed, expiresAt int64
	)
	err := row.Scan(
		&p.OfflineID, &created, &p.FileSize, &accessed, &p.AccessCount,
		&p.ClientID.Namespace, &p.ClientID.ID, &p.URL, &p.FilePath,
		&expiresAt, &p.Title, &p.OriginalURL,
	)
	if err != nil {
		return model.OfflinePageItem{}, err
	}
	p.CreationTime = fromStoreTime(created)
	p.LastAccessTime = fromStoreTime(accessed)
	p.ExpirationTime = fromStoreTime(expiresAt)
	return p, nil
}

// ReadAllPages читает все записи таблицы.
func ReadAllPages(ctx context.Context, db *sql.DB) ([]model.OfflinePageItem, error) {
	rows, err := db.QueryContext(ctx, selectAllSQL)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения страниц: %w", err)
	}
	defer rows.Close()

	var pages []model.OfflinePageItem
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора строки: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения страниц: %w", err)
	}
	return pages, nil
}

// InsertPage добавляет запись. Существующая запись с тем же
// offline id не перезаписывается: возвращается StatusAlreadyExists.
func InsertPage(ctx context.Context, db *sql.DB, p model.OfflinePageItem) (ItemActionStatus, error) {
	res, err := db.ExecContext(ctx, insertSQL,
		p.OfflineID, toStoreTime(p.CreationTime), p.FileSize, toStoreTime(p.LastAccessTime),
		p.AccessCount, p.ClientID.Namespace, p.ClientID.ID, p.URL, p.FilePath,
		toStoreTime(p.ExpirationTime), p.Title, p.OriginalURL,
	)
	if err != nil {
		return StatusStoreError, fmt.Errorf("ошибка добавления страницы %d: %w", p.OfflineID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return StatusStoreError, fmt.Errorf("ошибка добавления страницы %d: %w", p.OfflineID, err)
	}
	if n == 0 {
		return StatusAlreadyExists, nil
	}
	return StatusSuccess, nil
}

// UpdatePages обновляет записи в одной транзакции. Запись без
// совпадающего offline id получает StatusNotFound. Любая ошибка SQL,
// включая ошибку фиксации, переводит все элементы в StatusStoreError.
func UpdatePages(ctx context.Context, db *sql.DB, pages []model.OfflinePageItem) (*UpdateResult, error) {
	ids := make([]int64, len(pages))
	for i, p := range pages {
		ids[i] = p.OfflineID
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return newFailedResult(StateLoaded, ids), fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	result := &UpdateResult{StoreState: StateLoaded}
	for _, p := range pages {
		res, err := tx.ExecContext(ctx, updateSQL,
			p.URL, p.ClientID.Namespace, p.ClientID.ID, p.FilePath, p.FileSize,
			toStoreTime(p.CreationTime), toStoreTime(p.LastAccessTime), p.AccessCount,
			toStoreTime(p.ExpirationTime), p.Title, p.OriginalURL, p.OfflineID,
		)
		if err != nil {
			_ = tx.Rollback()
			return newFailedResult(StateLoaded, ids), fmt.Errorf("ошибка обновления страницы %d: %w", p.OfflineID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return newFailedResult(StateLoaded, ids), fmt.Errorf("ошибка обновления страницы %d: %w", p.OfflineID, err)
		}
		if n == 0 {
			result.ItemStatuses = append(result.ItemStatuses, ItemStatus{OfflineID: p.OfflineID, Status: StatusNotFound})
			continue
		}
		result.ItemStatuses = append(result.ItemStatuses, ItemStatus{OfflineID: p.OfflineID, Status: StatusSuccess})
		result.UpdatedItems = append(result.UpdatedItems, p)
	}

	if err := tx.Commit(); err != nil {
		return newFailedResult(StateLoaded, ids), fmt.Errorf("ошибка фиксации обновления: %w", err)
	}
	return result, nil
}

// RemovePages удаляет записи в одной транзакции. Перед удалением
// каждая запись перечитывается, удалённые записи возвращаются
// в UpdatedItems.
func RemovePages(ctx context.Context, db *sql.DB, ids []int64) (*UpdateResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return newFailedResult(StateLoaded, ids), fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	result := &UpdateResult{StoreState: StateLoaded}
	for _, id := range ids {
		page, err := scanPage(tx.QueryRowContext(ctx, selectByIDSQL, id))
		if errors.Is(err, sql.ErrNoRows) {
			result.ItemStatuses = append(result.ItemStatuses, ItemStatus{OfflineID: id, Status: StatusNotFound})
			continue
		}
		if err != nil {
			_ = tx.Rollback()
			return newFailedResult(StateLoaded, ids), fmt.Errorf("ошибка чтения страницы %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, deleteSQL, id); err != nil {
			_ = tx.Rollback()
			return newFailedResult(StateLoaded, ids), fmt.Errorf("ошибка удаления страницы %d: %w", id, err)
		}
		result.ItemStatuses = append(result.ItemStatuses, ItemStatus{OfflineID: id, Status: StatusSuccess})
		result.UpdatedItems = append(result.UpdatedItems, page)
	}

	if err := tx.Commit(); err != nil {
		return newFailedResult(StateLoaded, ids), fmt.Errorf("ошибка фиксации удаления: %w", err)
	}
	return result, nil
}
