package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	// TableName — таблица метаданных страниц
	TableName = "offlinepages_v1"
	// tempTableName — временная таблица при пересоздании схемы
	tempTableName = "temp_offlinepages_v1"
)

// createTableSQL — актуальная схема таблицы.
const createTableSQL = `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	offline_id INTEGER PRIMARY KEY NOT NULL,
	creation_time INTEGER NOT NULL,
	file_size INTEGER NOT NULL,
	last_access_time INTEGER NOT NULL,
	access_count INTEGER NOT NULL,
	client_namespace VARCHAR NOT NULL,
	client_id VARCHAR NOT NULL,
	online_url VARCHAR NOT NULL,
	file_path VARCHAR NOT NULL,
	expiration_time INTEGER NOT NULL DEFAULT 0,
	title VARCHAR NOT NULL DEFAULT '',
	original_url VARCHAR NOT NULL DEFAULT ''
)`

// Общие столбцы исторических схем и актуальной схемы.
const (
	columnsSinceM52 = "offline_id, creation_time, file_size, last_access_time, " +
		"access_count, client_namespace, client_id, online_url, file_path"
	columnsSinceM53 = columnsSinceM52 + ", expiration_time"
	columnsSinceM54 = columnsSinceM53 + ", title"
)

// EnsureCurrentSchema создаёт таблицу или приводит существующую
// к актуальной схеме. Выполняется в одной транзакции: при ошибке
// изменения откатываются полностью.
func EnsureCurrentSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции схемы: %w", err)
	}

	if err := ensureSchemaTx(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации схемы: %w", err)
	}
	return nil
}

func ensureSchemaTx(ctx context.Context, tx *sql.Tx) error {
	exists, err := tableExists(ctx, tx, TableName)
	if err != nil {
		return err
	}
	if !exists {
		if _, err := tx.ExecContext(ctx, createTableSQL); err != nil {
			return fmt.Errorf("ошибка создания таблицы %s: %w", TableName, err)
		}
		return nil
	}

	columns, err := tableColumns(ctx, tx, TableName)
	if err != nil {
		return err
	}

	// Порядок проверок важен: первое совпадение определяет поколение схемы.
	switch {
	case !columns["expiration_time"]:
		return upgradeFrom(ctx, tx, columnsSinceM52)
	case !columns["title"]:
		return upgradeFrom(ctx, tx, columnsSinceM53)
	case columns["offline_url"]:
		return upgradeFrom(ctx, tx, columnsSinceM54)
	case !columns["original_url"]:
		return upgradeFrom(ctx, tx, columnsSinceM54)
	default:
		return nil
	}
}

// upgradeFrom пересоздаёт таблицу с актуальной схемой,
// перенося значения столбцов columns.
func upgradeFrom(ctx context.Context, tx *sql.Tx, columns string) error {
	steps := []string{
		`ALTER TABLE ` + TableName + ` RENAME TO ` + tempTableName,
		createTableSQL,
		`INSERT INTO ` + TableName + ` (` + columns + `) SELECT ` + columns + ` FROM ` + tempTableName,
		`DROP TABLE IF EXISTS ` + tempTableName,
	}
	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка миграции схемы: %w", err)
		}
	}
	return nil
}

func tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки таблицы %s: %w", name, err)
	}
	return n > 0, nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, name string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, name)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения столбцов %s: %w", name, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("ошибка чтения столбцов %s: %w", name, err)
		}
		columns[col] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения столбцов %s: %w", name, err)
	}
	return columns, nil
}
