// Package backup dumps the database to a local file and optionally ships the
// file to object storage.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"AlertDesk/pkg/logger"
	"AlertDesk/pkg/storage"
	"AlertDesk/pkg/util"

	mysqldsn "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// Backup 数据库备份任务
type Backup struct {
	Driver string
	DSN    string
	Dir    string
	// Store 不为空时上传备份文件
	Store  storage.Store
	Prefix string

	now func() time.Time
}

func New(driver, dsn, dir string, store storage.Store) *Backup {
	if driver == "" {
		driver = util.DriverSQLite
	}
	return &Backup{Driver: driver, DSN: dsn, Dir: dir, Store: store, Prefix: "backups", now: time.Now}
}

// Run executes one backup and returns the local file path.
func (b *Backup) Run(ctx context.Context) (string, error) {
	stamp := b.now().Format("20060102_150405")
	var (
		dst string
		err error
	)
	switch b.Driver {
	case util.DriverSQLite:
		dst = filepath.Join(b.Dir, fmt.Sprintf("alertdesk_%s.db", stamp))
		err = BackupSQLiteDatabase(SQLitePath(b.DSN), dst)
	case util.DriverMySQL:
		dst = filepath.Join(b.Dir, fmt.Sprintf("alertdesk_%s.sql", stamp))
		err = BackupMySQLDatabase(ctx, b.DSN, dst)
	case util.DriverPG:
		dst = filepath.Join(b.Dir, fmt.Sprintf("alertdesk_%s.sql", stamp))
		err = BackupPostgresDatabase(ctx, b.DSN, dst)
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER: %s", b.Driver)
	}
	if err != nil {
		return "", err
	}

	if b.Store != nil {
		if err := b.upload(ctx, dst); err != nil {
			return dst, fmt.Errorf("upload backup: %w", err)
		}
	}
	return dst, nil
}

func (b *Backup) upload(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	key := path.Join(b.Prefix, filepath.Base(file))
	if err := b.Store.Write(ctx, key, f, st.Size()); err != nil {
		return err
	}
	logger.Info("backup uploaded", zap.String("key", key), zap.String("url", b.Store.PublicURL(key)))
	return nil
}

// SQLitePath strips the file: scheme and query options from a sqlite DSN.
func SQLitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

func ensureDir(dst string) error {
	backupDir := filepath.Dir(dst)
	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		if err := os.MkdirAll(backupDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create backup directory: %v", err)
		}
	}
	return nil
}

// BackupSQLiteDatabase 执行 SQLite 数据库的备份
func BackupSQLiteDatabase(src string, dst string) error {
	if src == "" || strings.Contains(src, ":memory:") {
		return fmt.Errorf("in-memory sqlite database cannot be backed up")
	}
	if err := ensureDir(dst); err != nil {
		return err
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening source file: %v", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %v", err)
	}
	defer destFile.Close()

	if _, err = io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("error copying data: %v", err)
	}

	logger.Info("sqlite backup completed", zap.String("file", dst))
	return nil
}

// BackupMySQLDatabase 执行 MySQL 数据库的备份
func BackupMySQLDatabase(ctx context.Context, dsn, dst string) error {
	cfg, err := mysqldsn.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("parse mysql dsn: %v", err)
	}
	if err := ensureDir(dst); err != nil {
		return err
	}
	host, port := cfg.Addr, "3306"
	if h, p, ok := strings.Cut(cfg.Addr, ":"); ok {
		host, port = h, p
	}

	args := []string{"--single-transaction", "-h", host, "-P", port, "-u", cfg.User, cfg.DBName}
	// 密码走环境变量，避免出现在进程列表中
	return dumpTo(ctx, dst, []string{"MYSQL_PWD=" + cfg.Passwd}, "mysqldump", args...)
}

// BackupPostgresDatabase 执行 PostgreSQL 数据库的备份
func BackupPostgresDatabase(ctx context.Context, dsn, dst string) error {
	if err := ensureDir(dst); err != nil {
		return err
	}
	return dumpTo(ctx, dst, nil, "pg_dump", "--dbname="+dsn)
}

func dumpTo(ctx context.Context, dst string, env []string, name string, args ...string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %v", err)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = out
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("%s failed: %v: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	logger.Info("database backup completed", zap.String("tool", name), zap.String("file", dst))
	return nil
}
