package lock

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sync"
	"time"

	"charterops/internal/utils"
)

// MySQL uses GET_LOCK on a pinned connection; the lock lives as long as
// that session, so the connection is held until release.
type MySQL struct {
	DB   *sql.DB
	Wait time.Duration
}

func (m MySQL) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := m.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	wait := m.Wait
	if wait <= 0 {
		wait = DefaultWait
	}
	seconds := int64(math.Ceil(wait.Seconds()))

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, key, seconds).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !got.Valid || got.Int64 != 1 {
		_ = conn.Close()
		return nil, busy(key, errors.New("GET_LOCK timed out"))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := conn.ExecContext(relCtx, `SELECT RELEASE_LOCK(?)`, key); err != nil {
				utils.LogFailure(ctx, "LOCK", "release", err)
			}
			_ = conn.Close()
		})
	}, nil
}
