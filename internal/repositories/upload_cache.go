package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"yotoup/internal/yoto"
)

// UploadCacheRepository records completed remote transcodes keyed by the
// source file's content hash. A hit means the audio bytes are already on the
// server and the PUT plus transcode poll can be skipped.
type UploadCacheRepository struct {
	db *sql.DB
}

// NewUploadCacheRepository creates a new [UploadCacheRepository] with the given database connection
func NewUploadCacheRepository(db *sql.DB) *UploadCacheRepository {
	return &UploadCacheRepository{db: db}
}

// Put records a completed transcode for the given content hash.
// Re-inserting the same hash overwrites the previous record.
func (r *UploadCacheRepository) Put(sha string, transcode *yoto.Transcode) error {
	query := `
		INSERT INTO upload_cache (sha256, transcoded_sha256, format, duration, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sha256) DO UPDATE SET
			transcoded_sha256 = excluded.transcoded_sha256,
			format = excluded.format,
			duration = excluded.duration,
			created_at = excluded.created_at
	`

	_, err := r.db.Exec(query, sha, transcode.SHA256, transcode.Format, transcode.Duration, time.Now())
	if err != nil {
		return fmt.Errorf("failed to cache transcode: %w", err)
	}
	return nil
}

// Get returns the cached transcode for a content hash, or nil on a miss.
func (r *UploadCacheRepository) Get(sha string) (*yoto.Transcode, error) {
	query := `
		SELECT transcoded_sha256, format, duration
		FROM upload_cache
		WHERE sha256 = ?
	`

	var transcode yoto.Transcode
	err := r.db.QueryRow(query, sha).Scan(&transcode.SHA256, &transcode.Format, &transcode.Duration)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upload cache: %w", err)
	}
	return &transcode, nil
}

// Prune deletes cache entries older than the given age and reports how many
// were removed.
func (r *UploadCacheRepository) Prune(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	result, err := r.db.Exec("DELETE FROM upload_cache WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune upload cache: %w", err)
	}
	return result.RowsAffected()
}
