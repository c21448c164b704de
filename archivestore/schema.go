package archivestore

// Schema is applied by the DB manager at startup. It is portable across
// the sqlite local mode and the postgres server mode.
const Schema = `
	CREATE TABLE IF NOT EXISTS bucket_indices (
	    bucket TEXT PRIMARY KEY,
	    created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS archived_messages (
	    id TEXT PRIMARY KEY,
	    bucket TEXT NOT NULL,
	    payload TEXT NOT NULL,
	    added_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_archived_messages_bucket
	    ON archived_messages (bucket, added_at);
`
