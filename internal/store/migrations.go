package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: `
			CREATE TABLE conversations (
				id                TEXT PRIMARY KEY,
				customer_id       TEXT NOT NULL,
				customer_name     TEXT NOT NULL DEFAULT '',
				assigned_agent_id TEXT NOT NULL DEFAULT '',
				status            TEXT NOT NULL DEFAULT 'unassigned',
				message_count     INTEGER NOT NULL DEFAULT 0,
				created_at        TEXT NOT NULL,
				updated_at        TEXT NOT NULL
			);

			CREATE INDEX idx_conversations_updated ON conversations (updated_at);

			CREATE TABLE messages (
				conversation_id TEXT NOT NULL REFERENCES conversations(id),
				seq             INTEGER NOT NULL,
				from_id         TEXT NOT NULL,
				from_name       TEXT NOT NULL DEFAULT '',
				to_id           TEXT NOT NULL DEFAULT '',
				role            TEXT NOT NULL,
				text            TEXT NOT NULL,
				timestamp       TEXT NOT NULL,
				PRIMARY KEY (conversation_id, seq)
			);
		`,
	},
	{
		Version: 2,
		Name:    "create message search index with FTS5",
		SQL: `
			CREATE VIRTUAL TABLE messages_fts USING fts5(
				text,
				content='messages',
				content_rowid='rowid'
			);

			CREATE TRIGGER messages_ai AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, text) VALUES (new.rowid, new.text);
			END;
		`,
	},
}
