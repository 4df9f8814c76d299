package sqlitestore

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id   TEXT PRIMARY KEY,
	rev  TEXT NOT NULL,
	body TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS view_rows (
	view_name   TEXT NOT NULL,
	key_present INTEGER NOT NULL,
	row_key     TEXT,
	doc_id      TEXT NOT NULL,
	rev         TEXT NOT NULL,
	row_value   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS view_rows_by_key ON view_rows (view_name, key_present, row_key, doc_id);
CREATE INDEX IF NOT EXISTS view_rows_by_doc ON view_rows (view_name, doc_id);

CREATE TABLE IF NOT EXISTS view_state (
	view_name TEXT PRIMARY KEY,
	stale     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS changes (
	seq    INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id TEXT NOT NULL,
	rev    TEXT NOT NULL
);
`

type documentRecord struct {
	ID   string `db:"id"`
	Rev  string `db:"rev"`
	Body string `db:"body"`
}

type rowRecord struct {
	DocID      string  `db:"doc_id"`
	Rev        string  `db:"rev"`
	KeyPresent bool    `db:"key_present"`
	Key        *string `db:"row_key"`
	Value      string  `db:"row_value"`
	Body       *string `db:"body"`
}

type changeRecord struct {
	Seq   int64  `db:"seq"`
	DocID string `db:"doc_id"`
	Rev   string `db:"rev"`
}

type stateRecord struct {
	View  string `db:"view_name"`
	Stale bool   `db:"stale"`
}
