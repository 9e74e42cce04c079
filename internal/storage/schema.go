package storage

const schema = `
-- A single key-value table backs the whole dataset. Every key holds a JSON
-- document (or a bare string for the scalar sync-metadata keys), readable
-- and writable independently of the others.
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);
`
