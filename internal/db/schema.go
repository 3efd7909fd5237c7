package db

// Only delivery metadata is kept here. Event payloads are never written to
// disk.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS deliveries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  delivery_id TEXT NOT NULL UNIQUE,
  created_at INTEGER NOT NULL,
  path TEXT NOT NULL,
  status TEXT NOT NULL,
  status_code INTEGER,
  events INTEGER NOT NULL DEFAULT 0,
  bytes INTEGER NOT NULL DEFAULT 0,
  attempts INTEGER NOT NULL DEFAULT 0,
  error_message TEXT,
  duration_ms INTEGER
);

CREATE TABLE IF NOT EXISTS rejections (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at INTEGER NOT NULL,
  event_type TEXT NOT NULL,
  reason TEXT NOT NULL,
  detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries (created_at);
CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries (status, created_at);
CREATE INDEX IF NOT EXISTS idx_rejections_created ON rejections (created_at);
`
