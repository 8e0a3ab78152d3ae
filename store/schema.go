package store

// schemaSQL is the DDL for all tables. Vertices and edges form the
// property graph; source_files tracks every processed input file so
// reprocessing can skip unchanged content.
const schemaSQL = `
-- Source file registry with hash-based change detection
CREATE TABLE IF NOT EXISTS source_files (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    kind TEXT NOT NULL,
    meeting_date TEXT,
    content_hash TEXT NOT NULL,
    status TEXT DEFAULT 'pending',
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Property graph: vertices keyed by a stable string id
CREATE TABLE IF NOT EXISTS vertices (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    properties JSON NOT NULL DEFAULT '{}',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Property graph: typed, directed edges
CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY,
    from_id TEXT NOT NULL REFERENCES vertices(id) ON DELETE CASCADE,
    to_id TEXT NOT NULL REFERENCES vertices(id) ON DELETE CASCADE,
    edge_type TEXT NOT NULL,
    properties JSON NOT NULL DEFAULT '{}',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(from_id, edge_type, to_id)
);

-- Query audit log
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    request_id TEXT,
    query TEXT NOT NULL,
    answer TEXT,
    method TEXT,
    enhanced INTEGER DEFAULT 0,
    elapsed_ms INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_source_files_date ON source_files(meeting_date);
CREATE INDEX IF NOT EXISTS idx_source_files_hash ON source_files(content_hash);
CREATE INDEX IF NOT EXISTS idx_vertices_label ON vertices(label);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(edge_type);
`
