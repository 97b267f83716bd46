package sqlite

// Timestamps are unix milliseconds (UTC) so range scans and day grouping
// stay in integer space
const schema = `
CREATE TABLE IF NOT EXISTS error_analyses (
    id TEXT PRIMARY KEY,
    error_id TEXT NOT NULL,
    message TEXT NOT NULL,
    stack TEXT NOT NULL DEFAULT '',
    classification TEXT NOT NULL,
    severity TEXT NOT NULL CHECK (severity IN ('critical', 'high', 'medium', 'low')),
    context TEXT NOT NULL DEFAULT '{}',
    keywords TEXT NOT NULL DEFAULT '[]',
    remediation_attempted INTEGER NOT NULL DEFAULT 0,
    remediation_success INTEGER NOT NULL DEFAULT 0,
    remediation_result TEXT NOT NULL DEFAULT '{}',
    ai_enabled INTEGER NOT NULL DEFAULT 0,
    ai_diagnosis TEXT NOT NULL DEFAULT 'null',
    related_issues TEXT NOT NULL DEFAULT '[]',
    related_count INTEGER NOT NULL DEFAULT 0,
    recommendations TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'new',
    resolution TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    resolved_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_error_analyses_created ON error_analyses(created_at);
CREATE INDEX IF NOT EXISTS idx_error_analyses_classification ON error_analyses(classification);
CREATE INDEX IF NOT EXISTS idx_error_analyses_severity ON error_analyses(severity);
CREATE INDEX IF NOT EXISTS idx_error_analyses_status ON error_analyses(status);
`
