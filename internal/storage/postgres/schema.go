package postgres

const schema = `
CREATE TABLE IF NOT EXISTS error_analyses (
    id TEXT PRIMARY KEY,
    error_id TEXT NOT NULL,
    message TEXT NOT NULL,
    stack TEXT NOT NULL DEFAULT '',
    classification TEXT NOT NULL,
    severity TEXT NOT NULL CHECK (severity IN ('critical', 'high', 'medium', 'low')),
    context JSONB NOT NULL DEFAULT '{}',
    keywords JSONB NOT NULL DEFAULT '[]',
    remediation_attempted BOOLEAN NOT NULL DEFAULT FALSE,
    remediation_success BOOLEAN NOT NULL DEFAULT FALSE,
    remediation_result JSONB NOT NULL DEFAULT '{}',
    ai_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    ai_diagnosis JSONB NOT NULL DEFAULT 'null',
    related_issues JSONB NOT NULL DEFAULT '[]',
    related_count INTEGER NOT NULL DEFAULT 0,
    recommendations JSONB NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'new',
    resolution TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_error_analyses_created ON error_analyses(created_at);
CREATE INDEX IF NOT EXISTS idx_error_analyses_classification ON error_analyses(classification);
CREATE INDEX IF NOT EXISTS idx_error_analyses_severity ON error_analyses(severity);
CREATE INDEX IF NOT EXISTS idx_error_analyses_status ON error_analyses(status);
CREATE INDEX IF NOT EXISTS idx_error_analyses_keywords ON error_analyses USING GIN (keywords);
`
