package sqlite

// schema is applied in full on every Open; every statement is idempotent
// so re-opening an existing database is safe. Schema migration beyond
// this single additive DDL block is out of scope (see SPEC_FULL.md §4.1).
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                  TEXT PRIMARY KEY,
	project_id          TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	parent_task_id      TEXT REFERENCES tasks(id) ON DELETE CASCADE,
	name                TEXT NOT NULL,
	description         TEXT,
	context             TEXT,
	task_type           TEXT NOT NULL CHECK (task_type IN ('feature','bug','tech_debt')),
	status              TEXT NOT NULL DEFAULT 'todo' CHECK (status IN ('todo','doing','done','wont_do')),
	points              INTEGER CHECK (points IS NULL OR (points >= 0 AND points <= 10)),
	points_breakdown    TEXT,
	sizing_confidence   INTEGER CHECK (sizing_confidence IS NULL OR (sizing_confidence >= 0 AND sizing_confidence <= 5)),
	needs_refinement    INTEGER NOT NULL DEFAULT 0,
	refinement_notes    TEXT,
	context_captured_at TEXT,
	position            INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_points ON tasks(points);

CREATE TABLE IF NOT EXISTS task_locks (
	id                 TEXT PRIMARY KEY,
	task_id            TEXT NOT NULL UNIQUE REFERENCES tasks(id) ON DELETE CASCADE,
	caller_label       TEXT NOT NULL,
	lock_purpose       TEXT NOT NULL CHECK (lock_purpose IN ('sizing','breakdown','refinement','implementation')),
	acquired_at        TEXT NOT NULL,
	last_heartbeat_at  TEXT,
	expires_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_locks_expiry ON task_locks(expires_at);

CREATE TABLE IF NOT EXISTS work_log_entries (
	id          TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	author      TEXT,
	operation   TEXT NOT NULL CHECK (operation IN ('sizing','breakdown','refinement','implementation','note')),
	content     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_worklog_task ON work_log_entries(task_id, created_at);

CREATE TABLE IF NOT EXISTS task_commits (
	id            TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	author        TEXT,
	commit_hash   TEXT NOT NULL,
	message       TEXT,
	committed_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_commits_task ON task_commits(task_id);

CREATE TABLE IF NOT EXISTS idempotency_records (
	id           TEXT PRIMARY KEY,
	key          TEXT NOT NULL UNIQUE,
	status_code  INTEGER NOT NULL,
	response_body TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	expires_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_idempotency_expires ON idempotency_records(expires_at);

-- child_position_counters backs the atomic "next sibling position" RETURNING
-- idiom used by breakdown (create-task uses MAX(position)+1 instead), mirroring the teacher's
-- child_counters ON CONFLICT DO UPDATE pattern.
CREATE TABLE IF NOT EXISTS child_position_counters (
	scope_key   TEXT PRIMARY KEY,
	next_position INTEGER NOT NULL DEFAULT 0
);
`
