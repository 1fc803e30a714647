package history

// Schema is the DDL of the run history.
const Schema = `
CREATE TABLE IF NOT EXISTS monitor_runs (
    run_id        TEXT PRIMARY KEY,
    target_url    TEXT NOT NULL,
    expected      TEXT NOT NULL,
    loops         INTEGER NOT NULL,
    anomaly_count INTEGER NOT NULL DEFAULT 0,
    started_at    INTEGER NOT NULL,
    finished_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_runs_started ON monitor_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS monitor_entries (
    run_id        TEXT NOT NULL,
    iteration     INTEGER NOT NULL,
    observed      TEXT NOT NULL DEFAULT '[]',
    anomaly       INTEGER NOT NULL,
    anomaly_count INTEGER NOT NULL,
    ts            INTEGER NOT NULL,
    error         TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, iteration),
    FOREIGN KEY (run_id) REFERENCES monitor_runs(run_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS examinations (
    run_id       TEXT PRIMARY KEY,
    base_id      TEXT NOT NULL,
    table_id     TEXT NOT NULL,
    view         TEXT NOT NULL DEFAULT '',
    result_field TEXT NOT NULL,
    records      INTEGER NOT NULL,
    passed       INTEGER NOT NULL,
    failed       INTEGER NOT NULL,
    results      TEXT NOT NULL DEFAULT '[]',
    started_at   INTEGER NOT NULL,
    finished_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_outcomes (
    run_id     TEXT NOT NULL,
    idx        INTEGER NOT NULL,
    record_ids TEXT NOT NULL DEFAULT '[]',
    size       INTEGER NOT NULL,
    ok         INTEGER NOT NULL,
    error      TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, idx),
    FOREIGN KEY (run_id) REFERENCES examinations(run_id) ON DELETE CASCADE
);
`
