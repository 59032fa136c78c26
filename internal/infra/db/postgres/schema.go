package postgres

// Schema is the DDL for the pipeline's tables. Applied by the integration
// test harness and the e2e-setup command; production deployments run the same
// statements through their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS generation_jobs (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    requester_id    TEXT NOT NULL,
    operation       TEXT NOT NULL,
    params          JSONB NOT NULL,
    status          TEXT NOT NULL,
    external_ref    TEXT NOT NULL DEFAULT '',
    result_ref      TEXT NOT NULL DEFAULT '',
    last_error      TEXT NOT NULL DEFAULT '',
    message_id      TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL,
    terminal_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_generation_jobs_terminal
    ON generation_jobs (terminal_at)
    WHERE status IN ('completed', 'failed');

CREATE TABLE IF NOT EXISTS conversation_messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    author_id       TEXT NOT NULL,
    kind            TEXT NOT NULL,
    state           TEXT NOT NULL,
    body            TEXT NOT NULL DEFAULT '',
    result_ref      TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_messages_conversation
    ON conversation_messages (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS credit_accounts (
    user_id    TEXT PRIMARY KEY,
    balance    BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS credit_ledger (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    operation  TEXT NOT NULL,
    entry      TEXT NOT NULL,
    amount     BIGINT NOT NULL,
    ref        TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
