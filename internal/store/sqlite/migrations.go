package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS email_accounts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id         TEXT NOT NULL,
    account_uuid    TEXT NOT NULL UNIQUE,
    provider        TEXT NOT NULL DEFAULT 'gmail',
    email_address   TEXT NOT NULL,
    display_name    TEXT,
    access_token    TEXT,
    refresh_token   TEXT NOT NULL,
    token_expiry    TEXT,
    granted_scopes  TEXT,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    last_sync_at    TEXT,
    sync_cursor     TEXT,
    connected_at    TEXT NOT NULL,
    updated_at      TEXT NOT NULL,
    UNIQUE (user_id, email_address)
);

CREATE TABLE IF NOT EXISTS email_messages (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    message_uuid        TEXT NOT NULL UNIQUE,
    account_id          INTEGER NOT NULL REFERENCES email_accounts(id) ON DELETE CASCADE,
    external_message_id TEXT NOT NULL,
    thread_id           TEXT,
    sender_email        TEXT NOT NULL,
    sender_name         TEXT,
    recipients          TEXT,
    cc_recipients       TEXT,
    bcc_recipients      TEXT,
    subject             TEXT,
    snippet             TEXT,
    body_plain          TEXT,
    body_html           TEXT,
    date_sent           TEXT NOT NULL,
    date_received       TEXT,
    is_read             BOOLEAN NOT NULL DEFAULT FALSE,
    is_important        BOOLEAN NOT NULL DEFAULT FALSE,
    has_attachments     BOOLEAN NOT NULL DEFAULT FALSE,
    attachment_count    INTEGER NOT NULL DEFAULT 0,
    folder_name         TEXT,
    size_bytes          INTEGER,
    message_format      TEXT,
    is_processed        BOOLEAN NOT NULL DEFAULT FALSE,
    processing_error    TEXT,
    created_at          TEXT NOT NULL,
    UNIQUE (account_id, external_message_id)
);

CREATE TABLE IF NOT EXISTS message_labels (
    message_id  INTEGER NOT NULL REFERENCES email_messages(id) ON DELETE CASCADE,
    label_id    TEXT NOT NULL,
    PRIMARY KEY (message_id, label_id)
);

CREATE TABLE IF NOT EXISTS message_embeddings (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id        INTEGER NOT NULL REFERENCES email_messages(id) ON DELETE CASCADE,
    field_name        TEXT NOT NULL,
    embedding_model   TEXT NOT NULL,
    vector_id         TEXT NOT NULL,
    qdrant_collection TEXT NOT NULL,
    vector_dimensions INTEGER NOT NULL,
    embedding_version TEXT NOT NULL DEFAULT 'v1',
    created_at        TEXT NOT NULL,
    UNIQUE (message_id, field_name, embedding_model)
);

CREATE TABLE IF NOT EXISTS vector_collections (
    name        TEXT PRIMARY KEY,
    dimensions  INTEGER NOT NULL,
    distance    TEXT NOT NULL DEFAULT 'cosine',
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vectors (
    collection  TEXT NOT NULL REFERENCES vector_collections(name) ON DELETE CASCADE,
    id          TEXT NOT NULL,
    message_id  INTEGER NOT NULL,
    account_id  INTEGER NOT NULL,
    embedding   BLOB NOT NULL,
    payload     TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS email_drafts (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    draft_uuid          TEXT NOT NULL UNIQUE,
    account_id          INTEGER NOT NULL REFERENCES email_accounts(id) ON DELETE CASCADE,
    original_message_id INTEGER REFERENCES email_messages(id) ON DELETE SET NULL,
    recipient_email     TEXT NOT NULL,
    subject             TEXT NOT NULL,
    body_text           TEXT NOT NULL,
    body_html           TEXT,
    draft_type          TEXT NOT NULL,
    tone                TEXT,
    length              TEXT,
    ai_model_used       TEXT,
    generation_prompt   TEXT,
    ai_confidence       REAL,
    edit_count          INTEGER NOT NULL DEFAULT 0,
    approval_status     TEXT NOT NULL DEFAULT 'pending',
    is_sent             BOOLEAN NOT NULL DEFAULT FALSE,
    sent_at             TEXT,
    sent_message_id     TEXT,
    safety_check_passed BOOLEAN NOT NULL DEFAULT FALSE,
    safety_issues       TEXT,
    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS importance_scores (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id        INTEGER NOT NULL REFERENCES email_messages(id) ON DELETE CASCADE,
    overall_score     REAL NOT NULL,
    urgency_score     REAL,
    relevance_score   REAL,
    sender_importance REAL,
    scoring_factors   TEXT,
    scoring_reasons   TEXT,
    model_used        TEXT,
    model_version     TEXT,
    calculated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_digests (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    digest_uuid             TEXT NOT NULL UNIQUE,
    user_id                 TEXT NOT NULL,
    digest_date             TEXT NOT NULL,
    summary_text            TEXT NOT NULL,
    summary_html            TEXT,
    total_emails            INTEGER NOT NULL DEFAULT 0,
    important_emails        INTEGER NOT NULL DEFAULT 0,
    unread_emails           INTEGER NOT NULL DEFAULT 0,
    action_items            TEXT,
    pending_replies         TEXT,
    delivery_method         TEXT,
    is_delivered            BOOLEAN NOT NULL DEFAULT FALSE,
    delivered_at            TEXT,
    ai_model_used           TEXT,
    generation_time_seconds REAL,
    created_at              TEXT NOT NULL,
    UNIQUE (user_id, digest_date)
);

CREATE TABLE IF NOT EXISTS system_logs (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    log_level         TEXT NOT NULL,
    event_type        TEXT NOT NULL,
    message           TEXT NOT NULL,
    user_id           TEXT,
    account_id        INTEGER,
    session_id        TEXT,
    execution_time_ms REAL,
    meta_data         TEXT,
    stack_trace       TEXT,
    created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON email_accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_messages_account_date ON email_messages(account_id, date_sent DESC);
CREATE INDEX IF NOT EXISTS idx_messages_processed ON email_messages(is_processed);
CREATE INDEX IF NOT EXISTS idx_message_labels_label ON message_labels(label_id);
CREATE INDEX IF NOT EXISTS idx_vectors_message ON vectors(collection, message_id);
CREATE INDEX IF NOT EXISTS idx_drafts_account_status ON email_drafts(account_id, approval_status);
CREATE INDEX IF NOT EXISTS idx_scores_message ON importance_scores(message_id, calculated_at DESC);
CREATE INDEX IF NOT EXISTS idx_logs_event ON system_logs(event_type, created_at DESC);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject, snippet, sender_email, sender_name,
    content='email_messages', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON email_messages BEGIN
    INSERT INTO messages_fts(rowid, subject, snippet, sender_email, sender_name)
    VALUES (new.id, new.subject, new.snippet, new.sender_email, new.sender_name);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON email_messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, snippet, sender_email, sender_name)
    VALUES ('delete', old.id, old.subject, old.snippet, old.sender_email, old.sender_name);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE OF subject, snippet, sender_email, sender_name ON email_messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, snippet, sender_email, sender_name)
    VALUES ('delete', old.id, old.subject, old.snippet, old.sender_email, old.sender_name);
    INSERT INTO messages_fts(rowid, subject, snippet, sender_email, sender_name)
    VALUES (new.id, new.subject, new.snippet, new.sender_email, new.sender_name);
END;
`
