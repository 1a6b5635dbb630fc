package sqlstore

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sites (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	site_id    TEXT NOT NULL REFERENCES sites(id),
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS racks (
	id               TEXT PRIMARY KEY,
	room_id          TEXT NOT NULL REFERENCES rooms(id),
	name             TEXT NOT NULL,
	u_height         INTEGER NOT NULL,
	power_kw_limit   REAL NOT NULL DEFAULT 0,
	current_power_kw REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS devices (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	rack_id              TEXT NOT NULL REFERENCES racks(id),
	u_start              INTEGER NOT NULL,
	u_height             INTEGER NOT NULL,
	status_4d            TEXT NOT NULL,
	power_kw             REAL NOT NULL DEFAULT 0,
	logical_equipment_id TEXT,
	device_type_id       TEXT,
	is_active            INTEGER NOT NULL DEFAULT 1,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS equipment_history (
	id                TEXT PRIMARY KEY,
	device_id         TEXT NOT NULL REFERENCES devices(id),
	device_name       TEXT NOT NULL,
	change_set_id     TEXT NOT NULL,
	modification_type TEXT NOT NULL,
	target_phase      TEXT,
	scheduled_date    DATETIME,
	is_applied        INTEGER NOT NULL DEFAULT 0,
	from_location     TEXT,
	to_location       TEXT,
	status_change     TEXT,
	notes             TEXT,
	user_id           TEXT NOT NULL,
	idempotency_key   TEXT,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS anomalies (
	id           TEXT PRIMARY KEY,
	site_id      TEXT NOT NULL REFERENCES sites(id),
	anomaly_type TEXT NOT NULL,
	severity     TEXT NOT NULL,
	status       TEXT NOT NULL,
	assigned_to  TEXT,
	notes        TEXT,
	device_ids   TEXT,
	identity_key TEXT NOT NULL,
	expected     TEXT,
	observed     TEXT,
	fingerprint  TEXT UNIQUE,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rooms_site ON rooms(site_id);
CREATE INDEX IF NOT EXISTS idx_racks_room ON racks(room_id);
CREATE INDEX IF NOT EXISTS idx_devices_rack ON devices(rack_id);
CREATE INDEX IF NOT EXISTS idx_devices_leid ON devices(logical_equipment_id);
CREATE INDEX IF NOT EXISTS idx_history_device ON equipment_history(device_id);
CREATE INDEX IF NOT EXISTS idx_history_idempotency ON equipment_history(idempotency_key);
CREATE INDEX IF NOT EXISTS idx_anomalies_site_status ON anomalies(site_id, status);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sites (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	site_id    TEXT NOT NULL REFERENCES sites(id),
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS racks (
	id               TEXT PRIMARY KEY,
	room_id          TEXT NOT NULL REFERENCES rooms(id),
	name             TEXT NOT NULL,
	u_height         INTEGER NOT NULL,
	power_kw_limit   DOUBLE PRECISION NOT NULL DEFAULT 0,
	current_power_kw DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS devices (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	rack_id              TEXT NOT NULL REFERENCES racks(id),
	u_start              INTEGER NOT NULL,
	u_height             INTEGER NOT NULL,
	status_4d            TEXT NOT NULL,
	power_kw             DOUBLE PRECISION NOT NULL DEFAULT 0,
	logical_equipment_id TEXT,
	device_type_id       TEXT,
	is_active            BOOLEAN NOT NULL DEFAULT TRUE,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS equipment_history (
	id                TEXT PRIMARY KEY,
	device_id         TEXT NOT NULL REFERENCES devices(id),
	device_name       TEXT NOT NULL,
	change_set_id     TEXT NOT NULL,
	modification_type TEXT NOT NULL,
	target_phase      TEXT,
	scheduled_date    TIMESTAMPTZ,
	is_applied        BOOLEAN NOT NULL DEFAULT FALSE,
	from_location     TEXT,
	to_location       TEXT,
	status_change     TEXT,
	notes             TEXT,
	user_id           TEXT NOT NULL,
	idempotency_key   TEXT,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS anomalies (
	id           TEXT PRIMARY KEY,
	site_id      TEXT NOT NULL REFERENCES sites(id),
	anomaly_type TEXT NOT NULL,
	severity     TEXT NOT NULL,
	status       TEXT NOT NULL,
	assigned_to  TEXT,
	notes        TEXT,
	device_ids   TEXT,
	identity_key TEXT NOT NULL,
	expected     TEXT,
	observed     TEXT,
	fingerprint  TEXT UNIQUE,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rooms_site ON rooms(site_id);
CREATE INDEX IF NOT EXISTS idx_racks_room ON racks(room_id);
CREATE INDEX IF NOT EXISTS idx_devices_rack ON devices(rack_id);
CREATE INDEX IF NOT EXISTS idx_devices_leid ON devices(logical_equipment_id);
CREATE INDEX IF NOT EXISTS idx_history_device ON equipment_history(device_id);
CREATE INDEX IF NOT EXISTS idx_history_idempotency ON equipment_history(idempotency_key);
CREATE INDEX IF NOT EXISTS idx_anomalies_site_status ON anomalies(site_id, status);
`
