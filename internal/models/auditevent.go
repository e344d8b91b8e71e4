package models

import "time"

// EventType enumerates the security-relevant actions the audit log records.
// The set is closed for validation purposes but unknown values are stored
// anyway (forward compatibility; the recorder logs a warning).
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	EventLogin  EventType = "login"
	EventLogout EventType = "logout"
	EventExport EventType = "export"
	EventImport EventType = "import"
	EventShare  EventType = "share"
	EventPrint  EventType = "print"
	EventAdmin  EventType = "admin"
)

// KnownEventTypes is the closed enumeration used for validation.
var KnownEventTypes = map[EventType]struct{}{
	EventCreate: {}, EventUpdate: {}, EventDelete: {}, EventLogin: {},
	EventLogout: {}, EventExport: {}, EventImport: {}, EventShare: {},
	EventPrint: {}, EventAdmin: {},
}

// Entity enumerates the domain entities audit events may reference.
type Entity string

const (
	EntityCliente    Entity = "cliente"
	EntityProcesso   Entity = "processo"
	EntityDocumento  Entity = "documento"
	EntityLead       Entity = "lead"
	EntityMensagem   Entity = "mensagem"
	EntityAgenda     Entity = "agenda"
	EntityFinanceiro Entity = "financeiro"
	EntityUsuario    Entity = "usuario"
	EntitySistema    Entity = "sistema"
)

// KnownEntities is the closed enumeration used for validation.
var KnownEntities = map[Entity]struct{}{
	EntityCliente: {}, EntityProcesso: {}, EntityDocumento: {},
	EntityLead: {}, EntityMensagem: {}, EntityAgenda: {},
	EntityFinanceiro: {}, EntityUsuario: {}, EntitySistema: {},
}

// AuditEvent is one immutable audit record. Hash is the SHA-256 of the
// event's canonical serialization excluding the hash itself; MerkleTreeID is
// back-filled once, by the Merkle consolidation engine, and is the only field
// that ever changes after creation.
type AuditEvent struct {
	ID           string
	Timestamp    time.Time
	EventType    EventType
	Entity       Entity
	EntityID     string
	UserID       string
	UserIP       string
	UserAgent    string
	Data         map[string]any
	Hash         string
	MerkleTreeID string
}

// IntegrityResult is the advisory outcome of verifying a single event.
// Verification never fails hard; mismatches are reported, not thrown.
type IntegrityResult struct {
	HashValid        bool
	MerkleProofValid bool
	OverallValid     bool
}

// AuditFilter narrows an audit search. Zero values mean "no constraint".
type AuditFilter struct {
	EventType EventType
	Entity    Entity
	EntityID  string
	UserID    string
	From      time.Time
	To        time.Time
	Text      string
}

// SearchOptions control pagination and ordering of audit searches.
type SearchOptions struct {
	Limit     int
	Offset    int
	Ascending bool
}

// AuditSummary is one day+entity+eventType rollup row. Detailed events older
// than the retention window are pruned after they are represented here.
type AuditSummary struct {
	Day       string // YYYY-MM-DD
	Entity    Entity
	EventType EventType
	Count     int
}
