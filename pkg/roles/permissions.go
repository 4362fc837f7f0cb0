// Package roles implements the four agent role shims (Ego, Subconscious,
// Superego, Id) as thin adapters over an LLM session launcher, per spec
// §4.6: each composes a prompt, launches a session, parses a structured or
// free-text reply, and mutates the substrate through the writers it holds.
package roles

import "github.com/sipeed/cortexd/pkg/substrate"

// Role identifies which shim is acting, used both for prompt selection and
// for the permission matrix below.
type Role string

const (
	RoleEgo          Role = "EGO"
	RoleSubconscious Role = "SUBCONSCIOUS"
	RoleSuperego     Role = "SUPEREGO"
	RoleId           Role = "ID"
)

// Op names the substrate operation a role is attempting, for permission
// lookups; "write" covers both append and overwrite since write-mode is
// already enforced by the substrate writers themselves.
type Op string

const (
	OpAppend Op = "append"
	OpWrite  Op = "write"
)

// permissionKey is the compact lookup key for the static matrix. Design
// note §9 calls for an enum-keyed table over a tree of conditionals.
type permissionKey struct {
	role Role
	id   substrate.Identifier
	op   Op
}

// PermissionMatrix answers {role, identifier, op} -> allow per spec §9.
type PermissionMatrix struct {
	allow map[permissionKey]bool
}

// DefaultPermissionMatrix returns the matrix used throughout the runtime.
// CONVERSATION may not be appended to by SUPEREGO or ID (spec §4.7 step 1).
// All roles may append PROGRESS. Only EGO/SUBCONSCIOUS may write PLAN; only
// SUBCONSCIOUS may write SKILLS and MEMORY.
// SUPEREGO alone may write SUPEREGO's own findings file; ID may write its
// own drive-candidate file. Every role may read every identifier (reads are
// not gated by this matrix — only writes are).
func DefaultPermissionMatrix() *PermissionMatrix {
	m := &PermissionMatrix{allow: make(map[permissionKey]bool)}

	m.grant(RoleEgo, substrate.CONVERSATION, OpAppend)
	m.grant(RoleSubconscious, substrate.CONVERSATION, OpAppend)

	for _, r := range []Role{RoleEgo, RoleSubconscious, RoleSuperego, RoleId} {
		m.grant(r, substrate.PROGRESS, OpAppend)
	}

	m.grant(RoleEgo, substrate.PLAN, OpWrite)
	m.grant(RoleSubconscious, substrate.PLAN, OpWrite)
	m.grant(RoleSubconscious, substrate.SKILLS, OpWrite)
	m.grant(RoleSubconscious, substrate.MEMORY, OpWrite)
	m.grant(RoleSuperego, substrate.SUPEREGO, OpWrite)
	m.grant(RoleId, substrate.ID, OpWrite)

	return m
}

func (m *PermissionMatrix) grant(role Role, id substrate.Identifier, op Op) {
	m.allow[permissionKey{role, id, op}] = true
}

// Allowed reports whether role may perform op on id.
func (m *PermissionMatrix) Allowed(role Role, id substrate.Identifier, op Op) bool {
	return m.allow[permissionKey{role, id, op}]
}

// PermissionDeniedError surfaces a denied mutation per spec §7's
// PermissionDenied kind; the caller performs no write.
type PermissionDeniedError struct {
	Role Role
	ID   substrate.Identifier
	Op   Op
}

func (e *PermissionDeniedError) Error() string {
	return string(e.Role) + " may not " + string(e.Op) + " " + string(e.ID)
}
