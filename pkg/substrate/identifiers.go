package substrate

// Identifier names a substrate file per spec §3.
type Identifier string

const (
	PLAN            Identifier = "PLAN"
	MEMORY          Identifier = "MEMORY"
	SKILLS          Identifier = "SKILLS"
	HABITS          Identifier = "HABITS"
	VALUES          Identifier = "VALUES"
	ID              Identifier = "ID"
	SECURITY        Identifier = "SECURITY"
	CHARTER         Identifier = "CHARTER"
	SUPEREGO        Identifier = "SUPEREGO"
	PROGRESS        Identifier = "PROGRESS"
	CONVERSATION    Identifier = "CONVERSATION"
	RESTART_CONTEXT Identifier = "RESTART_CONTEXT"
)

// WriteMode is the statically declared write discipline for an identifier.
type WriteMode int

const (
	Overwrite WriteMode = iota
	AppendOnly
)

func (m WriteMode) String() string {
	if m == AppendOnly {
		return "append-only"
	}
	return "overwrite"
}

// FileSpec is the static configuration for one substrate identifier: its
// path relative to the substrate root and its write mode. Validation rules
// live in validate.go, keyed by the same identifier.
type FileSpec struct {
	Identifier Identifier
	RelPath    string
	Mode       WriteMode
}

// DefaultLayout is the static identifier -> path/mode map described in
// spec §4.3 ("resolves the identifier to a path via a static configuration
// map"). Callers needing a different layout can build their own map and
// pass it to NewReader/NewOverwriteWriter/NewAppendWriter.
func DefaultLayout() map[Identifier]FileSpec {
	specs := []FileSpec{
		{PLAN, "PLAN.md", Overwrite},
		{MEMORY, "MEMORY.md", Overwrite},
		{SKILLS, "SKILLS.md", Overwrite},
		{HABITS, "HABITS.md", Overwrite},
		{VALUES, "VALUES.md", Overwrite},
		{ID, "ID.md", Overwrite},
		{SECURITY, "SECURITY.md", Overwrite},
		{CHARTER, "CHARTER.md", Overwrite},
		{SUPEREGO, "SUPEREGO.md", Overwrite},
		{PROGRESS, "PROGRESS.md", AppendOnly},
		{CONVERSATION, "CONVERSATION.md", AppendOnly},
		{RESTART_CONTEXT, "RESTART_CONTEXT.md", Overwrite},
	}
	out := make(map[Identifier]FileSpec, len(specs))
	for _, s := range specs {
		out[s.Identifier] = s
	}
	return out
}
