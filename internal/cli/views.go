package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/pathchain/internal/lineage"
	"github.com/roach88/pathchain/internal/record"
	"github.com/roach88/pathchain/internal/registration"
)

// Views are the data printed by commands. JSON output encodes them as is;
// text output uses String.

type bootstrapView struct {
	RootID      int64            `json:"root_id"`
	RootAddress record.Address   `json:"root_address"`
	Created     bool             `json:"created"`
	Secrets     []record.Address `json:"secrets"`
}

func (v bootstrapView) String() string {
	var b strings.Builder
	verb := "exists"
	if v.Created {
		verb = "created"
	}
	fmt.Fprintf(&b, "root %s (entity %d, %s)", v.RootAddress, v.RootID, verb)
	if len(v.Secrets) == 0 {
		b.WriteString("\nno unused root secrets")
	}
	for _, s := range v.Secrets {
		fmt.Fprintf(&b, "\nsecret: %s", s)
	}
	return b.String()
}

type sessionView struct {
	registration.Result
	Action string `json:"-"`
}

func (v sessionView) String() string {
	return fmt.Sprintf("%s %s (entity %d, %s)\ntoken: %s",
		v.Action, v.Entity.Username, v.Entity.ID, v.Entity.Address, v.Token)
}

type secretView struct {
	Address record.Address `json:"address,omitempty"`
	Valid   bool           `json:"valid"`
	Unused  bool           `json:"unused"`
}

func (v secretView) String() string {
	switch {
	case !v.Valid:
		return "invalid secret"
	case v.Unused:
		return fmt.Sprintf("%s: valid, unused", v.Address)
	default:
		return fmt.Sprintf("%s: valid, already used", v.Address)
	}
}

type issuedView struct {
	Address record.Address `json:"address"`
	OwnerID int64          `json:"owner_id"`
}

func (v issuedView) String() string {
	return fmt.Sprintf("secret: %s (owner entity %d)", v.Address, v.OwnerID)
}

type entityView lineage.EntityInfo

func (v entityView) String() string {
	name := v.Username
	if name == "" {
		name = "(no credential)"
	}
	s := fmt.Sprintf("%d %s %s", v.ID, name, v.Address)
	if v.IsRoot {
		s += " [root]"
	}
	if !v.RegisteredAt.IsZero() {
		s += " registered " + v.RegisteredAt.UTC().Format(time.RFC3339)
	}
	return s
}

type lineageView struct {
	Entities []lineage.EntityInfo `json:"entities"`
}

func (v lineageView) String() string {
	lines := make([]string, len(v.Entities))
	for i, e := range v.Entities {
		lines[i] = strings.Repeat("  ", i) + entityView(e).String()
	}
	return strings.Join(lines, "\n")
}

type orphansView struct {
	Orphans []registration.Orphan `json:"orphans"`
}

func (v orphansView) String() string {
	if len(v.Orphans) == 0 {
		return "no orphans"
	}
	lines := make([]string, len(v.Orphans))
	for i, o := range v.Orphans {
		lines[i] = fmt.Sprintf("entity %s consumed %s (author %s)", o.Entity, o.Secret, o.Author)
	}
	return strings.Join(lines, "\n")
}

type adoptedView struct {
	ID         int64          `json:"id"`
	Address    record.Address `json:"address"`
	AncestorID int64          `json:"ancestor_id"`
}

func (v adoptedView) String() string {
	return fmt.Sprintf("adopted %s as entity %d (ancestor %d)", v.Address, v.ID, v.AncestorID)
}
