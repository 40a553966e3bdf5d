package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/pathchain/internal/credential"
	"github.com/roach88/pathchain/internal/fault"
	"github.com/roach88/pathchain/internal/ledger"
	"github.com/roach88/pathchain/internal/lineage"
	"github.com/roach88/pathchain/internal/objectstore"
	"github.com/roach88/pathchain/internal/projection"
	"github.com/roach88/pathchain/internal/record"
	"github.com/roach88/pathchain/internal/registration"
	"github.com/roach88/pathchain/internal/testutil"
)

// DefaultPassword is used by register and login steps that omit one.
const DefaultPassword = "correct horse battery staple"

// scenarioArgon2 keeps hashing cheap; scenarios test flow, not cost.
var scenarioArgon2 = credential.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 8, KeyLen: 16}

type boundEntity struct {
	id   int64
	addr record.Address
}

// Harness executes one scenario against fresh stores.
type Harness struct {
	ledger   *ledger.Ledger
	proj     *projection.Store
	coord    *registration.Coordinator
	resolver *lineage.Resolver

	entities map[string]boundEntity
	secrets  map[string]record.Address
	labels   map[record.Address]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against an in-memory ledger and an in-memory SQLite
// projection. Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh stores and a coordinator
// 2. Execute steps in order, binding labels
// 3. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness()
	if err != nil {
		return nil, err
	}
	defer h.proj.Close()

	ctx := context.Background()
	result := NewResult(scenario.Name)
	for i, step := range scenario.Steps {
		if err := h.step(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	for i, a := range scenario.Assertions {
		if err := h.assert(ctx, a, result); err != nil {
			return nil, fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return result, nil
}

func newHarness() (*Harness, error) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := objectstore.New(objectstore.NewMemory(), objectstore.WithLogger(quiet))
	l := ledger.New(store,
		ledger.WithClock(testutil.NewStepClock()),
		ledger.WithNonce(testutil.NewSequenceNonce().Next),
		ledger.WithLogger(quiet),
	)
	p, err := projection.Open(":memory:", projection.WithLogger(quiet))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory projection: %w", err)
	}

	signer, err := credential.NewSigner(bytes.Repeat([]byte{0x5a}, 32), time.Hour)
	if err != nil {
		p.Close()
		return nil, err
	}
	coord := registration.New(l, p, credential.NewArgon2id(scenarioArgon2), signer, registration.WithLogger(quiet))

	return &Harness{
		ledger:   l,
		proj:     p,
		coord:    coord,
		resolver: lineage.New(l, p, lineage.WithLogger(quiet)),
		entities: map[string]boundEntity{},
		secrets:  map[string]record.Address{},
		labels:   map[record.Address]string{},
	}, nil
}

// step runs one operation, records it and checks its expectation. A
// returned error means the scenario itself is broken (an unbound label).
func (h *Harness) step(ctx context.Context, seq int, st Step, res *Result) error {
	desc, outcome, err := h.exec(ctx, st, res, seq)
	var scriptErr *scriptError
	if errors.As(err, &scriptErr) {
		return scriptErr
	}

	got := ExpectOK
	if err != nil {
		got = string(fault.CodeOf(err))
		outcome = got
	}
	res.addStep(seq, desc, outcome)

	want := st.Expect
	if want == "" {
		want = ExpectOK
	}
	if got != want {
		if err != nil {
			res.AddError("step %d (%s): expected %s, got %s: %v", seq, desc, want, got, err)
		} else {
			res.AddError("step %d (%s): expected %s, got %s", seq, desc, want, got)
		}
	}
	return nil
}

func (h *Harness) exec(ctx context.Context, st Step, res *Result, seq int) (desc, outcome string, err error) {
	switch st.Op {
	case OpBootstrap:
		return h.bootstrap(ctx, st)
	case OpRegister:
		return h.register(ctx, st)
	case OpIssueSecret:
		return h.issueSecret(ctx, st)
	case OpCheckSecret:
		return h.checkSecret(ctx, st, res, seq)
	case OpLogin:
		return h.login(ctx, st)
	case OpAncestor:
		return h.ancestor(ctx, st, res, seq)
	default:
		return st.Op, "", &scriptError{msg: fmt.Sprintf("unknown op %q", st.Op)}
	}
}

func (h *Harness) bootstrap(ctx context.Context, st Step) (string, string, error) {
	desc := "bootstrap"
	b, err := h.coord.Bootstrap(ctx)
	if err != nil {
		return desc, "", err
	}
	label := st.As
	if label == "" {
		label = "root"
	}
	h.bindEntity(label, b.Root.ID, b.Root.Address)
	if len(b.Secrets) > 0 {
		h.bindSecret(label+"-secret", b.Secrets[0].Address)
	}
	return desc, fmt.Sprintf("ok root=%s created=%t secrets=%d", h.entityRef(b.Root.Address, b.Root.ID), b.Created, len(b.Secrets)), nil
}

func (h *Harness) register(ctx context.Context, st Step) (string, string, error) {
	input, ref, err := h.secretInput(st)
	desc := fmt.Sprintf("register %s secret=%s", st.Username, ref)
	if err != nil {
		return desc, "", err
	}
	out, err := h.coord.Register(ctx, input, st.Username, password(st))
	if err != nil {
		return desc, "", err
	}
	label := st.As
	if label == "" {
		label = st.Username
	}
	h.bindEntity(label, out.Entity.ID, out.Entity.Address)
	return desc, "ok entity=" + h.entityRef(out.Entity.Address, out.Entity.ID), nil
}

func (h *Harness) issueSecret(ctx context.Context, st Step) (string, string, error) {
	desc := "issue_secret entity=" + st.Entity
	author, err := h.entity(st.Entity)
	if err != nil {
		return desc, "", err
	}
	row, err := h.coord.IssueSecret(ctx, author.id)
	if err != nil {
		return desc, "", err
	}
	h.bindSecret(st.As, row.Address)
	return desc, "ok secret=" + st.As, nil
}

func (h *Harness) checkSecret(ctx context.Context, st Step, res *Result, seq int) (string, string, error) {
	input, ref, err := h.secretInput(st)
	desc := "check_secret secret=" + ref
	if err != nil {
		return desc, "", err
	}
	status, err := h.coord.CheckSecret(ctx, input)
	if err != nil {
		return desc, "", err
	}
	if st.ExpectValid != nil && *st.ExpectValid != status.Valid {
		res.AddError("step %d (%s): expected valid=%t, got %t", seq, desc, *st.ExpectValid, status.Valid)
	}
	if st.ExpectUnused != nil && *st.ExpectUnused != status.Unused {
		res.AddError("step %d (%s): expected unused=%t, got %t", seq, desc, *st.ExpectUnused, status.Unused)
	}
	return desc, fmt.Sprintf("ok valid=%t unused=%t", status.Valid, status.Unused), nil
}

func (h *Harness) login(ctx context.Context, st Step) (string, string, error) {
	desc := "login " + st.Username
	out, err := h.coord.Login(ctx, st.Username, password(st))
	if err != nil {
		return desc, "", err
	}
	return desc, "ok entity=" + h.entityRef(out.Entity.Address, out.Entity.ID), nil
}

func (h *Harness) ancestor(ctx context.Context, st Step, res *Result, seq int) (string, string, error) {
	desc := "ancestor entity=" + st.Entity
	e, err := h.entity(st.Entity)
	if err != nil {
		return desc, "", err
	}
	info, err := h.resolver.ResolveAncestor(ctx, e.id)
	if err != nil {
		return desc, "", err
	}
	if st.ExpectAncestor != "" && h.labels[info.Address] != st.ExpectAncestor {
		res.AddError("step %d (%s): expected ancestor %s, got %s", seq, desc, st.ExpectAncestor, h.label(info.Address))
	}
	return desc, "ok ancestor=" + h.entityRef(info.Address, info.ID), nil
}

// secretInput resolves a step's secret to raw input and a printable reference.
func (h *Harness) secretInput(st Step) (input, ref string, err error) {
	switch {
	case st.SecretLiteral != "":
		return st.SecretLiteral, fmt.Sprintf("%q", st.SecretLiteral), nil
	case st.Secret != "":
		addr, ok := h.secrets[st.Secret]
		if !ok {
			return "", st.Secret, &scriptError{msg: fmt.Sprintf("unbound secret label %q", st.Secret)}
		}
		return string(addr), st.Secret, nil
	default:
		return "", "(none)", nil
	}
}

func (h *Harness) entity(label string) (boundEntity, error) {
	e, ok := h.entities[label]
	if !ok {
		return boundEntity{}, &scriptError{msg: fmt.Sprintf("unbound entity label %q", label)}
	}
	return e, nil
}

func (h *Harness) bindEntity(label string, id int64, addr record.Address) {
	h.entities[label] = boundEntity{id: id, addr: addr}
	if _, ok := h.labels[addr]; !ok {
		h.labels[addr] = label
	}
}

func (h *Harness) bindSecret(label string, addr record.Address) {
	h.secrets[label] = addr
}

func (h *Harness) label(addr record.Address) string {
	if l, ok := h.labels[addr]; ok {
		return l
	}
	return "?"
}

func (h *Harness) entityRef(addr record.Address, id int64) string {
	return fmt.Sprintf("%s#%d", h.label(addr), id)
}

func password(st Step) string {
	if st.Password != "" {
		return st.Password
	}
	return DefaultPassword
}

// scriptError reports a broken scenario rather than a failed expectation.
type scriptError struct{ msg string }

func (e *scriptError) Error() string { return e.msg }
