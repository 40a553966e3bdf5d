package harness

import (
	"context"
	"fmt"
	"strings"
)

// assert evaluates one assertion and records it in the trace. A returned
// error means the assertion could not be evaluated at all.
func (h *Harness) assert(ctx context.Context, a Assertion, res *Result) error {
	switch a.Type {
	case AssertCounts:
		return h.assertCounts(ctx, a, res)
	case AssertLineage:
		return h.assertLineage(ctx, a, res)
	case AssertUnusedSecrets:
		return h.assertUnusedSecrets(ctx, a, res)
	case AssertNoOrphans:
		return h.assertNoOrphans(ctx, res)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertCounts(ctx context.Context, a Assertion, res *Result) error {
	c, err := h.proj.Count(ctx)
	if err != nil {
		return err
	}

	var parts []string
	ok := true
	check := func(name string, want *int64, got int64) {
		if want == nil {
			return
		}
		parts = append(parts, fmt.Sprintf("%s=%d", name, *want))
		if *want != got {
			ok = false
			res.AddError("counts: expected %s=%d, got %d", name, *want, got)
		}
	}
	check("entities", a.Entities, c.Entities)
	check("secrets", a.Secrets, c.Secrets)
	check("used_secrets", a.UsedSecrets, c.UsedSecrets)
	check("credentials", a.Credentials, c.Credentials)

	res.addAssertion("counts "+strings.Join(parts, " "), ok)
	return nil
}

func (h *Harness) assertLineage(ctx context.Context, a Assertion, res *Result) error {
	desc := fmt.Sprintf("lineage entity=%s chain=%s", a.Entity, strings.Join(a.Chain, ","))
	e, err := h.entity(a.Entity)
	if err != nil {
		return err
	}

	chain, err := h.resolver.Lineage(ctx, e.id)
	if err != nil {
		res.addAssertion(desc, false)
		res.AddError("lineage %s: %v", a.Entity, err)
		return nil
	}
	got := make([]string, len(chain))
	for i, info := range chain {
		got[i] = h.label(info.Address)
	}
	ok := strings.Join(got, ",") == strings.Join(a.Chain, ",")
	if !ok {
		res.AddError("lineage %s: expected %s, got %s", a.Entity, strings.Join(a.Chain, ","), strings.Join(got, ","))
	}
	res.addAssertion(desc, ok)
	return nil
}

func (h *Harness) assertUnusedSecrets(ctx context.Context, a Assertion, res *Result) error {
	desc := fmt.Sprintf("unused_secrets entity=%s count=%d", a.Entity, a.Count)
	e, err := h.entity(a.Entity)
	if err != nil {
		return err
	}
	rows, err := h.proj.FindUnconsumedSecretsOwnedBy(ctx, e.id)
	if err != nil {
		return err
	}
	ok := len(rows) == a.Count
	if !ok {
		res.AddError("unused_secrets %s: expected %d, got %d", a.Entity, a.Count, len(rows))
	}
	res.addAssertion(desc, ok)
	return nil
}

func (h *Harness) assertNoOrphans(ctx context.Context, res *Result) error {
	orphans, err := h.coord.FindOrphans(ctx)
	if err != nil {
		return err
	}
	ok := len(orphans) == 0
	for _, o := range orphans {
		res.AddError("orphan: secret %s consumed by unregistered entity %s", o.Secret, o.Entity)
	}
	res.addAssertion("no_orphans", ok)
	return nil
}
