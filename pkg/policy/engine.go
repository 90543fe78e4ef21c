package policy

import (
	"fmt"
	"regexp"
	"sort"
)

// ServiceRegistryEntry is one host's routing and default-stance entry
// in service_registry.yaml.
type ServiceRegistryEntry struct {
	PolicyScope   string      `yaml:"policy_scope"`
	DefaultStance Effect      `yaml:"default_stance"`
	LedgerLevel   LedgerLevel `yaml:"ledger_level"`
}

// Engine evaluates requests against a set of loaded policy packs. It
// is read-only after construction; a reload is an atomic pointer swap
// the caller performs, not a mutation of an existing Engine.
type Engine struct {
	packs           map[string]PolicyPack
	serviceRegistry map[string]ServiceRegistryEntry
}

// NewEngine builds an engine from already-parsed packs and service
// registry, sorting each pack's policies by priority descending so
// "first match" means "highest priority match".
func NewEngine(packs map[string]PolicyPack, registry map[string]ServiceRegistryEntry) *Engine {
	e := &Engine{
		packs:           make(map[string]PolicyPack, len(packs)),
		serviceRegistry: registry,
	}
	if e.serviceRegistry == nil {
		e.serviceRegistry = map[string]ServiceRegistryEntry{}
	}
	for scope, pack := range packs {
		sorted := make([]Policy, len(pack.Policies))
		copy(sorted, pack.Policies)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Priority > sorted[j].Priority
		})
		pack.Policies = sorted
		e.packs[scope] = pack
	}
	return e
}

// Packs returns the loaded packs keyed by scope.
func (e *Engine) Packs() map[string]PolicyPack {
	return e.packs
}

// CatalogVersion summarizes the loaded policy packs as a single
// string for the API surface's catalog header: scope@version pairs,
// sorted by scope, joined by "+". An engine with no packs reports
// "empty".
func (e *Engine) CatalogVersion() string {
	scopes := e.sortedScopes()
	if len(scopes) == 0 {
		return "empty"
	}
	parts := make([]string, len(scopes))
	for i, scope := range scopes {
		parts[i] = fmt.Sprintf("%s@%s", scope, e.packs[scope].Version)
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "+" + p
	}
	return out
}

// sortedScopes returns pack scopes in a fixed order so evaluation is
// deterministic across runs; Go map iteration order is not.
func (e *Engine) sortedScopes() []string {
	scopes := make([]string, 0, len(e.packs))
	for scope := range e.packs {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

func (e *Engine) scopeDefaults(host string) (Effect, LedgerLevel) {
	if entry, ok := e.serviceRegistry[host]; ok && host != "" {
		stance := entry.DefaultStance
		if stance == "" {
			stance = Deny
		}
		level := entry.LedgerLevel
		if level == "" {
			level = LedgerDecision
		}
		return stance, level
	}
	return Deny, LedgerDecision
}

type matchedPolicy struct {
	policy       Policy
	conditionMet bool
	reason       string
}

// Evaluate runs the algorithm used by the reference governance
// engine: gather every policy across every pack whose action,
// resource, and subject match the request; the first such policy (in
// priority order) whose condition is satisfied wins; the required
// ledger level is the max across every matched policy regardless of
// whether its condition held; absent a winner, the decision falls
// back to the host's scope default.
func (e *Engine) Evaluate(req EvaluateRequest) EvaluateResponse {
	host := req.Context.RequestMetadata.Host
	defaultStance, maxLedger := e.scopeDefaults(host)

	var matched []matchedPolicy
	for _, scope := range e.sortedScopes() {
		pack := e.packs[scope]
		for _, p := range pack.Policies {
			if !matchesPattern(p.Action, req.Action) {
				continue
			}
			if !matchesPattern(p.Resource, req.Resource.Type) {
				continue
			}
			if !matchesSubject(p.Subject, req.Subject) {
				continue
			}
			met, reason := checkCondition(p.Condition, req.Context)
			matched = append(matched, matchedPolicy{policy: p, conditionMet: met, reason: reason})
		}
	}

	var winner *matchedPolicy
	var winningReason string
	for i := range matched {
		m := &matched[i]
		maxLedger = HigherLedgerLevel(maxLedger, m.policy.LedgerLevel)
		if m.conditionMet && winner == nil {
			winner = m
		} else if !m.conditionMet && winner == nil {
			winningReason = m.reason
		}
	}

	if winner != nil {
		return EvaluateResponse{
			Decision:            winner.policy.Effect,
			PolicyID:            winner.policy.ID,
			PolicyVersion:       winner.policy.PolicyVersion,
			Reason:              winner.policy.Description,
			RequiredLedgerLevel: maxLedger,
		}
	}

	reason := winningReason
	if reason == "" {
		reason = fmt.Sprintf("no matching policy; default stance is %s", defaultStance)
	}
	return EvaluateResponse{
		Decision:            defaultStance,
		Reason:              reason,
		RequiredLedgerLevel: maxLedger,
	}
}

// matchesPattern implements the pattern language from spec §4.5:
// "*" matches anything; "**" matches any sequence including ":";
// "*" elsewhere matches any substring not containing ":".
func matchesPattern(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	re, err := regexp.Compile("^" + globToRegex(pattern) + "$")
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

func globToRegex(pattern string) string {
	var b []byte
	i := 0
	for i < len(pattern) {
		switch {
		case pattern[i] == '.':
			b = append(b, '\\', '.')
			i++
		case i+1 < len(pattern) && pattern[i] == '*' && pattern[i+1] == '*':
			b = append(b, '.', '*')
			i += 2
		case pattern[i] == '*':
			b = append(b, '[', '^', ':', ']', '*')
			i++
		default:
			b = append(b, []byte(regexp.QuoteMeta(string(pattern[i])))...)
			i++
		}
	}
	return string(b)
}

// matchesSubject checks the subject side: role exact-or-wildcard,
// optional user_id, attribute equality for every declared attribute.
func matchesSubject(want SubjectMatch, got Subject) bool {
	if want.Role != "" && want.Role != "*" && want.Role != got.Role {
		return false
	}
	if want.UserID != "" && want.UserID != got.UserID {
		return false
	}
	for k, v := range want.Attributes {
		if got.Attributes[k] != v {
			return false
		}
	}
	return true
}

// checkCondition: every claim_check must appear in context.claims (by
// "type"); every caller_asserts fact must appear in
// context.asserted_facts. Returns (satisfied, reason-if-not).
func checkCondition(cond Condition, ctx Context) (bool, string) {
	if cond.ClaimCheck != "" {
		found := false
		for _, claim := range ctx.Claims {
			if t, ok := claim["type"].(string); ok && t == cond.ClaimCheck {
				found = true
				break
			}
		}
		if !found {
			return false, fmt.Sprintf("missing required claim: %s", cond.ClaimCheck)
		}
	}

	asserted := make(map[string]bool, len(ctx.AssertedFacts))
	for _, f := range ctx.AssertedFacts {
		asserted[f] = true
	}
	for _, fact := range cond.CallerAsserts {
		if !asserted[fact] {
			return false, fmt.Sprintf("caller did not assert required fact: %s", fact)
		}
	}

	return true, ""
}
