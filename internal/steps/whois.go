package steps

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/Wilhelmroentgen/REDFLOW/internal/registry"
	"github.com/Wilhelmroentgen/REDFLOW/internal/shell"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
	"github.com/Wilhelmroentgen/REDFLOW/internal/target"
)

const (
	whoisTool     = "whois"
	whoisArtifact = "whois_raw.txt"

	// ErrEmptyOutput is recorded when whois printed nothing.
	ErrEmptyOutput = "empty_output"
)

var (
	asnPattern   = regexp.MustCompile(`(?i)\bAS(\d{1,10})\b`)
	emailPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)
	prefixSplit  = regexp.MustCompile(`[,\s]+`)
)

// Registry databases disagree on field names; these cover ARIN, RIPE,
// LACNIC, APNIC and AFRINIC.
var (
	orgKeys = []string{
		"OrgName", "org-name", "organisation", "owner", "descr", "responsible",
		"org", "OrgId", "netname",
	}
	prefixKeys = []string{"CIDR", "cidr", "route", "route6", "inetnum", "NetRange", "inet6num"}
)

// WhoisRecord is what whois extracts from the raw registry answer.
type WhoisRecord struct {
	Fields   map[string][]string
	ASNs     []string
	Orgs     []string
	Prefixes []string
	Emails   []string
}

// ParseWhois extracts ASNs, organizations, network prefixes and e-mail
// addresses from raw whois output.
func ParseWhois(raw string) WhoisRecord {
	rec := WhoisRecord{Fields: map[string][]string{}}
	for _, line := range lines(raw) {
		if k, v, ok := strings.Cut(line, ":"); ok {
			k = strings.TrimSpace(k)
			rec.Fields[k] = append(rec.Fields[k], strings.TrimSpace(v))
		}
		for _, m := range asnPattern.FindAllStringSubmatch(line, -1) {
			rec.ASNs = append(rec.ASNs, m[1])
		}
		rec.Emails = append(rec.Emails, emailPattern.FindAllString(line, -1)...)
	}

	for _, k := range orgKeys {
		for _, v := range rec.Fields[k] {
			if v != "" && !slices.Contains(rec.Orgs, v) {
				rec.Orgs = append(rec.Orgs, v)
			}
		}
	}
	for _, k := range prefixKeys {
		for _, v := range rec.Fields[k] {
			rec.Prefixes = append(rec.Prefixes, prefixes(v)...)
		}
	}

	rec.ASNs = sortUnique(rec.ASNs)
	rec.Prefixes = sortUnique(rec.Prefixes)
	rec.Emails = sortUnique(rec.Emails)
	return rec
}

// prefixes keeps the parts of v that look like an address or a prefix.
func prefixes(v string) []string {
	var out []string
	for _, p := range prefixSplit.Split(strings.TrimSpace(v), -1) {
		if p != "" && (strings.Contains(p, "/") || strings.Count(p, ".") == 3 || strings.Contains(p, ":")) {
			out = append(out, p)
		}
	}
	return out
}

func sortUnique(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

// whois queries the registry for the target and fills the whois and asn
// fields. The registrable root of a domain target is added to roots.
func (s *set) whois(ctx context.Context, st state.State, params map[string]any) (state.State, error) {
	data, err := s.templateData(st)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("run_id", st.RunID(), "tool", whoisTool)

	raw, ok := s.reusable(st, st.RunID(), whoisArtifact)
	if ok {
		logger.Info("reusing artifact", "path", whoisArtifact)
		addArtifact(st, whoisArtifact)
	} else {
		argsText, err := stringParam(params, "args")
		if err != nil {
			return nil, err
		}
		if argsText == "" {
			argsText = "{{quote .Target}}"
		}
		args, err := render(argsText, data)
		if err != nil {
			return nil, err
		}
		timeout, err := s.timeout(whoisTool, params)
		if err != nil {
			return nil, err
		}

		res, err := s.runner.Run(ctx, s.command(whoisTool, args), timeout, shell.WithDir(data.RunDir))
		if err != nil {
			return nil, err
		}
		// whois exits non-zero on many registries while still answering.
		if res.TimedOut() {
			recordToolFailure(ctx, st, ImplWhois, res)
		}
		if strings.TrimSpace(res.Stdout) == "" {
			if !res.TimedOut() {
				stderr := res.Stderr
				if stderr == "" {
					stderr = ErrEmptyOutput
				}
				st.AppendError(state.ErrorRecord{Step: registry.StepID(ctx), Impl: ImplWhois, Error: ErrEmptyOutput, Stderr: stderr})
			}
			addRoot(st, data.Target)
			return st, nil
		}
		raw = []byte(res.Stdout)
		if !res.TimedOut() {
			if err := s.saveArtifact(st, whoisArtifact, raw); err != nil {
				return nil, err
			}
		}
	}

	rec := ParseWhois(string(raw))
	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = toAny(v)
	}
	org := ""
	if len(rec.Orgs) > 0 {
		org = rec.Orgs[0]
	}
	st["whois"] = map[string]any{
		"raw_saved": true,
		"emails":    toAny(rec.Emails),
		"fields":    fields,
	}
	st["asn"] = map[string]any{
		"numbers":  toAny(rec.ASNs),
		"org":      org,
		"orgs":     toAny(rec.Orgs),
		"prefixes": toAny(rec.Prefixes),
	}
	addRoot(st, data.Target)
	logger.Debug("whois parsed", "asns", len(rec.ASNs), "prefixes", len(rec.Prefixes))
	return st, nil
}

func addRoot(st state.State, t string) {
	if target.IsIP(t) {
		return
	}
	root := target.RootDomain(t)
	if root == "" {
		if !strings.Contains(t, ".") {
			return
		}
		root = t
	}
	st.SetStrings("roots", union(st.Strings("roots"), []string{root}))
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
