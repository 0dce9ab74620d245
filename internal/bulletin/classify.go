package bulletin

import "strings"

// Filter is the two-stage interest rule: the subject must contain one of
// Keywords, and the requester must contain one of Departments.
//
// Matching is plain substring containment, case-insensitive. That lets an
// acronym match inside an unrelated word (e.g. "DARU" in "DARUMA"); this is
// accepted behaviour, not something to tighten here.
//
// The two empty cases are deliberately asymmetric:
//   - no Departments: the department stage always passes
//   - no Keywords: nothing is ever interesting
type Filter struct {
	Keywords    []string
	Departments []string
}

// NewFilter normalises keywords to lower case and departments to upper case,
// dropping blank entries.
func NewFilter(keywords, departments []string) Filter {
	return Filter{
		Keywords:    normalize(keywords, strings.ToLower),
		Departments: normalize(departments, strings.ToUpper),
	}
}

func normalize(in []string, fold func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, fold(s))
	}
	return out
}

// Verdict explains a classification.
type Verdict struct {
	KeywordMatch    bool
	Keyword         string // first keyword found in the subject
	DepartmentMatch bool
	Department      string // first department found in the requester; "" when the stage is open
	DepartmentOpen  bool   // no departments configured, stage auto-satisfied
}

// Interesting reports whether the verdict warrants a notification.
func (v Verdict) Interesting() bool { return v.KeywordMatch && v.DepartmentMatch }

// Reason is a short machine-friendly label for logs.
func (v Verdict) Reason() string {
	switch {
	case v.Interesting():
		return "match"
	case !v.KeywordMatch:
		return "no_keyword_match"
	default:
		return "no_department_match"
	}
}

// Interesting reports whether r should be notified. It is pure.
func (f Filter) Interesting(r Record) bool {
	subject := strings.ToLower(r.Subject)
	if _, ok := firstContained(subject, f.Keywords); !ok {
		return false
	}
	if len(f.Departments) == 0 {
		return true
	}
	_, ok := firstContained(strings.ToUpper(r.Requester), f.Departments)
	return ok
}

// Explain evaluates both stages in full and reports what matched.
// Explain(r).Interesting() == Interesting(r) for every r.
func (f Filter) Explain(r Record) Verdict {
	var v Verdict
	v.Keyword, v.KeywordMatch = firstContained(strings.ToLower(r.Subject), f.Keywords)
	if len(f.Departments) == 0 {
		v.DepartmentOpen = true
		v.DepartmentMatch = true
		return v
	}
	v.Department, v.DepartmentMatch = firstContained(strings.ToUpper(r.Requester), f.Departments)
	return v
}

func firstContained(haystack string, needles []string) (string, bool) {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return n, true
		}
	}
	return "", false
}
