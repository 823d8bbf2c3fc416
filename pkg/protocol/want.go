package protocol

import (
	"fmt"
	"strings"
	"time"
)

// RefEntry is one advertised ref from an ls-refs response.
type RefEntry struct {
	Hash         string
	Name         string
	SymrefTarget string
	Peeled       string
}

// ParseLsRefs decodes an ls-refs response body into its ref entries. Each
// pkt-line has the form "<hash> <name>[ symref-target:<target>][
// peeled:<hash>]".
func ParseLsRefs(body []byte) ([]RefEntry, error) {
	lines, err := ReadAllLines(body)
	if err != nil {
		return nil, err
	}
	var entries []RefEntry
	for _, l := range lines {
		if l.Flush || l.Delim {
			continue
		}
		line := strings.TrimRight(string(l.Data), "\n")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		e := RefEntry{Hash: fields[0], Name: fields[1]}
		for _, attr := range fields[2:] {
			switch {
			case strings.HasPrefix(attr, "symref-target:"):
				e.SymrefTarget = strings.TrimPrefix(attr, "symref-target:")
			case strings.HasPrefix(attr, "peeled:"):
				e.Peeled = strings.TrimPrefix(attr, "peeled:")
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// ResolveExplicit validates and returns an explicitly supplied want hash.
func ResolveExplicit(hash string) (string, string, error) {
	if !isHex40(hash) {
		return "", "", fmt.Errorf("%w: %q is not a 40-character hex hash", ErrRefNotFound, hash)
	}
	return hash, "(detached)", nil
}

// ResolveTag finds the commit hash a tag points at, preferring the
// annotated tag's peeled target over the tag object's own hash.
func ResolveTag(entries []RefEntry, tag string) (string, error) {
	suffix := "refs/tags/" + tag
	for _, e := range entries {
		if e.Name != suffix {
			continue
		}
		if e.Peeled != "" {
			return e.Peeled, nil
		}
		return e.Hash, nil
	}
	return "", fmt.Errorf("%w: tag %q", ErrRefNotFound, tag)
}

// ResolveBranch finds the commit hash a branch currently points at.
func ResolveBranch(entries []RefEntry, branch string) (string, error) {
	suffix := "refs/heads/" + branch
	for _, e := range entries {
		if e.Name == suffix {
			return e.Hash, nil
		}
	}
	return "", fmt.Errorf("%w: branch %q", ErrRefNotFound, branch)
}

// QuarterlyBranchName computes the "<year>Q<quarter>" branch name for the
// given time, optionally stepping back quartersBack quarters (wrapping
// the year on underflow).
func QuarterlyBranchName(t time.Time, quartersBack int) string {
	year := t.Year()
	quarter := (int(t.Month())-1)/3 + 1 // 1..4

	total := (year*4 + (quarter - 1)) - quartersBack
	year = total / 4
	quarter = total%4 + 1
	if quarter <= 0 {
		quarter += 4
		year--
	}
	return fmt.Sprintf("%dQ%d", year, quarter)
}

// ResolveQuarterlyBranch resolves the "quarterly" pseudo-branch: the
// current quarter's branch, falling back to the previous quarter exactly
// once if the current quarter's branch is not yet advertised.
func ResolveQuarterlyBranch(entries []RefEntry, now time.Time) (hash string, branchName string, err error) {
	current := QuarterlyBranchName(now, 0)
	if h, err := ResolveBranch(entries, current); err == nil {
		return h, current, nil
	}
	previous := QuarterlyBranchName(now, 1)
	if h, err := ResolveBranch(entries, previous); err == nil {
		return h, previous, nil
	}
	return "", "", fmt.Errorf("%w: quarterly branch %q or %q", ErrRefNotFound, current, previous)
}
