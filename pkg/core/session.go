package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/odvcencio/gitmirror/pkg/config"
	"github.com/odvcencio/gitmirror/pkg/object"
	"github.com/odvcencio/gitmirror/pkg/protocol"
	"github.com/odvcencio/gitmirror/pkg/transport"
	"github.com/odvcencio/gitmirror/pkg/tree"
)

// Options carries the per-invocation flags that modulate a Session's
// behavior beyond what lives in the resolved Config.
type Options struct {
	Config *config.Config

	ForceClone  bool // -c: discard any prior manifest and clone fresh
	ForceRepair bool // -r: after the walk, re-fetch paths the prior manifest records but the disk lacks or differs on
	KeepPack    bool // -k: leave the fetched packfile on disk alongside the manifest
	LowMemory   bool // -l: spill resolved objects to a scratch file

	ExplicitWant string // -w: an explicit 40-hex commit hash, bypassing ref resolution
	ExplicitHave string // -h: an explicit 40-hex commit hash, overriding the manifest's have
	TagName      string // -t: a tag name, bypassing the configured branch
	LocalPack    string // -u: read a local .pack file instead of fetching

	Verbosity int // -v <n>: verbosity level 0-2
}

// Session is one run of the tool: it owns no state beyond what Run's
// call builds and returns, so two Sessions never interfere with each
// other even when run concurrently against different sections.
type Session struct {
	opts *Options
}

// NewSession constructs a Session from resolved options.
func NewSession(opts *Options) *Session {
	return &Session{opts: opts}
}

// Result summarizes what a run changed, for the CLI's exit-status and
// summary-line decisions.
type Result struct {
	Mode    string // "clone", "pull", "local" (pack read with -u), or "repair"
	Want    string
	Branch  string
	Added   []string
	Updated []string
	Removed []string

	// UpdatingNotices lists every written path whose name contains
	// "UPDATING", carried forward for the CLI to print as a final
	// reminder once the run completes.
	UpdatingNotices []string
}

// manifestPath matches the persisted-state contract: one file per
// section at "<work_directory>/<section>", with any non-alphanumeric
// section-name byte percent-hex-encoded so it is always a valid single
// path component.
func manifestPath(cfg *config.Config) string {
	return filepath.Join(cfg.WorkDirectory, encodeSectionName(cfg.Section))
}

func packPath(cfg *config.Config, want string) string {
	short := want
	name := fmt.Sprintf("%s-%s.pack", encodeSectionName(cfg.Section), short)
	return filepath.Join(cfg.WorkDirectory, name)
}

func encodeSectionName(section string) string {
	out := make([]byte, 0, len(section))
	for i := 0; i < len(section); i++ {
		c := section[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, fmt.Sprintf("%%%02x", c)...)
		}
	}
	return string(out)
}

func proxyFromConfig(cfg *config.Config) *transport.ProxyConfig {
	if cfg.ProxyHost == "" {
		return nil
	}
	return &transport.ProxyConfig{
		Host: cfg.ProxyHost,
		Port: cfg.ProxyPort,
		User: cfg.ProxyUser,
		Pass: cfg.ProxyPass,
	}
}

// Run executes one clone/pull/repair cycle end to end: ref discovery,
// fetch, pack decode and delta resolution, tree materialization, and
// manifest persistence.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	cfg := s.opts.Config

	if err := os.MkdirAll(cfg.WorkDirectory, 0o755); err != nil {
		return nil, Wrap(KindIOFailure, fmt.Errorf("create work directory: %w", err))
	}

	ignore := tree.NewIgnoreSet(cfg.Ignores)
	local, err := tree.ScanLocal(cfg.TargetDirectory, ignore)
	if err != nil {
		return nil, Wrap(KindCoexistenceRefused, err)
	}

	mPath := manifestPath(cfg)
	var prior *tree.Manifest
	if !s.opts.ForceClone {
		m, err := tree.Load(mPath)
		if err == nil {
			prior = m
		} else if !os.IsNotExist(err) {
			return nil, Wrap(KindIOFailure, fmt.Errorf("load manifest: %w", err))
		}
	}

	client := &protocol.Client{
		Host:     cfg.Host,
		Port:     cfg.Port,
		RepoPath: cfg.RepositoryPath,
		UseTLS:   cfg.UseTLS,
		Proxy:    proxyFromConfig(cfg),
	}
	if s.opts.Verbosity > 0 {
		client.Progress = transport.NewMeter(os.Stderr, cfg.Section, 0)
	}

	if err := client.DiscoverV2(ctx); err != nil {
		return nil, Wrap(KindUnsupportedProtocol, err)
	}

	refs, err := client.LsRefs(ctx)
	if err != nil {
		return nil, Wrap(KindRefNotFound, err)
	}

	want, branchDisplay, err := s.resolveWant(refs)
	if err != nil {
		return nil, Wrap(KindRefNotFound, err)
	}

	lowMemory := s.opts.LowMemory || cfg.LowMemory
	store := object.NewStore(lowMemory, mPath+".tmp")
	defer store.Close()

	if prior != nil {
		prior.PrimeStore(store)
	}

	mode := "pull"
	var packData []byte
	switch {
	case s.opts.LocalPack != "":
		packData, err = os.ReadFile(s.opts.LocalPack)
		if err != nil {
			return nil, Wrap(KindIOFailure, fmt.Errorf("read local pack: %w", err))
		}
		mode = "local"
	case prior == nil:
		args, _ := protocol.BuildFetchArgs(protocol.FetchClone, want, "", nil)
		packData, err = client.Fetch(ctx, args)
		mode = "clone"
	default:
		have := string(prior.Have)
		if s.opts.ExplicitHave != "" {
			have = s.opts.ExplicitHave
		}
		args, _ := protocol.BuildFetchArgs(protocol.FetchPull, want, have, nil)
		packData, err = client.Fetch(ctx, args)
		mode = "pull"
	}
	if err != nil {
		return nil, Wrap(KindTransportFailure, err)
	}

	pf, err := object.ReadPack(packData)
	if err != nil {
		return nil, Wrap(KindPackChecksumMismatch, err)
	}
	if err := store.LoadPack(pf); err != nil {
		return nil, Wrap(KindOrphanOfsDelta, err)
	}

	lookupLocal := func(hash object.Hash) (*object.Entry, bool, error) {
		return tree.LoadFromLocal(store, local, hash, "")
	}
	if err := object.ResolveDeltas(store, lookupLocal); err != nil {
		return nil, Wrap(KindMissingDeltaBase, err)
	}

	commitHash, err := object.HashHex(want)
	if err != nil {
		return nil, Wrap(KindRefNotFound, fmt.Errorf("resolved want %q is not a valid hash: %w", want, err))
	}

	walker := tree.NewWalker(store, cfg.TargetDirectory, local, ignore)
	walker.DisplayDepth = cfg.DisplayDepth
	walker.Verbosity = s.opts.Verbosity

	walkResult, err := walker.Walk(commitHash)
	if err != nil {
		return nil, Wrap(KindMissingObject, err)
	}

	result := &Result{
		Mode:            mode,
		Want:            string(commitHash),
		Branch:          branchDisplay,
		Added:           walkResult.Added,
		Updated:         walkResult.Updated,
		Removed:         walkResult.Removed,
		UpdatingNotices: walkResult.UpdatingNotices,
	}

	if s.opts.ForceRepair && prior != nil {
		repairResult, err := s.runRepair(ctx, client, store, local, cfg, prior, ignore)
		if err != nil {
			return nil, err
		}
		if repairResult != nil {
			result.Added = append(result.Added, repairResult.Added...)
			result.Updated = append(result.Updated, repairResult.Updated...)
			result.UpdatingNotices = append(result.UpdatingNotices, repairResult.UpdatingNotices...)
			result.Mode = "repair"
		}
	}

	if err := tree.Save(mPath, walkResult.Manifest); err != nil {
		return nil, Wrap(KindIOFailure, fmt.Errorf("save manifest: %w", err))
	}

	if s.opts.KeepPack && packData != nil {
		if err := os.WriteFile(packPath(cfg, string(commitHash)), packData, 0o644); err != nil {
			return nil, Wrap(KindIOFailure, fmt.Errorf("keep pack: %w", err))
		}
	}

	if err := writeRevisionMarker(cfg.TargetDirectory, branchDisplay, string(commitHash)); err != nil {
		return nil, Wrap(KindIOFailure, err)
	}

	return result, nil
}

// writeRevisionMarker records "<branch-or-tag>:<first-9-of-want>\n" in
// ".gituprevision" at the target directory's root, a quick human-readable
// breadcrumb of what's checked out without needing to parse the manifest.
func writeRevisionMarker(targetDir, branchOrTag, want string) error {
	short := want
	if len(short) > 9 {
		short = short[:9]
	}
	line := fmt.Sprintf("%s:%s\n", branchOrTag, short)
	path := filepath.Join(targetDir, ".gituprevision")
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("write revision marker: %w", err)
	}
	return nil
}

// runRepair compares the manifest the walk just produced would be too
// late to catch pre-existing local corruption, so repair plans against
// the *prior* manifest: the last state this tool itself vouched for.
func (s *Session) runRepair(ctx context.Context, client *protocol.Client, store *object.Store, local *tree.LocalIndex, cfg *config.Config, prior *tree.Manifest, ignore *tree.IgnoreSet) (*tree.WalkResult, error) {
	defects := tree.PlanRepair(prior, local, ignore)
	if len(defects) == 0 {
		return nil, nil
	}

	wants := tree.WantHashes(defects)
	if protocol.RepairWantSize(wants) > protocol.MaxRepairWantBytes {
		return nil, Wrap(KindTooManyRepairs, fmt.Errorf("repair would request %d want lines, exceeding the size cap", len(wants)))
	}

	args, err := protocol.BuildFetchArgs(protocol.FetchRepair, "", "", wants)
	if err != nil {
		return nil, Wrap(KindTransportFailure, err)
	}
	if args == nil {
		return nil, nil
	}

	packData, err := client.Fetch(ctx, args)
	if err != nil {
		return nil, Wrap(KindTransportFailure, err)
	}
	pf, err := object.ReadPack(packData)
	if err != nil {
		return nil, Wrap(KindPackChecksumMismatch, err)
	}

	store.Repair = true
	if err := store.LoadPack(pf); err != nil {
		return nil, Wrap(KindOrphanOfsDelta, err)
	}
	lookupLocal := func(hash object.Hash) (*object.Entry, bool, error) {
		return tree.LoadFromLocal(store, local, hash, "")
	}
	if err := object.ResolveDeltas(store, lookupLocal); err != nil {
		return nil, Wrap(KindMissingDeltaBase, err)
	}

	repairResult, err := tree.ApplyRepair(store, local, cfg.TargetDirectory, defects)
	if err != nil {
		return nil, Wrap(KindIOFailure, err)
	}
	return repairResult, nil
}

// resolveWant picks the commit hash to materialize, honoring an explicit
// hash or tag override before falling back to the configured branch.
func (s *Session) resolveWant(refs []protocol.RefEntry) (hash, display string, err error) {
	cfg := s.opts.Config
	switch {
	case s.opts.ExplicitWant != "":
		return protocol.ResolveExplicit(s.opts.ExplicitWant)
	case s.opts.TagName != "":
		h, err := protocol.ResolveTag(refs, s.opts.TagName)
		return h, "tags/" + s.opts.TagName, err
	case cfg.Branch == "quarterly":
		return protocol.ResolveQuarterlyBranch(refs, time.Now())
	default:
		h, err := protocol.ResolveBranch(refs, cfg.Branch)
		return h, cfg.Branch, err
	}
}
