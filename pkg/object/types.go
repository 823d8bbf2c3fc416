package object

import "errors"

var (
	errTreeFormat   = errors.New("malformed tree object")
	errCommitFormat = errors.New("malformed commit object")
)

// Hash is a 40-character hex-encoded SHA-1 digest, matching Git's own
// object naming convention.
type Hash string

// ObjectType identifies the kind of object stored, using Git's canonical
// names since the hash envelope is computed over them.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

const (
	// Tree mode constants, Git's canonical octal mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
)

// Blob holds raw file content.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object: a name, its mode, and the hash
// of the blob or subtree it refers to.
type TreeEntry struct {
	Name     string
	Mode     string
	IsDir    bool
	IsLink   bool
	SubHash  Hash
	BlobHash Hash
}

// Tree holds a directory listing in on-wire order. Reconstructed trees
// synthesized from a manifest preserve the manifest's recorded order
// rather than re-sorting, since the manifest is itself a record of a
// prior walk and round-tripping it must be byte-stable.
type Tree struct {
	Entries []TreeEntry
}

// Commit is a minimal decoded view of a commit object: enough to locate
// its root tree, nothing more. This tool only ever tracks a single commit
// at a time and never inspects ancestry beyond immediate parents.
type Commit struct {
	TreeHash Hash
	Parents  []Hash
	Raw      []byte
}

// ParseCommit extracts the root tree hash (and any parent hashes) from a
// raw commit object payload. Commit payloads begin "tree <hex>\n" followed
// by zero or more "parent <hex>\n" lines; this tool never needs anything
// past the parent lines, so the rest of the payload is kept only as Raw.
func ParseCommit(data []byte) (*Commit, error) {
	if len(data) < 46 || string(data[:5]) != "tree " || data[45] != '\n' {
		return nil, errCommitFormat
	}
	treeHash, err := HashHex(string(data[5:45]))
	if err != nil {
		return nil, err
	}
	c := &Commit{TreeHash: treeHash, Raw: data}
	rest := data[46:]
	for len(rest) >= 7 && string(rest[:7]) == "parent " {
		if len(rest) < 48 || rest[47] != '\n' {
			return nil, errCommitFormat
		}
		parentHash, err := HashHex(string(rest[7:47]))
		if err != nil {
			return nil, err
		}
		c.Parents = append(c.Parents, parentHash)
		rest = rest[48:]
	}
	return c, nil
}

// MarshalTree serializes a Tree to Git's canonical tree object encoding:
// "<mode> <name>\0<20-byte binary hash>" concatenated per entry.
func MarshalTree(t *Tree) []byte {
	var out []byte
	for _, e := range t.Entries {
		h := e.SubHash
		if !e.IsDir {
			h = e.BlobHash
		}
		out = append(out, []byte(e.Mode)...)
		out = append(out, ' ')
		out = append(out, []byte(e.Name)...)
		out = append(out, 0)
		out = append(out, h.Binary()...)
	}
	return out
}

// UnmarshalTree parses Git's canonical tree object encoding.
func UnmarshalTree(data []byte) (*Tree, error) {
	t := &Tree{}
	for len(data) > 0 {
		sp := indexByte(data, ' ')
		if sp < 0 {
			return nil, errTreeFormat
		}
		mode := string(data[:sp])
		rest := data[sp+1:]
		nul := indexByte(rest, 0)
		if nul < 0 {
			return nil, errTreeFormat
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]
		if len(rest) < 20 {
			return nil, errTreeFormat
		}
		hash, err := HashBinary(rest[:20])
		if err != nil {
			return nil, err
		}
		isDir := mode == TreeModeDir
		isLink := mode == TreeModeSymlink
		entry := TreeEntry{Name: name, Mode: mode, IsDir: isDir, IsLink: isLink}
		if isDir {
			entry.SubHash = hash
		} else {
			entry.BlobHash = hash
		}
		t.Entries = append(t.Entries, entry)
		data = rest[20:]
	}
	return t, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
