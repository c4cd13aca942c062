package ps

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/viewdb/core"
)

// FileChange is one write or delete applied by a commit.
type FileChange struct {
	Path   string
	Data   []byte
	Delete bool
}

// createBlob creates a blob object directly in the object store without filesystem I/O
func (p *Persistence) createBlob(data []byte) (plumbing.Hash, error) {
	obj := p.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create blob writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob data: %w", err)
	}
	writer.Close()

	hash, err := p.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store blob: %w", err)
	}

	return hash, nil
}

// headTree returns the tree of the HEAD commit, or nil if there are no commits yet.
func (p *Persistence) headTree() (*object.Tree, error) {
	headRef, err := p.repo.Head()
	if err != nil {
		return nil, nil
	}

	commit, err := p.repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get head commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	return tree, nil
}

func (p *Persistence) treeEntries(treeHash plumbing.Hash) (map[string]object.TreeEntry, error) {
	entries := make(map[string]object.TreeEntry)
	if treeHash == plumbing.ZeroHash {
		return entries, nil
	}

	tree, err := object.GetTree(p.repo.Storer, treeHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	for _, entry := range tree.Entries {
		entries[entry.Name] = entry
	}
	return entries, nil
}

// storeTree writes a tree object. An empty tree is stored as ZeroHash so that
// parents can drop the directory entry.
func (p *Persistence) storeTree(entries map[string]object.TreeEntry) (plumbing.Hash, error) {
	if len(entries) == 0 {
		return plumbing.ZeroHash, nil
	}

	list := make([]object.TreeEntry, 0, len(entries))
	for _, entry := range entries {
		list = append(list, entry)
	}
	// Git orders directories as if their name had a trailing slash
	sort.Slice(list, func(i, j int) bool {
		nameI, nameJ := list[i].Name, list[j].Name
		if list[i].Mode == filemode.Dir {
			nameI += "/"
		}
		if list[j].Mode == filemode.Dir {
			nameJ += "/"
		}
		return nameI < nameJ
	})

	obj := p.repo.Storer.NewEncodedObject()
	if err := (&object.Tree{Entries: list}).Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tree: %w", err)
	}
	hash, err := p.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store tree: %w", err)
	}
	return hash, nil
}

// applyChange returns the hash of treeHash with blobHash written at (or, for
// a zero blobHash, removed from) the path given by parts.
func (p *Persistence) applyChange(treeHash plumbing.Hash, parts []string, blobHash plumbing.Hash) (plumbing.Hash, error) {
	if len(parts) == 0 {
		return plumbing.ZeroHash, fmt.Errorf("empty path")
	}

	entries, err := p.treeEntries(treeHash)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	name := parts[0]
	if len(parts) == 1 {
		if blobHash == plumbing.ZeroHash {
			delete(entries, name)
		} else {
			entries[name] = object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: blobHash}
		}
		return p.storeTree(entries)
	}

	subTree := plumbing.ZeroHash
	if existing, ok := entries[name]; ok && existing.Mode == filemode.Dir {
		subTree = existing.Hash
	} else if blobHash == plumbing.ZeroHash {
		return treeHash, nil
	}

	newSubTree, err := p.applyChange(subTree, parts[1:], blobHash)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if newSubTree == plumbing.ZeroHash {
		delete(entries, name)
	} else {
		entries[name] = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: newSubTree}
	}
	return p.storeTree(entries)
}

// createCommit creates a commit object for treeHash on top of HEAD and moves the branch
func (p *Persistence) createCommit(treeHash plumbing.Hash, identity core.Identity, message string) (Transaction, error) {
	if treeHash == plumbing.ZeroHash {
		obj := p.repo.Storer.NewEncodedObject()
		if err := (&object.Tree{}).Encode(obj); err != nil {
			return Transaction{}, fmt.Errorf("failed to encode empty tree: %w", err)
		}
		var err error
		treeHash, err = p.repo.Storer.SetEncodedObject(obj)
		if err != nil {
			return Transaction{}, fmt.Errorf("failed to store empty tree: %w", err)
		}
	}

	var parentHashes []plumbing.Hash
	headRef, err := p.repo.Head()
	if err == nil {
		parentHashes = []plumbing.Hash{headRef.Hash()}
	}

	sig := object.Signature{
		Name:  identity.Name,
		Email: identity.Email,
		When:  time.Now(),
	}

	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parentHashes,
	}

	obj := p.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return Transaction{}, fmt.Errorf("failed to encode commit: %w", err)
	}

	commitHash, err := p.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to store commit: %w", err)
	}

	branchName := plumbing.Master
	if headRef != nil && headRef.Name().IsBranch() {
		branchName = headRef.Name()
	}

	ref := plumbing.NewHashReference(branchName, commitHash)
	if err := p.repo.Storer.SetReference(ref); err != nil {
		return Transaction{}, fmt.Errorf("failed to update HEAD: %w", err)
	}

	return Transaction{
		Id:     commitHash.String(),
		When:   sig.When,
		Author: identity.String(),
	}, nil
}

// syncWorktree updates the worktree filesystem to match HEAD.
// Memory mode reads the Git tree directly and skips it.
func (p *Persistence) syncWorktree() error {
	if p.isMemoryMode {
		return nil
	}

	wt, err := p.repo.Worktree()
	if err != nil {
		return err
	}

	headRef, err := p.repo.Head()
	if err != nil {
		return err
	}

	tree, err := p.headTree()
	if err != nil {
		return err
	}

	// git reset fails with "base dir cannot be removed" on an empty tree
	if tree == nil || len(tree.Entries) == 0 {
		fs := wt.Filesystem
		entries, err := fs.ReadDir("/")
		if err != nil {
			return nil
		}
		for _, entry := range entries {
			if entry.Name() != ".git" {
				fs.Remove(entry.Name())
			}
		}
		return nil
	}

	return wt.Reset(&git.ResetOptions{
		Mode:   git.HardReset,
		Commit: headRef.Hash(),
	})
}

// Commit applies all changes in a single commit.
func (p *Persistence) Commit(changes []FileChange, identity core.Identity, message string) (Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tree := plumbing.ZeroHash
	if head, err := p.headTree(); err != nil {
		return Transaction{}, err
	} else if head != nil {
		tree = head.Hash
	}

	for _, change := range changes {
		blobHash := plumbing.ZeroHash
		if !change.Delete {
			var err error
			blobHash, err = p.createBlob(change.Data)
			if err != nil {
				return Transaction{}, fmt.Errorf("failed to create blob for %s: %w", change.Path, err)
			}
		}

		var err error
		tree, err = p.applyChange(tree, strings.Split(change.Path, "/"), blobHash)
		if err != nil {
			return Transaction{}, fmt.Errorf("failed to update tree at %s: %w", change.Path, err)
		}
	}

	txn, err := p.createCommit(tree, identity, message)
	if err != nil {
		return Transaction{}, err
	}

	if err := p.syncWorktree(); err != nil {
		return Transaction{}, fmt.Errorf("failed to sync worktree: %w", err)
	}

	return txn, nil
}

// WriteFileDirect writes a single file in its own commit
func (p *Persistence) WriteFileDirect(filePath string, data []byte, identity core.Identity, message string) (Transaction, error) {
	return p.Commit([]FileChange{{Path: filePath, Data: data}}, identity, message)
}

// DeletePathDirect deletes one or more files in a single commit
func (p *Persistence) DeletePathDirect(paths []string, identity core.Identity, message string) (Transaction, error) {
	changes := make([]FileChange, len(paths))
	for i, filePath := range paths {
		changes[i] = FileChange{Path: filePath, Delete: true}
	}
	return p.Commit(changes, identity, message)
}

// ReadFileDirect reads a file directly from the Git tree (bypasses worktree filesystem)
func (p *Persistence) ReadFileDirect(filePath string) ([]byte, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	tree, err := p.headTree()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: %s (no commits yet)", ErrNotFound, filePath)
	}

	file, err := tree.File(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, filePath, err)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read contents: %w", err)
	}

	return []byte(content), nil
}

// TreeEntry represents a directory entry from the Git tree
type TreeEntry struct {
	Name  string
	IsDir bool
}

// ListEntriesDirect lists directory entries directly from the Git tree.
// A missing directory lists as empty.
func (p *Persistence) ListEntriesDirect(dirPath string) ([]TreeEntry, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	tree, err := p.headTree()
	if err != nil || tree == nil {
		return nil, err
	}

	if dirPath != "" && dirPath != "." {
		tree, err = tree.Tree(dirPath)
		if err != nil {
			return nil, nil
		}
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		entries = append(entries, TreeEntry{
			Name:  entry.Name,
			IsDir: entry.Mode == filemode.Dir,
		})
	}

	return entries, nil
}
