// Package history keeps every saved revision of the site document as a
// commit of content.json in a local git repository.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"portfolio/api/internal/content"
)

const (
	fileName   = "content.json"
	branchName = "main"
)

var (
	ErrRevisionNotFound = errors.New("revision not found")
	ErrInvalidHash      = errors.New("invalid revision hash")
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{4,40}$`)

type Revision struct {
	Hash      string    `json:"hash"`
	FullHash  string    `json:"fullHash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	// Changed lists the top-level sections that differ from the parent
	// revision. Only filled by List.
	Changed []string `json:"changed,omitempty"`
}

type Service struct {
	dir  string
	mu   sync.Mutex
	repo *git.Repository
	now  func() time.Time
}

// Open opens the repository in dir, initializing it on first use.
func Open(dir string) (*Service, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		repo, err = git.PlainInitWithOptions(dir, &git.PlainInitOptions{
			InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branchName)},
		})
		if err != nil {
			return nil, fmt.Errorf("init history repo: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open history repo: %w", err)
	}
	return &Service{dir: dir, repo: repo, now: time.Now}, nil
}

// Record commits doc unless it matches the latest revision, in which case
// ok is false and nothing is written.
func (s *Service) Record(doc content.Tree, author, message string) (rev Revision, ok bool, err error) {
	payload, err := encode(doc)
	if err != nil {
		return Revision{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if head, err := s.headCommit(); err != nil {
		return Revision{}, false, err
	} else if head != nil {
		previous, err := readFile(head)
		if err != nil {
			return Revision{}, false, err
		}
		if bytes.Equal(previous, payload) {
			return Revision{}, false, nil
		}
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), fileName), payload, 0o644); err != nil {
		return Revision{}, false, fmt.Errorf("write %s: %w", fileName, err)
	}
	if _, err := worktree.Add(fileName); err != nil {
		return Revision{}, false, fmt.Errorf("git add content: %w", err)
	}

	if strings.TrimSpace(message) == "" {
		message = "Update site content"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{Author: s.signature(author)})
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit content: %w", err)
	}
	commitObj, err := s.repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), true, nil
}

// List returns up to limit revisions, newest first. limit <= 0 means all.
func (s *Service) List(limit int) ([]Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, err := s.headCommit()
	if err != nil || head == nil {
		return []Revision{}, err
	}

	iter, err := s.repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0, max(limit, 0))
	err = iter.ForEach(func(commitObj *object.Commit) error {
		rev := toRevision(commitObj)
		changed, err := changedSections(commitObj)
		if err != nil {
			return err
		}
		rev.Changed = changed
		items = append(items, rev)
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Get returns the document stored at hash, full or abbreviated.
func (s *Service) Get(hash string) (content.Tree, Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	commitObj, err := s.resolve(hash)
	if err != nil {
		return nil, Revision{}, err
	}
	doc, err := readTree(commitObj)
	if err != nil {
		return nil, Revision{}, err
	}
	return doc, toRevision(commitObj), nil
}

func (s *Service) headCommit() (*object.Commit, error) {
	ref, err := s.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func (s *Service) resolve(hash string) (*object.Commit, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !hashPattern.MatchString(hash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	var resolved plumbing.Hash
	if len(hash) == 40 {
		resolved = plumbing.NewHash(hash)
	} else {
		h, err := s.repo.ResolveRevision(plumbing.Revision(hash))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, hash)
		}
		resolved = *h
	}

	commitObj, err := s.repo.CommitObject(resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return commitObj, nil
}

func (s *Service) signature(author string) *object.Signature {
	author = strings.TrimSpace(author)
	if author == "" {
		author = "site"
	}
	email := author
	if !strings.Contains(author, "@") {
		email = sanitizeEmail(author) + "@site.local"
	}
	return &object.Signature{Name: author, Email: email, When: s.now()}
}

func encode(doc content.Tree) ([]byte, error) {
	if doc == nil {
		return nil, content.ErrNotObject
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	return append(payload, '\n'), nil
}

func readFile(commitObj *object.Commit) ([]byte, error) {
	file, err := commitObj.File(fileName)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", fileName, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read content bytes: %w", err)
	}
	return raw, nil
}

func readTree(commitObj *object.Commit) (content.Tree, error) {
	raw, err := readFile(commitObj)
	if err != nil {
		return nil, err
	}
	doc, err := content.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("decode commit content: %w", err)
	}
	return doc, nil
}

func changedSections(commitObj *object.Commit) ([]string, error) {
	after, err := readTree(commitObj)
	if err != nil {
		return nil, err
	}
	before := content.Tree{}
	if commitObj.NumParents() > 0 {
		parent, err := commitObj.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("load parent commit: %w", err)
		}
		if before, err = readTree(parent); err != nil {
			return nil, err
		}
	}

	var changed []string
	for key, value := range after {
		if !reflect.DeepEqual(before[key], value) {
			changed = append(changed, key)
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func toRevision(commitObj *object.Commit) Revision {
	full := commitObj.Hash.String()
	return Revision{
		Hash:      full[:7],
		FullHash:  full,
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
