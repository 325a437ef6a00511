package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// FileVersion is written into the configs.json envelope.
const FileVersion = "1.0.0"

// ErrNotFound is returned when no profile matches the requested id.
var ErrNotFound = errors.New("profile not found")

type envelope struct {
	Version string    `json:"version"`
	Configs []Profile `json:"configs"`
}

// Store persists profiles in a single JSON file. Every mutation is a
// read-modify-write under an inter-process file lock, so the daemon and the CLI
// can edit the same file.
type Store struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
	now  func() time.Time
}

// NewStore returns a store backed by path. The parent directory is created if missing.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	return &Store{path: path, lock: flock.New(path + ".lock"), now: time.Now}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// List returns all profiles in stored order. A missing file yields an empty list.
func (s *Store) List() ([]Profile, error) {
	var out []Profile
	err := s.view(func(ps []Profile) { out = ps })
	return out, err
}

// Get returns the profile with the given id.
func (s *Store) Get(id string) (Profile, error) {
	var (
		p  Profile
		ok bool
	)
	err := s.view(func(ps []Profile) {
		if i := indexOf(ps, id); i >= 0 {
			p, ok = ps[i], true
		}
	})
	if err != nil {
		return Profile{}, err
	}
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Find resolves a profile by id first, then by exact name.
func (s *Store) Find(idOrName string) (Profile, error) {
	ps, err := s.List()
	if err != nil {
		return Profile{}, err
	}
	if i := indexOf(ps, idOrName); i >= 0 {
		return ps[i], nil
	}
	for _, p := range ps {
		if p.Name == idOrName {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
}

// Default returns the profile flagged as default, if any.
func (s *Store) Default() (Profile, bool, error) {
	ps, err := s.List()
	if err != nil {
		return Profile{}, false, err
	}
	for _, p := range ps {
		if p.IsDefault {
			return p, true, nil
		}
	}
	return Profile{}, false, nil
}

// Filter returns profiles matching term and provider (see Profile.Matches).
func (s *Store) Filter(term string, provider Provider) ([]Profile, error) {
	ps, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(ps))
	for _, p := range ps {
		if p.Matches(term, provider) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Stats summarises the stored profiles.
func (s *Store) Stats() (Stats, error) {
	ps, err := s.List()
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(ps, s.now()), nil
}

// Save inserts p, or replaces the stored profile with the same id. A profile
// without id gets a fresh one. When p is the default, every other profile
// loses the flag.
func (s *Store) Save(p Profile) (Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.update(func(ps []Profile) ([]Profile, error) {
		if i := indexOf(ps, p.ID); i >= 0 {
			ps[i] = p
		} else {
			ps = append(ps, p)
		}
		if p.IsDefault {
			clearDefaults(ps, p.ID)
		}
		return ps, nil
	})
	return p, err
}

// Delete removes the profile with the given id.
func (s *Store) Delete(id string) error {
	return s.update(func(ps []Profile) ([]Profile, error) {
		i := indexOf(ps, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return append(ps[:i], ps[i+1:]...), nil
	})
}

// SetDefault marks id as the only default profile.
func (s *Store) SetDefault(id string) error {
	return s.update(func(ps []Profile) ([]Profile, error) {
		i := indexOf(ps, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		ps[i].IsDefault = true
		clearDefaults(ps, id)
		return ps, nil
	})
}

// Duplicate copies id under a new identifier. The copy is never the default
// and starts with a zero use count.
func (s *Store) Duplicate(id string) (Profile, error) {
	var cp Profile
	err := s.update(func(ps []Profile) ([]Profile, error) {
		i := indexOf(ps, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		cp = ps[i]
		cp.ID = uuid.NewString()
		cp.Name += " (copy)"
		cp.IsDefault = false
		cp.UseCount = 0
		return append(ps, cp), nil
	})
	return cp, err
}

// MarkUsed increments the use count of id and stamps today's date.
func (s *Store) MarkUsed(id string) error {
	today := s.now().Format(LastUsedLayout)
	return s.update(func(ps []Profile) ([]Profile, error) {
		i := indexOf(ps, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		ps[i].UseCount++
		ps[i].LastUsed = today
		return ps, nil
	})
}

// ReplaceAll overwrites the stored collection. Missing or repeated ids get a
// fresh id and only the first default flag survives.
func (s *Store) ReplaceAll(ps []Profile) error {
	ps = normalizeAll(ps)
	return s.update(func([]Profile) ([]Profile, error) {
		return ps, nil
	})
}

func normalizeAll(in []Profile) []Profile {
	out := make([]Profile, 0, len(in))
	seen := make(map[string]bool, len(in))
	hasDefault := false
	for _, p := range in {
		if p.ID == "" || seen[p.ID] {
			p.ID = uuid.NewString()
		}
		seen[p.ID] = true
		if p.IsDefault {
			p.IsDefault = !hasDefault
			hasDefault = true
		}
		out = append(out, p)
	}
	return out
}

// Export writes all profiles to w using the configs.json envelope.
func (s *Store) Export(w io.Writer) error {
	ps, err := s.List()
	if err != nil {
		return err
	}
	return Encode(w, ps)
}

// Import replaces the stored collection with profiles decoded from r.
func (s *Store) Import(r io.Reader) ([]Profile, error) {
	ps, err := Decode(r)
	if err != nil {
		return nil, err
	}
	ps = normalizeAll(ps)
	if err := s.ReplaceAll(ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// Encode writes ps in the configs.json envelope.
func Encode(w io.Writer, ps []Profile) error {
	if ps == nil {
		ps = []Profile{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope{Version: FileVersion, Configs: ps})
}

// Decode reads either the configs.json envelope or a bare JSON array of profiles.
func Decode(r io.Reader) ([]Profile, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err == nil && env.Configs != nil {
		return env.Configs, nil
	}
	var ps []Profile
	if err := json.Unmarshal(b, &ps); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return ps, nil
}

func (s *Store) view(fn func([]Profile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.RLock(); err != nil {
		return fmt.Errorf("lock profiles: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	ps, err := s.read()
	if err != nil {
		return err
	}
	fn(ps)
	return nil
}

func (s *Store) update(fn func([]Profile) ([]Profile, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock profiles: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	ps, err := s.read()
	if err != nil {
		return err
	}
	ps, err = fn(ps)
	if err != nil {
		return err
	}
	return s.write(ps)
}

func (s *Store) read() ([]Profile, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// write replaces the file atomically via a sibling temp file.
func (s *Store) write(ps []Profile) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".configs-*.json")
	if err != nil {
		return fmt.Errorf("create temp profiles: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := Encode(tmp, ps); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp profiles: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace profiles: %w", err)
	}
	return nil
}

func indexOf(ps []Profile, id string) int {
	for i := range ps {
		if ps[i].ID == id {
			return i
		}
	}
	return -1
}

func clearDefaults(ps []Profile, keep string) {
	for i := range ps {
		if ps[i].ID != keep {
			ps[i].IsDefault = false
		}
	}
}
