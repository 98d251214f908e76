package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"

	"github.com/ricochet1k/wamux/internal/domain"
)

var sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.@+-]{1,64}$`)

// ValidateSessionID checks that id can name a credential directory.
func ValidateSessionID(id string) error {
	if id == "." || id == ".." || !sessionIDRegex.MatchString(id) {
		return domain.InvalidArgument("session id %q", id)
	}
	return nil
}

// CredentialStore manages one directory per session under a root directory.
// What goes inside a directory belongs to the protocol engine.
type CredentialStore struct {
	root string
}

func NewCredentialStore(root string) (*CredentialStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, errors.Wrap(err, "create sessions directory")
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, "stat sessions directory")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("sessions path %s is not a directory", root)
	}
	if info.Mode().Perm()&0o077 != 0 {
		_ = os.Chmod(root, 0o700)
	}

	return &CredentialStore{root: root}, nil
}

func (s *CredentialStore) Root() string { return s.root }

// Dir is the credential directory of id. It does not create it.
func (s *CredentialStore) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Ensure creates the credential directory of id if needed and returns it.
func (s *CredentialStore) Ensure(id string) (string, error) {
	if err := ValidateSessionID(id); err != nil {
		return "", err
	}
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errors.Wrapf(err, "create credential directory for %s", id)
	}
	return dir, nil
}

// Remove deletes the credential directory of id. A missing directory is not
// an error.
func (s *CredentialStore) Remove(id string) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}
	return errors.Wrapf(os.RemoveAll(s.Dir(id)), "remove credential directory for %s", id)
}

// Exists reports whether id has a credential directory.
func (s *CredentialStore) Exists(id string) bool {
	if ValidateSessionID(id) != nil {
		return false
	}
	info, err := os.Stat(s.Dir(id))
	return err == nil && info.IsDir()
}

// List returns the ids of every credential directory, sorted. Entries that
// are not valid session ids are skipped.
func (s *CredentialStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read sessions directory")
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || ValidateSessionID(entry.Name()) != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
