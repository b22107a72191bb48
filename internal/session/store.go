package session

import (
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

var ErrNoSession = errors.New("session: no stored session")

// Store persists one session as a JSON file. Load after login, clear after
// logout; the realtime client only ever sees the value object.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, errors.Wrap(err, "read session file")
	}

	var sess Session
	if err := sonic.Unmarshal(data, &sess); err != nil {
		return Session{}, errors.Wrap(err, "decode session file")
	}
	return sess, nil
}

func (s *Store) Save(sess Session) error {
	data, err := sonic.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create session dir")
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "write session file")
	}
	return nil
}

func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove session file")
	}
	return nil
}
