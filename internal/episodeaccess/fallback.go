package episodeaccess

import (
	"errors"
	"fmt"

	"episodegen/internal/ipc"
	"episodegen/internal/store"
)

// Session pairs an Access with whatever must be released afterwards.
type Session struct {
	Access Access
	close  func() error
}

func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback prefers a running daemon so reads observe live state. When
// the daemon does not answer it opens the database directly; SQLite WAL mode
// lets both coexist. Both failures are reported if neither works.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*store.Store, error),
) (Session, error) {
	var dialErr error
	if dial != nil {
		client, err := dial()
		if err == nil {
			return Session{Access: NewDaemonAccess(client), close: client.Close}, nil
		}
		dialErr = err
	}
	if openStore == nil {
		return Session{}, errors.Join(dialErr, errors.New("no local store available"))
	}
	st, err := openStore()
	if err != nil {
		return Session{}, errors.Join(dialErr, fmt.Errorf("open local store: %w", err))
	}
	return Session{Access: NewStoreAccess(st), close: st.Close}, nil
}
