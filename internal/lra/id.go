package lra

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewUID mints an opaque identifier token. Grounded on the teacher's use of
// google/uuid wherever it needed a collision-resistant random identifier.
func NewUID() string {
	return uuid.New().String()
}

// BuildID composes the wire-visible LRA id from a coordinator base URL and a
// uid, per the "<coordinator-base>/<uid>" identifier format.
func BuildID(coordinatorBase, uid string) string {
	return strings.TrimRight(coordinatorBase, "/") + "/" + uid
}

// ParseID splits an LRA id back into its coordinator base and uid. Used by
// the clustered client to resolve per-LRA coordinator affinity from an id
// alone, without a side-channel lookup.
func ParseID(id string) (coordinatorBase, uid string, err error) {
	idx := strings.LastIndex(id, "/")
	if idx < 0 || idx == len(id)-1 {
		return "", "", fmt.Errorf("malformed LRA id %q", id)
	}
	return id[:idx], id[idx+1:], nil
}

// BuildRecoveryURI composes a participant's recovery URI, per the
// "<base>/recovery/<lra-uid>/<participant-uid>" format.
func BuildRecoveryURI(coordinatorBase, lraUID, participantUID string) string {
	return strings.TrimRight(coordinatorBase, "/") + "/recovery/" + lraUID + "/" + participantUID
}
