// Package identity builds the owner strings written into reservation
// rows so that a lock holder can be traced back to a machine, process
// and attempt.
package identity

import (
	"fmt"
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

// WorkerID identifies this process: a stable machine component plus
// the pid. Falls back to the hostname when the machine id is
// unavailable (containers without /etc/machine-id).
func WorkerID() string {
	id, err := machineid.ID()
	if err != nil {
		host, herr := os.Hostname()
		if herr != nil {
			host = "unknown"
		}
		id = host
	}
	return fmt.Sprintf("%s/%d", id, os.Getpid())
}

// TaskOwner appends a per-attempt uuid to the worker id. Each trade
// attempt gets its own owner so a stale attempt can never release a
// reservation re-acquired by a newer one.
func TaskOwner(workerID string) string {
	return workerID + "/" + uuid.NewString()
}
