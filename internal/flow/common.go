package flow

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Outcome classifies how an inbound text command was handled.
type Outcome int

const (
	Malformed       Outcome = iota // Malformed means the text did not match `name: channels`.
	NoValidChannels                // The command named no channel we know.
	Subscribed
	PartiallySubscribed // At least one channel bound, at least one failed.
	BindingFailed       // Every requested channel failed to bind.
	Unsubscribed
	NotSubscribed
	Replayed // Redelivered gateway message within the replay window; answered from cache.
)

var OutcomeTextMap = map[Outcome]string{
	Malformed:           "malformed",
	NoValidChannels:     "no_valid_channels",
	Subscribed:          "subscribed",
	PartiallySubscribed: "partially_subscribed",
	BindingFailed:       "binding_failed",
	Unsubscribed:        "unsubscribed",
	NotSubscribed:       "not_subscribed",
	Replayed:            "replayed",
}

func (o Outcome) String() string {
	if t, ok := OutcomeTextMap[o]; ok {
		return t
	}
	return "unknown"
}

var timeNow = time.Now

func SetTimeNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}

// ComputeKey generates a quick hash of the given strings with fixed length.
func ComputeKey(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		// hash.Hash.Write never returns an error according to the interface contract
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("k%d", h.Sum64())
}
