package dpubsub_test

import (
	"testing"
	"time"

	"github.com/nimbusdb/remote/dpubsub"
	"github.com/stretchr/testify/require"
)

const soon = 200 * time.Millisecond

func isSending(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(soon):
		t.Fatal("channel did not become ready")
	}
}

func notSending(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("channel unexpectedly became ready")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestStream_Publish_panicsOnCalledTwice(t *testing.T) {
	t.Parallel()

	s := dpubsub.NewStream[int]()
	s.Publish(1)

	require.Panics(t, func() {
		s.Publish(1)
	})
}

// TestStream_Publish_advancesAndBroadcasts verifies the advance-on-
// publish idiom every production caller relies on (onlinestate.Machine,
// the facade's eventTap): each Publish closes Ready on the node it
// filled and readies a fresh, not-yet-ready Next.
func TestStream_Publish_advancesAndBroadcasts(t *testing.T) {
	t.Parallel()

	head := dpubsub.NewStream[int]()
	notSending(t, head.Ready)

	s := head
	s.Publish(1)
	isSending(t, s.Ready)
	require.Equal(t, 1, s.Val)
	s = s.Next
	notSending(t, s.Ready)

	s.Publish(2)
	isSending(t, s.Ready)
	require.Equal(t, 2, s.Val)
	s = s.Next
	notSending(t, s.Ready)
}

// TestStream_Publish_multipleReaders verifies two readers starting from
// the same head each observe every published value independently, the
// way Store.Events() lets more than one observer follow the same feed.
func TestStream_Publish_multipleReaders(t *testing.T) {
	t.Parallel()

	head := dpubsub.NewStream[string]()

	readAll := func(s *dpubsub.Stream[string], n int) []string {
		var got []string
		for i := 0; i < n; i++ {
			isSending(t, s.Ready)
			got = append(got, s.Val)
			s = s.Next
		}
		return got
	}

	done := make(chan []string, 2)
	go func() { done <- readAll(head, 2) }()
	go func() { done <- readAll(head, 2) }()

	s := head
	s.Publish("a")
	s = s.Next
	s.Publish("b")

	require.Equal(t, []string{"a", "b"}, <-done)
	require.Equal(t, []string{"a", "b"}, <-done)
}
