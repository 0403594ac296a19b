package store

import (
	"time"

	"github.com/stretchr/testify/require"
)

func (s *StoreSuite) TestOutboxClaimAndMark() {
	t := s.T()
	outbox := NewOutbox(s.db)

	require.NoError(t, Enqueue(s.ctx, s.db, "test.kind", "a@example.com", map[string]string{"n": "1"}))
	require.NoError(t, Enqueue(s.ctx, s.db, "test.kind", "b@example.com", map[string]string{"n": "2"}))

	claimed, err := outbox.ClaimDue(s.ctx, 10, 3, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for _, e := range claimed {
		if e.Recipient == "a@example.com" {
			require.JSONEq(t, `{"n":"1"}`, string(e.Payload))
		}
	}

	again, err := outbox.ClaimDue(s.ctx, 10, 3, time.Minute)
	require.NoError(t, err)
	require.Empty(t, again, "leased events are not claimed twice")

	require.NoError(t, outbox.MarkPublished(s.ctx, claimed[0].ID))
	require.NoError(t, outbox.MarkFailed(s.ctx, claimed[1].ID, time.Now().Add(-time.Second), "smtp down"))

	pending, err := outbox.Pending(s.ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, claimed[1].ID, pending[0].ID)
	require.Equal(t, 1, pending[0].Attempts)
	require.Equal(t, "smtp down", pending[0].LastError)

	retry, err := outbox.ClaimDue(s.ctx, 10, 3, time.Minute)
	require.NoError(t, err)
	require.Len(t, retry, 1)

	require.NoError(t, outbox.MarkFailed(s.ctx, retry[0].ID, time.Now().Add(-time.Second), "smtp down"))
	require.NoError(t, outbox.MarkFailed(s.ctx, retry[0].ID, time.Now().Add(-time.Second), "smtp down"))

	parked, err := outbox.ClaimDue(s.ctx, 10, 3, time.Minute)
	require.NoError(t, err)
	require.Empty(t, parked, "events at the attempt limit stay parked")
}
