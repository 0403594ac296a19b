package store

import (
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/models"
	"github.com/stretchr/testify/require"
)

func (s *StoreSuite) TestContactLifecycle() {
	t := s.T()
	client := s.newAccount("help@example.com", models.RoleClient)

	_, err := CreateContact(s.ctx, s.db, client.ID, ContactInput{Name: "Help"}, "inbox@example.com")
	var verr *database.ValidationError
	require.ErrorAs(t, err, &verr)

	msg, err := CreateContact(s.ctx, s.db, client.ID, ContactInput{
		Name:    "Help Me",
		Email:   "Help@Example.com",
		Subject: "Broken zipper",
		Message: "The zipper on my bag broke after a day.",
	}, "inbox@example.com")
	require.NoError(t, err)
	require.Equal(t, models.ContactPending, msg.Status)
	require.Equal(t, "help@example.com", msg.Email)

	received := s.eventsOfKind(events.KindContactReceived)
	require.Len(t, received, 1)
	require.Equal(t, "inbox@example.com", received[0].Recipient)

	_, err = CreateContact(s.ctx, s.db, client.ID, ContactInput{
		Name: "Help Me", Email: "help@example.com", Subject: "Follow up", Message: "Any news?",
	}, "")
	require.NoError(t, err)
	require.Len(t, s.eventsOfKind(events.KindContactReceived), 1)

	mine, err := ListAccountContacts(s.ctx, s.db, client.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, "Follow up", mine[0].Subject)

	response := "A replacement is on its way."
	updated, err := UpdateContact(s.ctx, s.db, msg.ID, models.ContactResolved, &response)
	require.NoError(t, err)
	require.Equal(t, models.ContactResolved, updated.Status)
	require.Equal(t, response, updated.AdminResponse)

	updated, err = UpdateContact(s.ctx, s.db, msg.ID, models.ContactInProgress, nil)
	require.NoError(t, err)
	require.Equal(t, response, updated.AdminResponse)

	_, err = UpdateContact(s.ctx, s.db, 9999, models.ContactResolved, nil)
	require.ErrorIs(t, err, database.ErrContactNotFound)

	page, err := ListContacts(s.ctx, s.db, models.ContactPending, PageRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)

	stats, err := GetAccountStats(s.ctx, s.db, client.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalContacts)
	require.Equal(t, int64(1), stats.PendingContacts)
	require.Equal(t, int64(1), stats.InProgressContacts)
	require.Equal(t, int64(0), stats.TotalOrders)
}

func (s *StoreSuite) TestDashboardStats() {
	t := s.T()
	client, _, _ := s.orderWith("dash@example.com", "dash-1", 5, 1)
	_, err := CreateContact(s.ctx, s.db, client.ID, ContactInput{
		Name: "Dash", Email: client.Email, Subject: "Hi", Message: "Hello",
	}, "")
	require.NoError(t, err)

	stats, err := GetDashboardStats(s.ctx, s.db)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalUsers)
	require.Equal(t, int64(1), stats.TotalClients)
	require.Equal(t, int64(1), stats.TotalAdmins)
	require.Equal(t, int64(1), stats.PendingContacts)
	require.Equal(t, int64(1), stats.Orders.TotalOrders)
	require.Equal(t, int64(1), stats.Orders.PendingOrders)
	require.True(t, stats.Orders.TotalRevenue.IsZero())
	require.Len(t, stats.RecentContacts, 1)
	require.Len(t, stats.RecentUsers, 2)
}
